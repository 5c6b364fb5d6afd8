package common

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/storage"
	"gopkg.in/yaml.v3"
)

// Config is shared by the registry and coordinator binaries. Each binary
// reads the sections it needs.
type Config struct {
	HTTPAddr    string `yaml:"http_addr" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr"`

	Log         LogConfig         `yaml:"log"`
	Keys        KeysConfig        `yaml:"keys"`
	Storage     StorageConfig     `yaml:"storage"`
	Attestation AttestationConfig `yaml:"attestation"`
	Registry    RegistryConfig    `yaml:"registry"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// KeysConfig holds hex-encoded keys. Empty keys are generated at startup.
type KeysConfig struct {
	SigningKey string `yaml:"signing_key" validate:"omitempty,hexadecimal"`
}

// StorageConfig selects where accounts, submissions and facts are kept.
type StorageConfig struct {
	Backend    string                 `yaml:"backend" validate:"oneof=memory badger postgres"`
	BadgerPath string                 `yaml:"badger_path" validate:"required_if=Backend badger"`
	Postgres   storage.PostgresConfig `yaml:"postgres"`
}

// AttestationConfig selects how evaluation programs are verified.
type AttestationConfig struct {
	// Mode is one of:
	//   none  - trust the claimed measurement
	//   dummy - verify stand-in quotes from tdx.DummyProvider
	//   tdx   - verify TDX quotes
	Mode            string `yaml:"mode" validate:"oneof=none dummy tdx"`
	TDXRemoteURL    string `yaml:"tdx_remote_url" validate:"omitempty,url"`
	MeasurementsURL string `yaml:"measurements_url" validate:"omitempty,url"`
}

// RegistryConfig configures the participant registry.
type RegistryConfig struct {
	// TokenSecret keeps issued tokens valid across restarts. Generated if empty.
	TokenSecret string `yaml:"token_secret" validate:"omitempty,hexadecimal"`
}

// CoordinatorConfig configures the competition coordinator.
type CoordinatorConfig struct {
	RegistryURL      string            `yaml:"registry_url" validate:"omitempty,url"`
	AllowedOrigins   []string          `yaml:"allowed_origins"`
	FailureThreshold uint32            `yaml:"failure_threshold"`
	OpenDuration     time.Duration     `yaml:"open_duration"`
	Competition      CompetitionConfig `yaml:"competition"`
}

// DatasetConfig describes public data by URL and hex-encoded SHA-256 hash.
type DatasetConfig struct {
	URL  string `yaml:"url" validate:"required"`
	Hash string `yaml:"hash" validate:"required,hexadecimal"`
}

// EncryptedDatasetConfig describes encrypted data by URL and hex-encoded AES-256-GCM parameters.
type EncryptedDatasetConfig struct {
	URL string `yaml:"url" validate:"required"`
	Key string `yaml:"key" validate:"required,hexadecimal"`
	IV  string `yaml:"iv" validate:"required,hexadecimal"`
	Tag string `yaml:"tag" validate:"required,hexadecimal"`
}

// CompetitionConfig is the YAML form of competition.Config.
type CompetitionConfig struct {
	Registry          string                 `yaml:"registry"`
	TrainDataset      DatasetConfig          `yaml:"train_dataset"`
	TestDataset       EncryptedDatasetConfig `yaml:"test_dataset"`
	EvaluationProgram DatasetConfig          `yaml:"evaluation_program"`
	EndTimestamp      uint64                 `yaml:"end_timestamp" validate:"required"`
}

// ToCompetitionConfig decodes the hex fields.
func (c *CompetitionConfig) ToCompetitionConfig() (competition.Config, error) {
	var errs []error
	decode := func(field, value string) []byte {
		b, err := hex.DecodeString(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return b
	}

	config := competition.Config{
		Registry: c.Registry,
		TrainDataset: protocol.AuthenticatedData{
			URL:  c.TrainDataset.URL,
			Hash: decode("train_dataset.hash", c.TrainDataset.Hash),
		},
		TestDataset: protocol.EncryptedData{
			URL: c.TestDataset.URL,
			Cipher: protocol.Aes256GcmParams{
				Key: decode("test_dataset.key", c.TestDataset.Key),
				IV:  decode("test_dataset.iv", c.TestDataset.IV),
				Tag: decode("test_dataset.tag", c.TestDataset.Tag),
			},
		},
		EvaluationProgram: protocol.AuthenticatedData{
			URL:  c.EvaluationProgram.URL,
			Hash: decode("evaluation_program.hash", c.EvaluationProgram.Hash),
		},
		EndTimestamp: c.EndTimestamp,
	}
	if len(errs) > 0 {
		return competition.Config{}, fmt.Errorf("invalid competition: %v", errs)
	}
	return config, nil
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "info"},
		Storage:  StorageConfig{Backend: "memory"},
		Attestation: AttestationConfig{
			Mode: "none",
		},
		Coordinator: CoordinatorConfig{
			RegistryURL:      "http://localhost:8080",
			FailureThreshold: 5,
			OpenDuration:     30 * time.Second,
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the sections every binary uses.
func (c *Config) Validate() error {
	if err := validate.StructExcept(c, "Coordinator"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateCoordinator additionally checks the coordinator section.
func (c *Config) ValidateCoordinator() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c.Coordinator); err != nil {
		return fmt.Errorf("invalid coordinator config: %w", err)
	}
	if c.Coordinator.RegistryURL == "" {
		return fmt.Errorf("invalid coordinator config: registry_url is required")
	}
	return nil
}
