package testutil

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// =====================================
// Competition Generators
// =====================================

// CompetitionOption is a function that modifies a competition.Config
type CompetitionOption func(*competition.Config)

// WithRegistry sets the registry reference
func WithRegistry(registry string) CompetitionOption {
	return func(cfg *competition.Config) {
		cfg.Registry = registry
	}
}

// WithEndTimestamp sets the submission deadline
func WithEndTimestamp(end uint64) CompetitionOption {
	return func(cfg *competition.Config) {
		cfg.EndTimestamp = end
	}
}

// WithDeadlineIn sets the submission deadline relative to now
func WithDeadlineIn(d time.Duration) CompetitionOption {
	return func(cfg *competition.Config) {
		cfg.EndTimestamp = uint64(time.Now().Add(d).Unix())
	}
}

// WithEvaluationProgram sets the expected measurement of the evaluation program
func WithEvaluationProgram(measurement []byte) CompetitionOption {
	return func(cfg *competition.Config) {
		cfg.EvaluationProgram.Hash = measurement
	}
}

// WithTestDataset sets the encrypted test dataset
func WithTestDataset(dataset protocol.EncryptedData) CompetitionOption {
	return func(cfg *competition.Config) {
		cfg.TestDataset = dataset
	}
}

// DefaultProgramMeasurement is the evaluation program measurement of NewTestCompetition.
var DefaultProgramMeasurement = crypto.Digest([]byte("test evaluation program"))

// NewTestCompetition creates a competition config with test defaults.
// The default deadline is 1000 seconds after the epoch.
func NewTestCompetition(options ...CompetitionOption) competition.Config {
	cfg := competition.Config{
		Registry: "test-registry",
		TrainDataset: protocol.AuthenticatedData{
			URL:  "https://datasets.example.com/train.csv",
			Hash: crypto.Digest([]byte("train")),
		},
		TestDataset: protocol.EncryptedData{
			URL:    "https://datasets.example.com/test.enc",
			Cipher: protocol.Aes256GcmParams{Key: make([]byte, crypto.EnvelopeKeySize), IV: make([]byte, crypto.EnvelopeNonceSize), Tag: make([]byte, crypto.EnvelopeTagSize)},
		},
		EvaluationProgram: protocol.AuthenticatedData{
			URL:  "https://programs.example.com/eval",
			Hash: DefaultProgramMeasurement,
		},
		EndTimestamp: 1000,
	}

	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

// =====================================
// Cryptographic Generators
// =====================================

// GenerateRandomBytes generates random bytes of specified length
func GenerateRandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	_, err := rand.Read(b)
	return b, err
}

// GenerateTestKeyPair generates a key pair for testing
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}

// =====================================
// Submission Generators
// =====================================

// SealedModel is an encrypted submission together with its ciphertext.
type SealedModel struct {
	Descriptor protocol.EncryptedData
	Ciphertext []byte
}

// Open decrypts the model with the parameters in descriptor, as the evaluation program would.
func (m SealedModel) Open(descriptor protocol.EncryptedData) ([]byte, error) {
	return crypto.OpenEnvelope(m.Ciphertext, &crypto.EnvelopeKey{
		Key: descriptor.Cipher.Key,
		IV:  descriptor.Cipher.IV,
		Tag: descriptor.Cipher.Tag,
	})
}

// GenerateSealedModel encrypts plaintext as a submission published at url
func GenerateSealedModel(url string, plaintext []byte) (SealedModel, error) {
	ciphertext, key, err := crypto.SealEnvelope(plaintext)
	if err != nil {
		return SealedModel{}, err
	}
	return SealedModel{
		Descriptor: protocol.EncryptedData{
			URL:    url,
			Cipher: protocol.Aes256GcmParams{Key: key.Key, IV: key.IV, Tag: key.Tag},
		},
		Ciphertext: ciphertext,
	}, nil
}

// GenerateSealedModels generates one sealed model per participant name
func GenerateSealedModels(names ...string) (map[string]SealedModel, error) {
	models := make(map[string]SealedModel, len(names))
	for _, name := range names {
		m, err := GenerateSealedModel(fmt.Sprintf("https://models.example.com/%s", name), []byte("weights-of-"+name))
		if err != nil {
			return nil, err
		}
		models[name] = m
	}
	return models, nil
}

// =====================================
// Registry Stubs
// =====================================

// RegistryClientFunc adapts a function to competition.RegistryClient
type RegistryClientFunc func(ctx context.Context, token string) (protocol.UserInfo, error)

func (f RegistryClientFunc) VerifyToken(ctx context.Context, token string) (protocol.UserInfo, error) {
	return f(ctx, token)
}

// StaticRegistry treats every token as the name of its holder
var StaticRegistry = RegistryClientFunc(func(_ context.Context, token string) (protocol.UserInfo, error) {
	if token == "" {
		return protocol.UserInfo{}, protocol.ErrInvalidToken
	}
	return protocol.UserInfo{Name: token}, nil
})

// UnreachableRegistry fails every call as if the registry were down
var UnreachableRegistry = RegistryClientFunc(func(context.Context, string) (protocol.UserInfo, error) {
	return protocol.UserInfo{}, fmt.Errorf("connection refused: %w", protocol.ErrRegistryUnreachable)
})
