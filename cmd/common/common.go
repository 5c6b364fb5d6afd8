// Package common provides shared utilities for the service binaries.
//
// This package contains helper functions used across the registry and
// coordinator binaries to reduce code duplication:
//
//   - YAML configuration loading and validation
//   - Key loading and generation for Ed25519 signing keys
//   - Logger, storage backend and attestation verifier factories
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/oasislabs/ready-layer-two/attestation"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/oasislabs/ready-layer-two/tdx"
	"go.uber.org/multierr"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		key := crypto.NewPrivateKeyFromBytes(keyBytes)
		if _, err := key.PublicKey(); err != nil {
			return nil, err
		}
		return key, nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// NewLogger creates the process logger.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// Backend owns the storage connection selected by StorageConfig.
type Backend struct {
	kind     string
	badger   *badger.DB
	postgres *storage.PostgresStore
}

// OpenBackend connects to the configured storage backend.
func OpenBackend(cfg StorageConfig) (*Backend, error) {
	b := &Backend{kind: cfg.Backend}
	var err error
	switch cfg.Backend {
	case "memory", "":
	case "badger":
		b.badger, err = storage.OpenBadger(cfg.BadgerPath)
	case "postgres":
		b.postgres, err = storage.NewPostgresStore(&cfg.Postgres)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// OpenMap returns the map for namespace on backend b.
func OpenMap[V any](b *Backend, namespace string) storage.Map[V] {
	switch {
	case b.badger != nil:
		return storage.NewBadgerMap[V](b.badger, namespace)
	case b.postgres != nil:
		return storage.NewPostgresMap[V](b.postgres, namespace)
	default:
		return storage.NewMemoryMap[V]()
	}
}

// EventSink returns the audit sink for b. Facts are always logged; they are
// kept in the backend database when there is one and in memory otherwise.
func (b *Backend) EventSink(log *slog.Logger) (audit.Sink, audit.Reader, error) {
	switch {
	case b.badger != nil:
		facts, err := storage.NewBadgerFactLog(b.badger)
		if err != nil {
			return nil, nil, err
		}
		return audit.MultiSink{facts, audit.NewLogSink(log)}, facts, nil
	case b.postgres != nil:
		facts := b.postgres.FactLog()
		return audit.MultiSink{facts, audit.NewLogSink(log)}, facts, nil
	default:
		facts := audit.NewMemorySink()
		return audit.MultiSink{facts, audit.NewLogSink(log)}, facts, nil
	}
}

// Close releases the backend connection.
func (b *Backend) Close() error {
	var err error
	if b.badger != nil {
		err = multierr.Append(err, b.badger.Close())
	}
	if b.postgres != nil {
		err = multierr.Append(err, b.postgres.Close())
	}
	return err
}

// NewAttestationProvider creates a TEE provider for cfg.Mode. The dummy
// provider reports measurement as the quoted MRTD.
func NewAttestationProvider(cfg AttestationConfig, measurement []byte) attestation.TEEProvider {
	switch cfg.Mode {
	case "tdx":
		if cfg.TDXRemoteURL != "" {
			return &tdx.RemoteDCAPProvider{URL: cfg.TDXRemoteURL, Timeout: 30 * time.Second}
		}
		return &tdx.TDXProvider{}
	case "dummy":
		return &tdx.DummyProvider{Measurement: measurement}
	}
	return nil
}

// NewMeasurementSource creates a measurement source from a URL.
// Returns nil if measurementsURL is empty, indicating no measurement
// verification should be performed.
func NewMeasurementSource(measurementsURL string) attestation.MeasurementSource {
	if measurementsURL != "" {
		return attestation.NewRemoteMeasurementSource(measurementsURL)
	}
	return nil
}

// NewVerifier creates the attestation verifier for evaluation programs
// presenting themselves to the coordinator identified by audience.
func NewVerifier(cfg AttestationConfig, audience string, log *slog.Logger) attestation.Verifier {
	if cfg.Mode == "none" || cfg.Mode == "" {
		log.Warn("attestation signatures are not verified; any caller claiming the evaluation program measurement is trusted")
		return attestation.Unverified{}
	}

	var allowed attestation.MeasurementSource
	if cfg.Mode == "dummy" && cfg.MeasurementsURL == "" {
		allowed = tdx.DemoMeasurementSource()
	} else {
		allowed = NewMeasurementSource(cfg.MeasurementsURL)
	}

	return &attestation.QuoteVerifier{
		Provider: NewAttestationProvider(cfg, nil),
		Audience: audience,
		Allowed:  allowed,
	}
}
