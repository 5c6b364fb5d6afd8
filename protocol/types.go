package protocol

import (
	"bytes"
	"maps"
	"time"
)

// AuthenticatedData is a public pointer to off-system content.
type AuthenticatedData struct {
	URL string `json:"url" yaml:"url"`
	// Hash is the expected hash of the data (or the measurement, if the data is a program).
	Hash []byte `json:"hash" yaml:"hash"`
}

// Matches reports whether the given digest equals the expected hash.
func (d AuthenticatedData) Matches(digest []byte) bool {
	return bytes.Equal(d.Hash, digest)
}

// Aes256GcmParams holds the key material for an AES-256-GCM ciphertext.
type Aes256GcmParams struct {
	Key []byte `json:"key" yaml:"key"`
	IV  []byte `json:"iv" yaml:"iv"`
	Tag []byte `json:"tag" yaml:"tag"`
}

// EncryptedData points to encrypted off-system data.
// The key is only made available to the evaluation program after successful attestation.
type EncryptedData struct {
	URL    string          `json:"url" yaml:"url"`
	Cipher Aes256GcmParams `json:"cipher" yaml:"cipher"`
}

// Clone returns a deep copy of the envelope.
func (e EncryptedData) Clone() EncryptedData {
	return EncryptedData{
		URL: e.URL,
		Cipher: Aes256GcmParams{
			Key: bytes.Clone(e.Cipher.Key),
			IV:  bytes.Clone(e.Cipher.IV),
			Tag: bytes.Clone(e.Cipher.Tag),
		},
	}
}

// AttestationReport is a claim, by a remote program, of its own measurement.
type AttestationReport struct {
	Measurement []byte `json:"measurement"`
	Signature   []byte `json:"signature"`
}

// UserInfo contains the verified claims of an auth token.
type UserInfo struct {
	Name string `json:"name"`
}

// PublicState is the part of a competition that can safely be returned to anyone.
type PublicState struct {
	Registry          string            `json:"registry"`
	TrainDataset      AuthenticatedData `json:"train_dataset"`
	EvaluationProgram AuthenticatedData `json:"evaluation_program"`
	EndTimestamp      uint64            `json:"end_timestamp"`
}

// EvaluationSecrets is released only to an attested evaluation program.
type EvaluationSecrets struct {
	TestDataset EncryptedData            `json:"test_dataset"`
	Submissions map[string]EncryptedData `json:"submissions"`
}

// Clone returns a deep copy of the secrets.
func (s *EvaluationSecrets) Clone() *EvaluationSecrets {
	subs := maps.Clone(s.Submissions)
	for name, sub := range subs {
		subs[name] = sub.Clone()
	}
	return &EvaluationSecrets{
		TestDataset: s.TestDataset.Clone(),
		Submissions: subs,
	}
}

// CompetitionCompleted is the public record of a competition result.
type CompetitionCompleted struct {
	// Winner is the username of the participant who made the winning submission.
	Winner string `json:"winner"`
}

// RequestContext carries the identity of the caller and the time at which the
// call entered the service.
type RequestContext struct {
	Caller string
	Time   time.Time
}

// NewRequestContext builds a request context.
func NewRequestContext(caller string, now time.Time) RequestContext {
	return RequestContext{Caller: caller, Time: now}
}
