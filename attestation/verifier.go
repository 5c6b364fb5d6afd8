package attestation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/oasislabs/ready-layer-two/protocol"
)

// RegisterMRTD is the index of the TD measurement register in Measurements.
const RegisterMRTD = 0

var (
	ErrNoEvidence          = errors.New("attestation carries no evidence")
	ErrMeasurementMismatch = errors.New("quoted measurement does not match claim")
)

// Verifier checks the evidence behind an attestation report.
type Verifier interface {
	Verify(ctx context.Context, report protocol.AttestationReport) error
}

// TEEProvider abstracts attestation generation and verification.
type TEEProvider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// Unverified accepts any report without looking at its signature.
type Unverified struct{}

func (Unverified) Verify(context.Context, protocol.AttestationReport) error {
	return nil
}

// ReportDataForEvaluation binds a quote to the coordinator it is presented to
// and the measurement it claims.
func ReportDataForEvaluation(audience string, measurement []byte) [64]byte {
	h := sha256.New()
	h.Write([]byte("ready-layer-two/evaluation/v1"))
	for _, field := range [][]byte{[]byte(audience), measurement} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write(field)
	}

	var reportData [64]byte
	copy(reportData[:], h.Sum(nil))
	return reportData
}

// AttestEvaluation produces a report for measurement using provider.
// Used by the evaluation program when it runs inside a TEE.
func AttestEvaluation(provider TEEProvider, audience string, measurement []byte) (protocol.AttestationReport, error) {
	quote, err := provider.Attest(ReportDataForEvaluation(audience, measurement))
	if err != nil {
		return protocol.AttestationReport{}, fmt.Errorf("could not attest evaluation: %w", err)
	}
	return protocol.AttestationReport{
		Measurement: bytes.Clone(measurement),
		Signature:   quote,
	}, nil
}

// QuoteVerifier verifies reports whose signature is a TEE quote.
type QuoteVerifier struct {
	Provider TEEProvider
	// Audience is the identity of the coordinator the quote must be bound to.
	Audience string
	// Allowed optionally pins the remaining measurement registers.
	Allowed MeasurementSource
}

func (v *QuoteVerifier) Verify(_ context.Context, report protocol.AttestationReport) error {
	if len(report.Signature) == 0 {
		return ErrNoEvidence
	}

	measurements, err := v.Provider.Verify(report.Signature, ReportDataForEvaluation(v.Audience, report.Measurement))
	if err != nil {
		return fmt.Errorf("could not verify quote: %w", err)
	}

	if !bytes.Equal(measurements[RegisterMRTD], report.Measurement) {
		return ErrMeasurementMismatch
	}

	if v.Allowed != nil {
		allowed, err := v.Allowed.GetAllowedMeasurements()
		if err != nil {
			return fmt.Errorf("could not fetch allowed measurements: %w", err)
		}
		if _, err := VerifyMeasurementsMatch(allowed, measurements); err != nil {
			return fmt.Errorf("attestation is not allowed: %w", err)
		}
	}

	return nil
}
