// Package tdx provides TEE providers for Intel TDX.
//
// TDXProvider and RemoteDCAPProvider produce real DCAP quotes; both verify
// quotes locally with github.com/google/go-tdx-guest. DummyProvider produces
// unsigned stand-in quotes with a configurable MRTD for tests and demos.
package tdx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-tdx-guest/abi"
	"github.com/google/go-tdx-guest/client"
	proto_checkconfig "github.com/google/go-tdx-guest/proto/checkconfig"
	proto "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/validate"
	"github.com/google/go-tdx-guest/verify"
	"github.com/oasislabs/ready-layer-two/attestation"
)

// TDXProvider generates and verifies attestations using the local TDX device.
type TDXProvider struct{}

func (p *TDXProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest generates a TDX quote binding the report data.
func (p *TDXProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &client.LinuxConfigFsQuoteProvider{}
	return qp.GetRawQuote(reportData)
}

// Verify validates a TDX quote and returns its measurement registers.
func (p *TDXProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	return VerifyDCAP(quote, expectedReportData[:])
}

// RemoteDCAPProvider obtains quotes from a remote attestation service and verifies locally.
type RemoteDCAPProvider struct {
	URL     string
	Timeout time.Duration
}

func (p *RemoteDCAPProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest requests a TDX quote from the remote attestation service.
func (p *RemoteDCAPProvider) Attest(reportData [64]byte) ([]byte, error) {
	url := fmt.Sprintf("%s/attest/%s", p.URL, hex.EncodeToString(reportData[:]))

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}

// Verify validates a TDX quote and returns its measurement registers.
func (p *RemoteDCAPProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	return VerifyDCAP(quote, expectedReportData[:])
}

func mustDecodeHex(data string) []byte {
	decoded, err := hex.DecodeString(data)
	if err != nil {
		panic(err.Error())
	}
	return decoded
}

// VerifyDCAP validates a TDX DCAP quote against expected report data.
// Register 0 is MRTD, registers 1-4 are RTMR0-RTMR3.
func VerifyDCAP(rawQuote []byte, expectedReportData []byte) (map[int][]byte, error) {
	anyQuote, err := abi.QuoteToProto(rawQuote)
	if err != nil {
		return nil, fmt.Errorf("could not convert raw bytes to QuoteV4: %w", err)
	}
	quote, ok := anyQuote.(*proto.QuoteV4)
	if !ok {
		return nil, errors.New("quote is not a QuoteV4")
	}

	config := &proto_checkconfig.Config{
		RootOfTrust: &proto_checkconfig.RootOfTrust{
			CheckCrl:      true,
			GetCollateral: true,
		},
		Policy: &proto_checkconfig.Policy{
			HeaderPolicy: &proto_checkconfig.HeaderPolicy{
				QeVendorId: mustDecodeHex("939a7233f79c4ca9940a0db3957f0607"),
			},
			TdQuoteBodyPolicy: &proto_checkconfig.TDQuoteBodyPolicy{
				TdAttributes: mustDecodeHex("0000001000000000"),
				ReportData:   expectedReportData,
			},
		},
	}

	options, err := verify.RootOfTrustToOptions(config.RootOfTrust)
	if err != nil {
		return nil, fmt.Errorf("converting root of trust to options: %w", err)
	}

	if err := verify.TdxQuote(quote, options); err != nil {
		return nil, fmt.Errorf("verifying TDX quote: %w", err)
	}

	opts, err := validate.PolicyToOptions(config.Policy)
	if err != nil {
		return nil, fmt.Errorf("converting policy to options: %w", err)
	}

	if err := validate.TdxQuote(quote, opts); err != nil {
		return nil, fmt.Errorf("validating TDX quote: %w", err)
	}

	body := quote.GetTdQuoteBody()
	return map[int][]byte{
		0: body.MrTd,
		1: body.Rtmrs[0],
		2: body.Rtmrs[1],
		3: body.Rtmrs[2],
		4: body.Rtmrs[3],
	}, nil
}

var dummyQuotePrefix = []byte("dummy-tdx-quote/v1")

// DummyProvider provides unsigned stand-in quotes for testing without TEE hardware.
// The quote reports Measurement as MRTD and fixed values for RTMR0-RTMR3.
type DummyProvider struct {
	Measurement []byte
}

func (p *DummyProvider) AttestationType() string {
	return "dummy-tdx"
}

// Attest returns prefix || report data || measurement.
func (p *DummyProvider) Attest(reportData [64]byte) ([]byte, error) {
	quote := make([]byte, 0, len(dummyQuotePrefix)+len(reportData)+len(p.Measurement))
	quote = append(quote, dummyQuotePrefix...)
	quote = append(quote, reportData[:]...)
	return append(quote, p.Measurement...), nil
}

// Verify checks that the quote binds the expected report data.
// Any measurement is accepted; the caller decides whether it is the right one.
func (p *DummyProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	if !bytes.HasPrefix(quote, dummyQuotePrefix) {
		return nil, errors.New("not a dummy quote")
	}
	rest := quote[len(dummyQuotePrefix):]
	if len(rest) < len(expectedReportData) || !bytes.Equal(rest[:len(expectedReportData)], expectedReportData[:]) {
		return nil, errors.New("attestation mismatch")
	}

	return map[int][]byte{
		0: bytes.Clone(rest[len(expectedReportData):]),
		1: {1},
		2: {2},
		3: {3},
		4: {4},
	}, nil
}

// DemoMeasurementSource accepts the RTMR values reported by DummyProvider.
// Only use in demo/testing environments.
func DemoMeasurementSource() *attestation.StaticMeasurementSource {
	return attestation.NewStaticMeasurementSource(attestation.PublishedMeasurements{
		{
			MeasurementID: "demo-dummy-attestation",
			Measurements: map[int]attestation.MeasurementValue{
				1: {Expected: "01"},
				2: {Expected: "02"},
				3: {Expected: "03"},
				4: {Expected: "04"},
			},
		},
	})
}
