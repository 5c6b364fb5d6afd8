package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/metrics"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/sony/gobreaker"
)

// RegistryClientConfig configures an HTTPRegistryClient.
type RegistryClientConfig struct {
	// URL of the participant registry.
	URL string
	// SigningKey identifies the coordinator to the registry.
	SigningKey crypto.PrivateKey
	// Timeout bounds a single call. Defaults to 10 seconds.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// OpenDuration is how long an open circuit rejects calls before probing again.
	OpenDuration time.Duration
	Log          *slog.Logger
}

// HTTPRegistryClient verifies tokens with a remote participant registry.
// It never retries: failures to reach the registry, 5xx responses and an open
// circuit are reported as protocol.ErrRegistryUnreachable.
type HTTPRegistryClient struct {
	url        string
	signingKey crypto.PrivateKey
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger
}

type registryResponse struct {
	status int
	body   []byte
	// aborted is set when the caller's context ended before the registry answered.
	aborted error
}

// NewHTTPRegistryClient creates a registry client.
func NewHTTPRegistryClient(config RegistryClientConfig) *HTTPRegistryClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenDuration == 0 {
		config.OpenDuration = 30 * time.Second
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	log := config.Log.With("component", "registry-client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "participant-registry",
		Timeout: config.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &HTTPRegistryClient{
		url:        strings.TrimRight(config.URL, "/"),
		signingKey: config.SigningKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    breaker,
		log:        log,
	}
}

// Identity is the caller identity the registry sees for this client.
func (c *HTTPRegistryClient) Identity() (string, error) {
	pubKey, err := c.signingKey.PublicKey()
	if err != nil {
		return "", err
	}
	return pubKey.String(), nil
}

// VerifyToken asks the registry whether token was issued for this coordinator.
func (c *HTTPRegistryClient) VerifyToken(ctx context.Context, token string) (protocol.UserInfo, error) {
	start := time.Now()
	info, err := c.verifyToken(ctx, token)
	metrics.ObserveRegistryCall(start, resultLabel(err))
	return info, err
}

func (c *HTTPRegistryClient) verifyToken(ctx context.Context, token string) (protocol.UserInfo, error) {
	signed, err := protocol.NewSigned(c.signingKey, &VerifyTokenRequest{Token: token})
	if err != nil {
		return protocol.UserInfo{}, fmt.Errorf("could not sign request: %w", err)
	}
	body, err := json.Marshal(signed)
	if err != nil {
		return protocol.UserInfo{}, err
	}

	if err := ctx.Err(); err != nil {
		return protocol.UserInfo{}, fmt.Errorf("%w: %w", protocol.ErrRegistryUnreachable, err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, "/verify-token", body)
	})
	if err != nil {
		return protocol.UserInfo{}, fmt.Errorf("%w: %w", protocol.ErrRegistryUnreachable, err)
	}

	resp := result.(*registryResponse)
	if resp.aborted != nil {
		return protocol.UserInfo{}, fmt.Errorf("%w: %w", protocol.ErrRegistryUnreachable, resp.aborted)
	}
	if resp.status != http.StatusOK {
		apiErr := decodeError(resp.status, bytes.NewReader(resp.body))
		if _, known := protocol.ErrorFromCode(apiErr.Code); !known {
			return protocol.UserInfo{}, fmt.Errorf("%w: %w", protocol.ErrRegistryUnreachable, apiErr)
		}
		return protocol.UserInfo{}, apiErr
	}

	var info protocol.UserInfo
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return protocol.UserInfo{}, fmt.Errorf("%w: could not decode registry response: %w", protocol.ErrRegistryUnreachable, err)
	}
	return info, nil
}

// post returns an error only when the registry failed to answer properly.
// Client errors are returned as responses so they do not trip the circuit.
func (c *HTTPRegistryClient) post(ctx context.Context, path string, body []byte) (*registryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation by the caller says nothing about registry health.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &registryResponse{aborted: ctxErr}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("registry returned %d", resp.StatusCode)
	}

	return &registryResponse{status: resp.StatusCode, body: respBody}, nil
}
