package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// Client calls the registry and coordinator APIs on behalf of participants
// and the evaluation program. Failed calls return an *APIError.
type Client struct {
	registryURL    string
	coordinatorURL string
	httpClient     *http.Client
}

// NewClient creates a client. Either URL may be empty if that service is not used.
func NewClient(registryURL, coordinatorURL string) *Client {
	return &Client{
		registryURL:    strings.TrimRight(registryURL, "/"),
		coordinatorURL: strings.TrimRight(coordinatorURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, name, credential string) error {
	return c.do(ctx, http.MethodPost, c.registryURL+"/register", &RegisterRequest{Name: name, Credential: credential}, nil)
}

// SignIn obtains a token addressed to audience.
func (c *Client) SignIn(ctx context.Context, name, credential, audience string) (string, error) {
	var resp SignInResponse
	req := &SignInRequest{Name: name, Credential: credential, Audience: audience}
	if err := c.do(ctx, http.MethodPost, c.registryURL+"/sign-in", req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Identity returns the audience participants of this coordinator sign in for.
func (c *Client) Identity(ctx context.Context) (string, error) {
	var resp IdentityResponse
	if err := c.do(ctx, http.MethodGet, c.coordinatorURL+"/identity", nil, &resp); err != nil {
		return "", err
	}
	return resp.Identity, nil
}

// State returns the public state of the competition.
func (c *Client) State(ctx context.Context) (*StateResponse, error) {
	var resp StateResponse
	if err := c.do(ctx, http.MethodGet, c.coordinatorURL+"/public-state", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit submits model under the name token was issued to.
func (c *Client) Submit(ctx context.Context, token string, model protocol.EncryptedData) error {
	return c.do(ctx, http.MethodPost, c.coordinatorURL+"/submit", &SubmitRequest{Token: token, Model: model}, nil)
}

// BeginEvaluation fetches the evaluation secrets.
func (c *Client) BeginEvaluation(ctx context.Context, report protocol.AttestationReport) (*protocol.EvaluationSecrets, error) {
	var secrets protocol.EvaluationSecrets
	if err := c.do(ctx, http.MethodPost, c.coordinatorURL+"/begin-evaluation", &EvaluationRequest{Attestation: report}, &secrets); err != nil {
		return nil, err
	}
	return &secrets, nil
}

// AnnounceWinner declares winner.
func (c *Client) AnnounceWinner(ctx context.Context, report protocol.AttestationReport, winner string) error {
	return c.do(ctx, http.MethodPost, c.coordinatorURL+"/announce-winner", &AnnounceWinnerRequest{Attestation: report, Winner: winner}, nil)
}

// Events lists the public facts recorded by the coordinator.
func (c *Client) Events(ctx context.Context) ([]audit.Fact, error) {
	var resp EventsResponse
	if err := c.do(ctx, http.MethodGet, c.coordinatorURL+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, resp.Body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}
