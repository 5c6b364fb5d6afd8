package services

import (
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// RegisterRequest creates an account with the participant registry.
type RegisterRequest struct {
	Name       string `json:"name" validate:"required"`
	Credential string `json:"credential"`
}

// SignInRequest asks the participant registry for a token addressed to Audience.
type SignInRequest struct {
	Name       string `json:"name"`
	Credential string `json:"credential"`
	Audience   string `json:"audience" validate:"required"`
}

// SignInResponse carries an issued token.
type SignInResponse struct {
	Token string `json:"token"`
}

// VerifyTokenRequest is sent, signed, by the service a token was issued for.
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// IdentityResponse carries the identity of a coordinator. Participants sign
// in with it as the audience.
type IdentityResponse struct {
	Identity string `json:"identity"`
}

// StateResponse describes a competition at the time of the request.
type StateResponse struct {
	protocol.PublicState
	State competition.State `json:"state"`
	Now   uint64            `json:"now"`
}

// SubmitRequest submits an encrypted model on behalf of the token subject.
type SubmitRequest struct {
	Token string                 `json:"token"`
	Model protocol.EncryptedData `json:"model"`
}

// EvaluationRequest is presented by the evaluation program.
type EvaluationRequest struct {
	Attestation protocol.AttestationReport `json:"attestation"`
}

// AnnounceWinnerRequest declares the winner of a closed competition.
type AnnounceWinnerRequest struct {
	Attestation protocol.AttestationReport `json:"attestation"`
	Winner      string                     `json:"winner"`
}

// EventsResponse lists public facts, oldest first.
type EventsResponse struct {
	Events []audit.Fact `json:"events"`
}

// StatusResponse acknowledges an operation without a result.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
