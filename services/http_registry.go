package services

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/metrics"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// HTTPRegistry exposes an identity.Registry over HTTP.
type HTTPRegistry struct {
	registry *identity.Registry
	log      *slog.Logger
}

// NewHTTPRegistry wraps registry with HTTP handlers.
func NewHTTPRegistry(registry *identity.Registry, log *slog.Logger) *HTTPRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPRegistry{registry: registry, log: log}
}

// RegisterRoutes registers HTTP routes for the registry.
func (h *HTTPRegistry) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/sign-in", h.handleSignIn)
	r.Post("/verify-token", h.handleVerifyToken)
}

func (h *HTTPRegistry) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest[RegisterRequest](r)
	if err == nil {
		err = h.registry.Register(r.Context(), req.Name, req.Credential)
	}
	metrics.RecordOperation("register", resultLabel(err))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "registered"})
}

func (h *HTTPRegistry) handleSignIn(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest[SignInRequest](r)
	var issued string
	if err == nil {
		issued, err = h.registry.SignIn(r.Context(), req.Name, req.Credential, req.Audience)
	}
	metrics.RecordOperation("sign_in", resultLabel(err))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, SignInResponse{Token: issued})
}

// handleVerifyToken verifies a token on behalf of the service that signed the request.
// The signer's public key is the caller identity the token audience must match.
func (h *HTTPRegistry) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	signed, err := decodeRequest[protocol.Signed[VerifyTokenRequest]](r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	req, signer, err := signed.Recover()
	if err != nil {
		writeError(w, h.log, protocol.ErrPermissionDenied)
		return
	}

	rc := protocol.NewRequestContext(signer.String(), time.Now())
	info, err := h.registry.VerifyToken(r.Context(), rc, req.Token)
	metrics.RecordOperation("verify_token", resultLabel(err))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
