package services

import (
	"log/slog"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/oasislabs/ready-layer-two/competition"
	"github.com/oasislabs/ready-layer-two/metrics"
	"github.com/oasislabs/ready-layer-two/protocol"
)

// HTTPCoordinatorConfig configures the coordinator HTTP service.
type HTTPCoordinatorConfig struct {
	// Identity is the audience participants must sign in for.
	Identity string
	// Clock timestamps requests as they arrive. Defaults to the wall clock.
	Clock clock.Clock
	// Events, if set, backs GET /events.
	Events audit.Reader
	// AllowedOrigins for browser clients. Defaults to any origin.
	AllowedOrigins []string
	Log            *slog.Logger
}

// HTTPCoordinator exposes a competition.Coordinator over HTTP.
type HTTPCoordinator struct {
	coordinator *competition.Coordinator
	identity    string
	clock       clock.Clock
	events      audit.Reader
	origins     []string
	log         *slog.Logger
}

// NewHTTPCoordinator wraps coordinator with HTTP handlers.
func NewHTTPCoordinator(coordinator *competition.Coordinator, config HTTPCoordinatorConfig) *HTTPCoordinator {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	return &HTTPCoordinator{
		coordinator: coordinator,
		identity:    config.Identity,
		clock:       config.Clock,
		events:      config.Events,
		origins:     config.AllowedOrigins,
		log:         config.Log,
	}
}

// RegisterRoutes mounts the coordinator API at the root of r.
// CORS preflight requests are answered for every route.
func (h *HTTPCoordinator) RegisterRoutes(r chi.Router) {
	api := chi.NewRouter()
	api.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	api.Get("/public-state", h.handlePublicState)
	api.Get("/identity", h.handleIdentity)
	api.Get("/events", h.handleEvents)
	api.Post("/submit", h.handleSubmit)
	api.Post("/begin-evaluation", h.handleBeginEvaluation)
	api.Post("/announce-winner", h.handleAnnounceWinner)

	r.Mount("/", api)
}

// requestContext samples the clock once, as the request enters the service.
func (h *HTTPCoordinator) requestContext(r *http.Request) protocol.RequestContext {
	return protocol.NewRequestContext(r.RemoteAddr, h.clock.Now())
}

func (h *HTTPCoordinator) handlePublicState(w http.ResponseWriter, r *http.Request) {
	rc := h.requestContext(r)
	writeJSON(w, http.StatusOK, StateResponse{
		PublicState: h.coordinator.PublicState(),
		State:       h.coordinator.State(rc),
		Now:         uint64(rc.Time.Unix()),
	})
}

func (h *HTTPCoordinator) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IdentityResponse{Identity: h.identity})
}

func (h *HTTPCoordinator) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: "events are not retained"})
		return
	}

	facts, err := h.events.Facts(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if facts == nil {
		facts = []audit.Fact{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: facts})
}

func (h *HTTPCoordinator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	rc := h.requestContext(r)

	req, err := decodeRequest[SubmitRequest](r)
	if err == nil {
		err = h.coordinator.Submit(r.Context(), rc, req.Token, req.Model)
	}
	metrics.RecordOperation("submit", resultLabel(err))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "submitted"})
}

func (h *HTTPCoordinator) handleBeginEvaluation(w http.ResponseWriter, r *http.Request) {
	rc := h.requestContext(r)

	req, err := decodeRequest[EvaluationRequest](r)
	var secrets *protocol.EvaluationSecrets
	if err == nil {
		secrets, err = h.coordinator.BeginEvaluation(r.Context(), rc, req.Attestation)
	}
	metrics.RecordOperation("begin_evaluation", resultLabel(err))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, secrets)
}

func (h *HTTPCoordinator) handleAnnounceWinner(w http.ResponseWriter, r *http.Request) {
	rc := h.requestContext(r)

	req, err := decodeRequest[AnnounceWinnerRequest](r)
	if err == nil {
		err = h.coordinator.AnnounceWinner(r.Context(), rc, req.Attestation, req.Winner)
	}
	metrics.RecordOperation("announce_winner", resultLabel(err))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "announced"})
}
