package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oasislabs/ready-layer-two/metrics"
	"go.uber.org/atomic"
)

// RouteRegistrar mounts a service's routes on the shared router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// HTTPServerConfig configures a BaseServer. Zero durations fall back to
// the defaults below.
type HTTPServerConfig struct {
	ListenAddr string
	// MetricsAddr serves /metrics separately; empty disables it.
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long Shutdown reports not ready before it stops
	// accepting connections.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

const (
	defaultGracefulShutdown = 10 * time.Second
	defaultReadTimeout      = 30 * time.Second
	defaultWriteTimeout     = 30 * time.Second
)

// BaseServer runs a registry or coordinator API next to the health and
// drain endpoints used by load balancers.
type BaseServer struct {
	cfg     HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
}

// New builds a server with every registrar mounted. The server starts ready.
func New(cfg *HTTPServerConfig, routeRegistrars ...RouteRegistrar) (*BaseServer, error) {
	c := *cfg
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.GracefulShutdownDuration == 0 {
		c.GracefulShutdownDuration = defaultGracefulShutdown
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}

	metricsSrv, err := metrics.New(metrics.PackageName, c.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: %w", err)
	}

	srv := &BaseServer{
		cfg:        c,
		log:        c.Log.With("addr", c.ListenAddr),
		metricsSrv: metricsSrv,
	}
	srv.srv = &http.Server{
		Addr:         c.ListenAddr,
		Handler:      srv.router(routeRegistrars),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	srv.isReady.Store(true)

	return srv, nil
}

func (srv *BaseServer) router(routeRegistrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(metrics.Middleware)

	for _, registrar := range routeRegistrars {
		registrar.RegisterRoutes(mux)
	}

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)
		r.Get("/livez", srv.handleLivez)
		r.Get("/readyz", srv.handleReadyz)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}

	return mux
}

func (srv *BaseServer) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q}`, status)
}

func (srv *BaseServer) handleLivez(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (srv *BaseServer) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !srv.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

// handleDrain only flips readiness; the process keeps serving until Shutdown.
func (srv *BaseServer) handleDrain(w http.ResponseWriter, _ *http.Request) {
	if !srv.isReady.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	srv.log.Info("marked not ready")
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *BaseServer) handleUndrain(w http.ResponseWriter, _ *http.Request) {
	if srv.isReady.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	srv.log.Info("marked ready")
	writeStatus(w, http.StatusOK, "ready")
}

// Ready reports whether /readyz currently succeeds.
func (srv *BaseServer) Ready() bool {
	return srv.isReady.Load()
}

// Handler returns the router, with component and health routes mounted.
func (srv *BaseServer) Handler() http.Handler {
	return srv.srv.Handler
}

// RunInBackground starts the API server, and the metrics server if configured.
func (srv *BaseServer) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.Info("starting metrics server", "metricsAddr", srv.cfg.MetricsAddr)
			if err := srv.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		srv.log.Info("starting HTTP server")
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown reports not ready for DrainDuration, then waits up to
// GracefulShutdownDuration for in-flight requests.
func (srv *BaseServer) Shutdown() {
	if srv.isReady.Swap(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("draining", "duration", srv.cfg.DrainDuration)
		time.Sleep(srv.cfg.DrainDuration)
	}

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server stopped")
	}

	if srv.cfg.MetricsAddr != "" {
		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("metrics server shutdown failed", "err", err)
		}
	}
}
