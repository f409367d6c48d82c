package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"premiumblocker/internal/premium/engine"
	"premiumblocker/pkg/platform/httputil"
)

// Resolver decides connection attempts.
type Resolver interface {
	Resolve(ctx context.Context, attempt engine.ConnectionAttempt) engine.Verdict
}

// Handler exposes the engine to the proxy bridge.
type Handler struct {
	resolver Resolver
	logger   *slog.Logger
}

// New constructs a handler with its dependencies.
func New(resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		logger:   logger,
	}
}

// Register mounts the resolution endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/connections/resolve", h.HandleResolve)
}

// HandleResolve handles POST /v1/connections/resolve. Only malformed requests
// produce an error body; every well-formed attempt gets allow or deny.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, err := httputil.Decode[ResolveRequest](r)
	if err != nil {
		h.logger.DebugContext(ctx, "rejected resolve request", "error", err)
		httputil.WriteError(w, err)
		return
	}

	verdict := h.resolver.Resolve(ctx, req.Attempt())

	h.logger.InfoContext(ctx, "connection resolved",
		"username", req.Username,
		"stage", req.Stage,
		"action", verdict.Action,
		"source", verdict.Outcome.Source,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromVerdict(verdict))
}
