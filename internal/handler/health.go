package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/sqlchat/internal/database"
	"github.com/capitalize-ai/sqlchat/internal/model"
)

const healthProbeTimeout = 3 * time.Second

// Database is the part of a database adapter the health check probes.
type Database interface {
	Ping(ctx context.Context) error
	Dialect() string
}

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db    Database
	store Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Database, store Pinger) *HealthHandler {
	return &HealthHandler{
		db:    db,
		store: store,
	}
}

// Health handles GET /health and GET /api/health. It always answers 200 and
// reports each dependency in the body.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.check(r.Context()))
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.check(r.Context())
	if status.Database.Status != "ok" || status.Redis != "ok" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not ready",
			"database": status.Database.Status,
			"store":    status.Redis,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (h *HealthHandler) check(ctx context.Context) model.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	status := model.HealthStatus{
		API:      "ok",
		Database: model.DatabaseHealth{Type: h.db.Dialect()},
	}

	var g errgroup.Group
	g.Go(func() error {
		status.Database.Status = probe(ctx, h.db)
		return nil
	})
	g.Go(func() error {
		status.Redis = probe(ctx, h.store)
		return nil
	})
	_ = g.Wait()

	return status
}

func probe(ctx context.Context, p Pinger) string {
	err := p.Ping(ctx)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, database.ErrNotConnected):
		return "unreachable"
	default:
		return "error: " + err.Error()
	}
}
