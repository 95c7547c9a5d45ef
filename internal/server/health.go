package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/desertthunder/nostodon/internal/tasks"
)

// Pinger checks store connectivity.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthReporter exposes a listener's supervisor state.
type HealthReporter interface {
	Health() tasks.Health
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status   string         `json:"status"`
	Database string         `json:"database"`
	Sources  []tasks.Health `json:"sources"`
}

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDown     = "unavailable"
)

// HealthHandler serves /healthz.
//
// The response is 503 when the database is unreachable and "degraded" with 200 when any source
// listener is unhealthy.
type HealthHandler struct {
	db        Pinger
	listeners []HealthReporter
}

// NewHealthHandler creates a health handler over db and listeners.
func NewHealthHandler(db Pinger, listeners ...HealthReporter) *HealthHandler {
	return &HealthHandler{db: db, listeners: listeners}
}

func (h *HealthHandler) Routes() []string {
	return []string{"GET /healthz"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := HealthStatus{Status: statusOK, Database: statusOK, Sources: []tasks.Health{}}
	code := http.StatusOK

	for _, l := range h.listeners {
		health := l.Health()
		body.Sources = append(body.Sources, health)
		if !health.State.Healthy() {
			body.Status = statusDegraded
		}
	}

	if err := h.db.HealthCheck(r.Context()); err != nil {
		body.Status = statusDown
		body.Database = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
