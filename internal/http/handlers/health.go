package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/MicroDaWay/bilidash/internal/database"
	"github.com/MicroDaWay/bilidash/internal/recorder"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *database.DB
	recorder  *recorder.Recorder
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now()}
}

// WithDB sets the database used for health checks.
func (h *HealthHandler) WithDB(db *database.DB) *HealthHandler {
	h.db = db
	return h
}

// WithRecorder sets the recorder whose state is reported.
func (h *HealthHandler) WithRecorder(rec *recorder.Recorder) *HealthHandler {
	h.recorder = rec
	return h
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body struct {
		Status        string  `json:"status"`
		Timestamp     string  `json:"timestamp"`
		Version       string  `json:"version"`
		Uptime        string  `json:"uptime"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Database      string  `json:"database"`
		RecorderState string  `json:"recorder_state,omitempty"`
	}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth reports service health and component status.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	out := &HealthOutput{}
	out.Body.Status = "healthy"
	out.Body.Timestamp = now.UTC().Format(time.RFC3339)
	out.Body.Version = h.version
	out.Body.Uptime = uptime.Round(time.Second).String()
	out.Body.UptimeSeconds = uptime.Seconds()

	out.Body.Database = "ok"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			out.Body.Status = "degraded"
			out.Body.Database = "unreachable"
		}
	}

	if h.recorder != nil {
		if status, err := h.recorder.CurrentStatus(ctx); err == nil {
			out.Body.RecorderState = status.State
		} else {
			out.Body.RecorderState = "stopped"
		}
	}

	return out, nil
}
