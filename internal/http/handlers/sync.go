package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/MicroDaWay/bilidash/internal/ingest"
)

// SyncHandler triggers platform data refreshes.
type SyncHandler struct {
	syncer *ingest.Syncer
	logger *slog.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(syncer *ingest.Syncer, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{syncer: syncer, logger: logger}
}

// Register registers the sync routes with the API.
func (h *SyncHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "triggerSync",
		Method:        "POST",
		Path:          "/api/v1/sync",
		Summary:       "Trigger a platform sync",
		Description:   "Starts a full refresh of manuscripts and earnings in the background",
		Tags:          []string{"Sync"},
		DefaultStatus: 202,
	}, h.Trigger)
}

// TriggerInput is the input for triggering a sync.
type TriggerInput struct{}

// TriggerOutput is the output for triggering a sync.
type TriggerOutput struct {
	Body struct {
		Started bool `json:"started"`
	}
}

// Trigger starts a background sync unless one is already running.
func (h *SyncHandler) Trigger(_ context.Context, _ *TriggerInput) (*TriggerOutput, error) {
	if h.syncer.InProgress() {
		return nil, huma.Error409Conflict("a sync is already running")
	}

	// The sync outlives the request, so it gets its own context.
	go func() {
		if err := h.syncer.SyncAll(context.Background()); err != nil {
			h.logger.Error("Background sync failed", "error", err)
		}
	}()

	out := &TriggerOutput{}
	out.Body.Started = true
	return out, nil
}
