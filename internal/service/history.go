package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

// History persists the lifecycle of capture sessions so past recordings
// show up on the dashboard.
type History struct {
	recordings repository.RecordingRepository
	logger     *slog.Logger
}

// NewHistory creates a History service.
func NewHistory(recordings repository.RecordingRepository, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{recordings: recordings, logger: logger}
}

// Begin stores a new session row and returns it for later updates.
// Watching sessions have not produced output yet, so their status
// reflects that.
func (h *History) Begin(ctx context.Context, roomID int64, performer, title string, watching bool) (*models.Recording, error) {
	status := models.RecordingStatusRecording
	if watching {
		status = models.RecordingStatusWatching
	}
	rec := &models.Recording{
		RoomID:    roomID,
		Performer: performer,
		Title:     title,
		Status:    status,
		StartedAt: time.Now(),
	}
	if err := h.recordings.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording session start: %w", err)
	}
	return rec, nil
}

// Progress stores the latest part count and segment for a session.
func (h *History) Progress(ctx context.Context, rec *models.Recording, parts int, segment string) {
	rec.Status = models.RecordingStatusRecording
	rec.Parts = parts
	rec.LastSegment = segment
	if err := h.recordings.Update(ctx, rec); err != nil {
		h.logger.Warn("Failed to update capture history", "id", rec.ID, "error", err)
	}
}

// Finish marks a session as completed or failed.
func (h *History) Finish(ctx context.Context, rec *models.Recording, failed bool) {
	now := time.Now()
	rec.StoppedAt = &now
	if failed {
		rec.Status = models.RecordingStatusFailed
	} else {
		rec.Status = models.RecordingStatusCompleted
	}
	if err := h.recordings.Update(ctx, rec); err != nil {
		h.logger.Warn("Failed to close capture history", "id", rec.ID, "error", err)
	}
}

// List returns the capture history, newest first.
func (h *History) List(ctx context.Context) ([]*models.Recording, error) {
	return h.recordings.List(ctx)
}
