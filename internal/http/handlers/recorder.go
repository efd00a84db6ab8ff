// Package handlers provides the HTTP API handlers for bilidash.
package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/platform"
	"github.com/MicroDaWay/bilidash/internal/recorder"
	"github.com/MicroDaWay/bilidash/internal/service"
)

// Merger turns finalized segments into a single file.
type Merger interface {
	MergeSegments(ctx context.Context, paths []string) (string, error)
}

// RecorderHandler exposes the live-capture recorder over HTTP.
type RecorderHandler struct {
	recorder *recorder.Recorder
	merger   Merger
	history  *service.History

	mu      sync.Mutex
	session *models.Recording
}

// NewRecorderHandler creates a recorder handler.
func NewRecorderHandler(rec *recorder.Recorder, merger Merger, history *service.History) *RecorderHandler {
	return &RecorderHandler{recorder: rec, merger: merger, history: history}
}

// Register registers the recorder routes with the API.
func (h *RecorderHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startRecorder",
		Method:      "POST",
		Path:        "/api/v1/recorder/start",
		Summary:     "Start capturing a room",
		Description: "Resolves the room from its URL and starts capturing, or watches an offline room until it goes live",
		Tags:        []string{"Recorder"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopRecorder",
		Method:      "POST",
		Path:        "/api/v1/recorder/stop",
		Summary:     "Stop the current capture",
		Tags:        []string{"Recorder"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "getRecorderStatus",
		Method:      "GET",
		Path:        "/api/v1/recorder/status",
		Summary:     "Get recorder status",
		Tags:        []string{"Recorder"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "mergeSegments",
		Method:      "POST",
		Path:        "/api/v1/recorder/merge",
		Summary:     "Merge finalized segments",
		Description: "Concatenates the given segment files into one, ordered by part number",
		Tags:        []string{"Recorder"},
	}, h.Merge)

	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      "GET",
		Path:        "/api/v1/recorder/history",
		Summary:     "List capture history",
		Tags:        []string{"Recorder"},
	}, h.History)
}

// StartInput is the input for starting a capture.
type StartInput struct {
	Body struct {
		RoomURL string `json:"room_url" doc:"Live room URL, e.g. https://live.example.com/12345"`
	}
}

// StartOutput is the output for starting a capture.
type StartOutput struct {
	Body struct {
		RoomID    int64  `json:"room_id"`
		Performer string `json:"performer"`
		Title     string `json:"title,omitempty"`
		CoverURL  string `json:"cover_url,omitempty"`
		LiveTime  string `json:"live_time,omitempty"`
		AreaName  string `json:"area_name,omitempty"`
		Watching  bool   `json:"watching"`
		Segment   string `json:"segment,omitempty"`
	}
}

// Start resolves the room URL and starts or resumes a capture.
func (h *RecorderHandler) Start(ctx context.Context, input *StartInput) (*StartOutput, error) {
	roomID, err := platform.ParseRoomID(input.Body.RoomURL)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid room URL", err)
	}

	result, err := h.recorder.Start(ctx, roomID)
	if err != nil {
		if errors.Is(err, recorder.ErrNotRunning) {
			return nil, huma.Error503ServiceUnavailable("recorder is not running")
		}
		return nil, huma.Error502BadGateway("starting capture: " + err.Error())
	}

	h.beginSession(ctx, roomID, result)

	out := &StartOutput{}
	out.Body.RoomID = roomID
	out.Body.Performer = result.Performer
	out.Body.Title = result.Title
	out.Body.CoverURL = result.CoverURL
	out.Body.LiveTime = result.LiveTime
	out.Body.AreaName = result.AreaName
	out.Body.Watching = result.Watching
	out.Body.Segment = result.SegmentPath
	return out, nil
}

// StopInput is the input for stopping a capture.
type StopInput struct{}

// StopOutput is the output for stopping a capture.
type StopOutput struct {
	Body struct {
		Stopped bool `json:"stopped"`
	}
}

// Stop ends the current capture or watch.
func (h *RecorderHandler) Stop(ctx context.Context, _ *StopInput) (*StopOutput, error) {
	h.closeSession(ctx)

	if err := h.recorder.Stop(ctx); err != nil {
		if errors.Is(err, recorder.ErrNotRunning) {
			return nil, huma.Error503ServiceUnavailable("recorder is not running")
		}
		return nil, huma.Error500InternalServerError("stopping capture: " + err.Error())
	}

	out := &StopOutput{}
	out.Body.Stopped = true
	return out, nil
}

// StatusInput is the input for the status endpoint.
type StatusInput struct{}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body struct {
		State     string  `json:"state"`
		Recording bool    `json:"recording"`
		Watching  bool    `json:"watching"`
		RoomID    int64   `json:"room_id,omitempty"`
		Performer string  `json:"performer,omitempty"`
		Segment   string  `json:"segment,omitempty"`
		Part      int     `json:"part,omitempty"`
		CPU       float64 `json:"cpu_percent,omitempty"`
		MemoryMB  float64 `json:"memory_mb,omitempty"`
	}
}

// Status reports the recorder state and capture process stats.
func (h *RecorderHandler) Status(ctx context.Context, _ *StatusInput) (*StatusOutput, error) {
	status, err := h.recorder.CurrentStatus(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("recorder is not running")
	}

	h.updateSession(ctx, status)

	out := &StatusOutput{}
	out.Body.State = status.State
	out.Body.Recording = status.Recording
	out.Body.Watching = status.Watching
	out.Body.RoomID = status.RoomID
	out.Body.Performer = status.Performer
	out.Body.Segment = status.Segment
	out.Body.Part = status.Part
	if status.Stats != nil {
		out.Body.CPU = status.Stats.CPUPercent
		out.Body.MemoryMB = float64(status.Stats.MemoryRSSBytes) / (1 << 20)
	}
	return out, nil
}

// MergeInput is the input for merging segments.
type MergeInput struct {
	Body struct {
		Files []string `json:"files" minItems:"1" doc:"Finalized segment paths to merge"`
	}
}

// MergeOutput is the output for merging segments.
type MergeOutput struct {
	Body struct {
		Output string `json:"output"`
	}
}

// Merge concatenates finalized segments in part order.
func (h *RecorderHandler) Merge(ctx context.Context, input *MergeInput) (*MergeOutput, error) {
	output, err := h.merger.MergeSegments(ctx, input.Body.Files)
	if err != nil {
		if errors.Is(err, recorder.ErrEmptySelection) {
			return nil, huma.Error400BadRequest("no files to merge")
		}
		return nil, huma.Error422UnprocessableEntity("merging segments: " + err.Error())
	}

	out := &MergeOutput{}
	out.Body.Output = output
	return out, nil
}

// HistoryInput is the input for listing capture history.
type HistoryInput struct{}

// HistoryOutput is the output for listing capture history.
type HistoryOutput struct {
	Body struct {
		Items []*models.Recording `json:"items"`
	}
}

// History lists past capture sessions, newest first.
func (h *RecorderHandler) History(ctx context.Context, _ *HistoryInput) (*HistoryOutput, error) {
	items, err := h.history.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing history: " + err.Error())
	}

	out := &HistoryOutput{}
	out.Body.Items = items
	return out, nil
}

func (h *RecorderHandler) beginSession(ctx context.Context, roomID int64, result recorder.StartResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil {
		return
	}
	rec, err := h.history.Begin(ctx, roomID, result.Performer, result.Title, result.Watching)
	if err == nil {
		h.session = rec
	}
}

func (h *RecorderHandler) updateSession(ctx context.Context, status recorder.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil || !status.Recording {
		return
	}
	h.history.Progress(ctx, h.session, status.Part, status.Segment)
}

func (h *RecorderHandler) closeSession(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return
	}
	h.history.Finish(ctx, h.session, false)
	h.session = nil
}
