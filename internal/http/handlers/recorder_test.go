package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/recorder"
	"github.com/MicroDaWay/bilidash/internal/repository"
	"github.com/MicroDaWay/bilidash/internal/service"
)

type fakeMerger struct {
	output string
	err    error
	got    []string
}

func (f *fakeMerger) MergeSegments(_ context.Context, paths []string) (string, error) {
	f.got = paths
	return f.output, f.err
}

func setupRecorderHandler(t *testing.T, merger Merger) *RecorderHandler {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Recording{}))

	history := service.NewHistory(repository.NewRecordingRepository(db), nil)
	return NewRecorderHandler(nil, merger, history)
}

func TestRecorderHandler_Start_InvalidURL(t *testing.T) {
	h := setupRecorderHandler(t, &fakeMerger{})

	input := &StartInput{}
	input.Body.RoomURL = "https://live.example.com/not-a-room"

	_, err := h.Start(context.Background(), input)
	require.Error(t, err)
}

func TestRecorderHandler_Merge(t *testing.T) {
	merger := &fakeMerger{output: "/data/streamer_merged_2025_07_01_23_00_00.mp4"}
	h := setupRecorderHandler(t, merger)

	input := &MergeInput{}
	input.Body.Files = []string{"/data/a_part2_x.mp4", "/data/a_part1_x.mp4"}

	out, err := h.Merge(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, merger.output, out.Body.Output)
	assert.Equal(t, input.Body.Files, merger.got)
}

func TestRecorderHandler_Merge_EmptySelection(t *testing.T) {
	h := setupRecorderHandler(t, &fakeMerger{err: recorder.ErrEmptySelection})

	input := &MergeInput{}
	input.Body.Files = []string{}

	_, err := h.Merge(context.Background(), input)
	require.Error(t, err)
}

func TestRecorderHandler_Merge_Failure(t *testing.T) {
	h := setupRecorderHandler(t, &fakeMerger{err: errors.New("unparseable name")})

	input := &MergeInput{}
	input.Body.Files = []string{"/data/odd.mp4"}

	_, err := h.Merge(context.Background(), input)
	require.Error(t, err)
}

func TestRecorderHandler_History(t *testing.T) {
	h := setupRecorderHandler(t, &fakeMerger{})
	ctx := context.Background()

	rec, err := h.history.Begin(ctx, 12345, "streamer", "title", false)
	require.NoError(t, err)
	h.history.Finish(ctx, rec, false)

	out, err := h.History(ctx, nil)
	require.NoError(t, err)
	require.Len(t, out.Body.Items, 1)
	assert.Equal(t, int64(12345), out.Body.Items[0].RoomID)
}
