package models

import "time"

// Recording status values.
const (
	RecordingStatusWatching  = "watching"
	RecordingStatusRecording = "recording"
	RecordingStatusCompleted = "completed"
	RecordingStatusFailed    = "failed"
)

// Recording is the capture history of one live session, persisted so the
// dashboard can list past captures alongside the platform data.
type Recording struct {
	BaseModel

	RoomID      int64      `gorm:"not null;index" json:"room_id"`
	Performer   string     `gorm:"size:255;not null" json:"performer"`
	Title       string     `gorm:"size:512" json:"title"`
	Parts       int        `gorm:"default:0" json:"parts"`
	Status      string     `gorm:"size:32;not null;index" json:"status"`
	LastSegment string     `gorm:"size:4096" json:"last_segment,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}

func (Recording) TableName() string {
	return "recordings"
}
