package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/MicroDaWay/bilidash/internal/models"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

func (r *recordingRepo) Create(ctx context.Context, recording *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(recording).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

func (r *recordingRepo) Update(ctx context.Context, recording *models.Recording) error {
	if err := r.db.WithContext(ctx).Save(recording).Error; err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}
	return nil
}

func (r *recordingRepo) List(ctx context.Context) ([]*models.Recording, error) {
	var out []*models.Recording
	if err := r.db.WithContext(ctx).Order("started_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return out, nil
}
