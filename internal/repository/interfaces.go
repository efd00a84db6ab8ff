// Package repository defines data access interfaces for bilidash entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/MicroDaWay/bilidash/internal/models"
)

// ManuscriptRepository defines operations for manuscript persistence.
type ManuscriptRepository interface {
	// ReplaceAll drops the current snapshot and stores a fresh one.
	ReplaceAll(ctx context.Context, manuscripts []*models.Manuscript) error
	// List returns all manuscripts, newest first.
	List(ctx context.Context) ([]*models.Manuscript, error)
	// ListByTag returns manuscripts whose tag contains the given fragment.
	ListByTag(ctx context.Context, tag string) ([]*models.Manuscript, error)
	// ListUnderperforming returns manuscripts below the view threshold that
	// were posted before the cutoff, fewest views first.
	ListUnderperforming(ctx context.Context, maxView int64, postedBefore time.Time) ([]*models.Manuscript, error)
	// FindByTitle returns the manuscript with the exact title, or nil when
	// no such work is in the snapshot.
	FindByTitle(ctx context.Context, title string) (*models.Manuscript, error)
}

// DisqualificationRepository defines operations for disqualified-work
// persistence.
type DisqualificationRepository interface {
	// UpsertBatch stores entries, ignoring duplicates for the same title
	// and notice time.
	UpsertBatch(ctx context.Context, entries []*models.Disqualification) error
	// List returns all entries, newest first.
	List(ctx context.Context) ([]*models.Disqualification, error)
	// ListByTag returns entries whose tag contains the given fragment.
	ListByTag(ctx context.Context, tag string) ([]*models.Disqualification, error)
}

// RewardRepository defines operations for incentive payout persistence.
type RewardRepository interface {
	// DeleteAll clears the table ahead of a full re-sync.
	DeleteAll(ctx context.Context) error
	// Create stores one payout.
	Create(ctx context.Context, reward *models.Reward) error
	// List returns all payouts, newest first.
	List(ctx context.Context) ([]*models.Reward, error)
	// ListByProduct returns payouts whose product name contains the fragment.
	ListByProduct(ctx context.Context, product string) ([]*models.Reward, error)
}

// WithdrawalRepository defines operations for withdrawal persistence.
type WithdrawalRepository interface {
	// Upsert stores a withdrawal, ignoring duplicates for the same period
	// and channel.
	Upsert(ctx context.Context, withdrawal *models.Withdrawal) error
	// List returns all withdrawals, newest period first.
	List(ctx context.Context) ([]*models.Withdrawal, error)
}

// OutcomeRepository defines operations for expense persistence.
type OutcomeRepository interface {
	// UpsertBatch stores expenses, ignoring exact duplicates.
	UpsertBatch(ctx context.Context, outcomes []*models.Outcome) error
	// List returns all expenses, newest first.
	List(ctx context.Context) ([]*models.Outcome, error)
}

// SalaryRepository defines operations for salary persistence.
type SalaryRepository interface {
	// UpsertBatch stores salaries, ignoring duplicates for the same period.
	UpsertBatch(ctx context.Context, salaries []*models.Salary) error
	// List returns all salaries, newest period first.
	List(ctx context.Context) ([]*models.Salary, error)
}

// RecordingRepository defines operations for capture history persistence.
type RecordingRepository interface {
	// Create stores a new capture session row.
	Create(ctx context.Context, recording *models.Recording) error
	// Update stores session progress.
	Update(ctx context.Context, recording *models.Recording) error
	// List returns capture history, newest first.
	List(ctx context.Context) ([]*models.Recording, error)
}
