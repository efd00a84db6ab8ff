package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MicroDaWay/bilidash/internal/models"
)

// manuscriptRepo implements ManuscriptRepository using GORM.
type manuscriptRepo struct {
	db *gorm.DB
}

// NewManuscriptRepository creates a new ManuscriptRepository.
func NewManuscriptRepository(db *gorm.DB) *manuscriptRepo {
	return &manuscriptRepo{db: db}
}

func (r *manuscriptRepo) ReplaceAll(ctx context.Context, manuscripts []*models.Manuscript) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Manuscript{}).Error; err != nil {
			return err
		}
		if len(manuscripts) == 0 {
			return nil
		}
		return tx.CreateInBatches(manuscripts, 100).Error
	})
	if err != nil {
		return fmt.Errorf("replacing manuscripts: %w", err)
	}
	return nil
}

func (r *manuscriptRepo) List(ctx context.Context) ([]*models.Manuscript, error) {
	var out []*models.Manuscript
	if err := r.db.WithContext(ctx).Order("posted_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing manuscripts: %w", err)
	}
	return out, nil
}

func (r *manuscriptRepo) ListByTag(ctx context.Context, tag string) ([]*models.Manuscript, error) {
	var out []*models.Manuscript
	err := r.db.WithContext(ctx).
		Where("tag LIKE ?", "%"+tag+"%").
		Order("posted_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing manuscripts by tag: %w", err)
	}
	return out, nil
}

func (r *manuscriptRepo) ListUnderperforming(ctx context.Context, maxView int64, postedBefore time.Time) ([]*models.Manuscript, error) {
	var out []*models.Manuscript
	err := r.db.WithContext(ctx).
		Where("view < ? AND posted_at <= ?", maxView, postedBefore).
		Order("view ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing underperforming manuscripts: %w", err)
	}
	return out, nil
}

func (r *manuscriptRepo) FindByTitle(ctx context.Context, title string) (*models.Manuscript, error) {
	var m models.Manuscript
	err := r.db.WithContext(ctx).Where("title = ?", title).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding manuscript by title: %w", err)
	}
	return &m, nil
}

// disqualificationRepo implements DisqualificationRepository using GORM.
type disqualificationRepo struct {
	db *gorm.DB
}

// NewDisqualificationRepository creates a new DisqualificationRepository.
func NewDisqualificationRepository(db *gorm.DB) *disqualificationRepo {
	return &disqualificationRepo{db: db}
}

func (r *disqualificationRepo) UpsertBatch(ctx context.Context, entries []*models.Disqualification) error {
	if len(entries) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(entries, 100).Error
	if err != nil {
		return fmt.Errorf("upserting disqualifications: %w", err)
	}
	return nil
}

func (r *disqualificationRepo) List(ctx context.Context) ([]*models.Disqualification, error) {
	var out []*models.Disqualification
	if err := r.db.WithContext(ctx).Order("posted_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing disqualifications: %w", err)
	}
	return out, nil
}

func (r *disqualificationRepo) ListByTag(ctx context.Context, tag string) ([]*models.Disqualification, error) {
	var out []*models.Disqualification
	err := r.db.WithContext(ctx).
		Where("tag LIKE ?", "%"+tag+"%").
		Order("posted_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing disqualifications by tag: %w", err)
	}
	return out, nil
}

// rewardRepo implements RewardRepository using GORM.
type rewardRepo struct {
	db *gorm.DB
}

// NewRewardRepository creates a new RewardRepository.
func NewRewardRepository(db *gorm.DB) *rewardRepo {
	return &rewardRepo{db: db}
}

func (r *rewardRepo) DeleteAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.Reward{}).Error; err != nil {
		return fmt.Errorf("clearing rewards: %w", err)
	}
	return nil
}

func (r *rewardRepo) Create(ctx context.Context, reward *models.Reward) error {
	if err := r.db.WithContext(ctx).Create(reward).Error; err != nil {
		return fmt.Errorf("creating reward: %w", err)
	}
	return nil
}

func (r *rewardRepo) List(ctx context.Context) ([]*models.Reward, error) {
	var out []*models.Reward
	if err := r.db.WithContext(ctx).Order("granted_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing rewards: %w", err)
	}
	return out, nil
}

func (r *rewardRepo) ListByProduct(ctx context.Context, product string) ([]*models.Reward, error) {
	var out []*models.Reward
	err := r.db.WithContext(ctx).
		Where("product_name LIKE ?", "%"+product+"%").
		Order("granted_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing rewards by product: %w", err)
	}
	return out, nil
}

// withdrawalRepo implements WithdrawalRepository using GORM.
type withdrawalRepo struct {
	db *gorm.DB
}

// NewWithdrawalRepository creates a new WithdrawalRepository.
func NewWithdrawalRepository(db *gorm.DB) *withdrawalRepo {
	return &withdrawalRepo{db: db}
}

func (r *withdrawalRepo) Upsert(ctx context.Context, withdrawal *models.Withdrawal) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(withdrawal).Error
	if err != nil {
		return fmt.Errorf("upserting withdrawal: %w", err)
	}
	return nil
}

func (r *withdrawalRepo) List(ctx context.Context) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	if err := r.db.WithContext(ctx).Order("year DESC, month DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing withdrawals: %w", err)
	}
	return out, nil
}

// outcomeRepo implements OutcomeRepository using GORM.
type outcomeRepo struct {
	db *gorm.DB
}

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(db *gorm.DB) *outcomeRepo {
	return &outcomeRepo{db: db}
}

func (r *outcomeRepo) UpsertBatch(ctx context.Context, outcomes []*models.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(outcomes, 100).Error
	if err != nil {
		return fmt.Errorf("upserting outcomes: %w", err)
	}
	return nil
}

func (r *outcomeRepo) List(ctx context.Context) ([]*models.Outcome, error) {
	var out []*models.Outcome
	if err := r.db.WithContext(ctx).Order("pay_date DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	return out, nil
}

// salaryRepo implements SalaryRepository using GORM.
type salaryRepo struct {
	db *gorm.DB
}

// NewSalaryRepository creates a new SalaryRepository.
func NewSalaryRepository(db *gorm.DB) *salaryRepo {
	return &salaryRepo{db: db}
}

func (r *salaryRepo) UpsertBatch(ctx context.Context, salaries []*models.Salary) error {
	if len(salaries) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(salaries, 100).Error
	if err != nil {
		return fmt.Errorf("upserting salaries: %w", err)
	}
	return nil
}

func (r *salaryRepo) List(ctx context.Context) ([]*models.Salary, error) {
	var out []*models.Salary
	if err := r.db.WithContext(ctx).Order("year DESC, month DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing salaries: %w", err)
	}
	return out, nil
}
