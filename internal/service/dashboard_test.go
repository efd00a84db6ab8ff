package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

func setupDashboard(t *testing.T) (*Dashboard, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Manuscript{},
		&models.Disqualification{},
		&models.Reward{},
		&models.Withdrawal{},
		&models.Outcome{},
		&models.Salary{},
	))

	svc := NewDashboard(
		repository.NewManuscriptRepository(db),
		repository.NewDisqualificationRepository(db),
		repository.NewRewardRepository(db),
		repository.NewWithdrawalRepository(db),
		repository.NewOutcomeRepository(db),
		repository.NewSalaryRepository(db),
	)
	return svc, db
}

func TestMonthlyIncome_CombinesSalaryAndWithdrawals(t *testing.T) {
	svc, db := setupDashboard(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Salary{Year: 2025, Month: 1, Salary: 8000}).Error)
	require.NoError(t, db.Create(&models.Salary{Year: 2025, Month: 2, Salary: 8200}).Error)
	require.NoError(t, db.Create(&models.Withdrawal{Year: 2025, Month: 1, Brokerage: 120, Type: models.WithdrawalBankCard}).Error)
	require.NoError(t, db.Create(&models.Withdrawal{Year: 2024, Month: 12, Brokerage: 50, Type: models.WithdrawalAlipay}).Error)

	monthly, err := svc.MonthlyIncome(ctx)
	require.NoError(t, err)
	require.Len(t, monthly, 3)
	// Newest period first; January combines both sources.
	assert.Equal(t, MonthlySum{Year: 2025, Month: 2, Total: 8200}, monthly[0])
	assert.Equal(t, MonthlySum{Year: 2025, Month: 1, Total: 8120}, monthly[1])
	assert.Equal(t, MonthlySum{Year: 2024, Month: 12, Total: 50}, monthly[2])

	yearly, err := svc.YearlyIncome(ctx)
	require.NoError(t, err)
	require.Len(t, yearly, 2)
	assert.Equal(t, YearlySum{Year: 2025, Total: 16320}, yearly[0])
	assert.Equal(t, YearlySum{Year: 2024, Total: 50}, yearly[1])
}

func TestMonthlyOutcome(t *testing.T) {
	svc, db := setupDashboard(t)
	ctx := context.Background()

	may := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Outcome{PayDate: may, PayPlatform: models.PayPlatformWeChat, Amount: 15.5, Note: "a"}).Error)
	require.NoError(t, db.Create(&models.Outcome{PayDate: may.AddDate(0, 0, 5), PayPlatform: models.PayPlatformAlipay, Amount: 4.5, Note: "b"}).Error)
	require.NoError(t, db.Create(&models.Outcome{PayDate: may.AddDate(0, -1, 0), PayPlatform: models.PayPlatformWeChat, Amount: 100, Note: "c"}).Error)

	monthly, err := svc.MonthlyOutcome(ctx)
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	assert.Equal(t, MonthlySum{Year: 2025, Month: 5, Total: 20}, monthly[0])
	assert.Equal(t, MonthlySum{Year: 2025, Month: 4, Total: 100}, monthly[1])

	yearly, err := svc.YearlyOutcome(ctx)
	require.NoError(t, err)
	require.Len(t, yearly, 1)
	assert.Equal(t, float64(120), yearly[0].Total)
}

func TestMonthlyRewards(t *testing.T) {
	svc, db := setupDashboard(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Reward{ProductName: "创作激励", Money: 10, GrantedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}).Error)
	require.NoError(t, db.Create(&models.Reward{ProductName: "充电计划", Money: 5, GrantedAt: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)}).Error)

	monthly, err := svc.MonthlyRewards(ctx)
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, MonthlySum{Year: 2025, Month: 3, Total: 15}, monthly[0])
}

func TestRewardsByProduct(t *testing.T) {
	svc, db := setupDashboard(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Reward{ProductName: "创作激励", Money: 10, GrantedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&models.Reward{ProductName: "创作激励", Money: 7, GrantedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&models.Reward{ProductName: "充电计划", Money: 5, GrantedAt: time.Now()}).Error)

	out, err := svc.RewardsByProduct(ctx, "激励")
	require.NoError(t, err)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, float64(17), out.Total)
}

func TestAggregates_EmptyTables(t *testing.T) {
	svc, _ := setupDashboard(t)
	ctx := context.Background()

	monthly, err := svc.MonthlyIncome(ctx)
	require.NoError(t, err)
	assert.Empty(t, monthly)

	yearly, err := svc.YearlyOutcome(ctx)
	require.NoError(t, err)
	assert.Empty(t, yearly)
}
