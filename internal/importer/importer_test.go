package importer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

type importFixture struct {
	importer *Importer
	outcomes repository.OutcomeRepository
	salaries repository.SalaryRepository
}

func newImportFixture(t *testing.T) importFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Outcome{}, &models.Salary{}))

	outcomes := repository.NewOutcomeRepository(db)
	salaries := repository.NewSalaryRepository(db)
	return importFixture{
		importer: New(outcomes, salaries, nil),
		outcomes: outcomes,
		salaries: salaries,
	}
}

// buildSheet writes rows to a fresh single-sheet workbook and returns the
// serialised bytes.
func buildSheet(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetList()[0]
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportOutcomes(t *testing.T) {
	fx := newImportFixture(t)
	ctx := context.Background()

	// 45778 is the serial for 2025-05-01.
	buf := buildSheet(t, [][]any{
		{"日期", "支付平台", "支付金额", "备注"},
		{45778, 0, 15.5, "lunch"},
		{"2025-05-02", "支付宝", 200, "rent share"},
	})

	n, err := fx.importer.ImportOutcomes(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := fx.outcomes.List(ctx)
	require.NoError(t, err)
	require.Len(t, found, 2)
	// Newest first.
	assert.Equal(t, models.PayPlatformAlipay, found[0].PayPlatform)
	assert.Equal(t, "rent share", found[0].Note)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), found[1].PayDate.UTC())
	assert.Equal(t, 15.5, found[1].Amount)
}

func TestImportOutcomes_ReimportIgnoresDuplicates(t *testing.T) {
	fx := newImportFixture(t)
	ctx := context.Background()

	rows := [][]any{
		{"日期", "支付平台", "支付金额", "备注"},
		{"2025-05-02", "微信", 42, "groceries"},
	}

	_, err := fx.importer.ImportOutcomes(ctx, buildSheet(t, rows))
	require.NoError(t, err)
	_, err = fx.importer.ImportOutcomes(ctx, buildSheet(t, rows))
	require.NoError(t, err)

	found, err := fx.outcomes.List(ctx)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestImportOutcomes_SkipsMalformedRows(t *testing.T) {
	fx := newImportFixture(t)
	ctx := context.Background()

	buf := buildSheet(t, [][]any{
		{"日期", "支付平台", "支付金额", "备注"},
		{"not a date", "微信", 10, "bad"},
		{"2025-05-03", "现金", 10, "bad platform"},
		{"2025-05-04", "微信", 10, "good"},
	})

	n, err := fx.importer.ImportOutcomes(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportOutcomes_MissingColumn(t *testing.T) {
	fx := newImportFixture(t)

	buf := buildSheet(t, [][]any{
		{"日期", "支付金额", "备注"},
		{"2025-05-02", 42, "groceries"},
	})

	_, err := fx.importer.ImportOutcomes(context.Background(), buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "支付平台")
}

func TestImportSalaries(t *testing.T) {
	fx := newImportFixture(t)
	ctx := context.Background()

	buf := buildSheet(t, [][]any{
		{"年份", "月份", "工资", "工时", "时薪"},
		{2025, 1, 8000, 160, 50},
		{2025, 2, 8200, 164, 50},
	})

	n, err := fx.importer.ImportSalaries(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := fx.salaries.List(ctx)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, 2, found[0].Month)
	assert.Equal(t, float64(8200), found[0].Salary)
	assert.Equal(t, float64(160), found[1].WorkingHours)
}

func TestImportSalaries_SkipsBadMonths(t *testing.T) {
	fx := newImportFixture(t)
	ctx := context.Background()

	buf := buildSheet(t, [][]any{
		{"年份", "月份", "工资", "工时", "时薪"},
		{2025, 13, 8000, 160, 50},
		{2025, 3, 8000, 160, 50},
	})

	n, err := fx.importer.ImportSalaries(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImport_EmptySheet(t *testing.T) {
	fx := newImportFixture(t)

	buf := buildSheet(t, [][]any{
		{"年份", "月份", "工资", "工时", "时薪"},
	})

	_, err := fx.importer.ImportSalaries(context.Background(), buf)
	assert.ErrorIs(t, err, ErrNoRows)
}
