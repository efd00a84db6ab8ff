// Package importer loads expense and salary spreadsheets into the
// database. Sheets are matched by their header row, so column order does
// not matter. Duplicate rows are ignored on re-import.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

// Spreadsheet header labels, as exported by the bookkeeping templates.
const (
	colPayDate     = "日期"
	colPayPlatform = "支付平台"
	colAmount      = "支付金额"
	colNote        = "备注"

	colYear         = "年份"
	colMonth        = "月份"
	colSalary       = "工资"
	colWorkingHours = "工时"
	colHourlyWage   = "时薪"
)

// ErrNoRows is returned when a sheet has a header but no data rows.
var ErrNoRows = errors.New("importer: sheet has no data rows")

// Importer loads spreadsheet exports into the expense and salary tables.
type Importer struct {
	outcomes repository.OutcomeRepository
	salaries repository.SalaryRepository
	logger   *slog.Logger
}

// New creates an Importer.
func New(outcomes repository.OutcomeRepository, salaries repository.SalaryRepository, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{outcomes: outcomes, salaries: salaries, logger: logger}
}

// ImportOutcomes reads an expense sheet and stores its rows. Returns the
// number of rows read from the sheet; rows already present are ignored by
// the unique index.
func (i *Importer) ImportOutcomes(ctx context.Context, r io.Reader) (int, error) {
	rows, header, err := readFirstSheet(r, colPayDate, colPayPlatform, colAmount, colNote)
	if err != nil {
		return 0, err
	}

	var batch []*models.Outcome
	for n, row := range rows {
		payDate, err := parseSheetDate(cell(row, header[colPayDate]))
		if err != nil {
			i.logger.Warn("Skipping expense row with bad date", "row", n+2, "error", err)
			continue
		}
		platform, err := parsePayPlatform(cell(row, header[colPayPlatform]))
		if err != nil {
			i.logger.Warn("Skipping expense row with bad platform", "row", n+2, "error", err)
			continue
		}
		amount, err := strconv.ParseFloat(cell(row, header[colAmount]), 64)
		if err != nil {
			i.logger.Warn("Skipping expense row with bad amount", "row", n+2, "error", err)
			continue
		}
		batch = append(batch, &models.Outcome{
			PayDate:     payDate,
			PayPlatform: platform,
			Amount:      amount,
			Note:        cell(row, header[colNote]),
		})
	}
	if len(batch) == 0 {
		return 0, ErrNoRows
	}

	if err := i.outcomes.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("storing expenses: %w", err)
	}
	i.logger.Info("Imported expense sheet", "rows", len(batch))
	return len(batch), nil
}

// ImportSalaries reads a salary sheet and stores its rows.
func (i *Importer) ImportSalaries(ctx context.Context, r io.Reader) (int, error) {
	rows, header, err := readFirstSheet(r, colYear, colMonth, colSalary, colWorkingHours, colHourlyWage)
	if err != nil {
		return 0, err
	}

	var batch []*models.Salary
	for n, row := range rows {
		year, err1 := strconv.Atoi(cell(row, header[colYear]))
		month, err2 := strconv.Atoi(cell(row, header[colMonth]))
		salary, err3 := strconv.ParseFloat(cell(row, header[colSalary]), 64)
		if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 {
			i.logger.Warn("Skipping malformed salary row", "row", n+2)
			continue
		}
		// Hours and wage are informational and may be blank.
		hours, _ := strconv.ParseFloat(cell(row, header[colWorkingHours]), 64)
		wage, _ := strconv.ParseFloat(cell(row, header[colHourlyWage]), 64)

		batch = append(batch, &models.Salary{
			Year:         year,
			Month:        month,
			Salary:       salary,
			WorkingHours: hours,
			HourlyWage:   wage,
		})
	}
	if len(batch) == 0 {
		return 0, ErrNoRows
	}

	if err := i.salaries.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("storing salaries: %w", err)
	}
	i.logger.Info("Imported salary sheet", "rows", len(batch))
	return len(batch), nil
}

// readFirstSheet returns the data rows of the workbook's first sheet and
// a header map from column label to index. All wanted labels must be
// present in the header row.
func readFirstSheet(r io.Reader, wanted ...string) ([][]string, map[string]int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("importer: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoRows
	}

	header := make(map[string]int, len(rows[0]))
	for idx, label := range rows[0] {
		header[strings.TrimSpace(label)] = idx
	}
	for _, label := range wanted {
		if _, ok := header[label]; !ok {
			return nil, nil, fmt.Errorf("importer: sheet is missing column %q", label)
		}
	}
	return rows[1:], header, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseSheetDate accepts either an Excel serial number or a plain date
// string. Serial day 0 is 1899-12-30.
func parseSheetDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, int(serial)), nil
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02", "01-02-06"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// parsePayPlatform accepts the numeric platform codes or their labels.
func parsePayPlatform(value string) (int, error) {
	switch value {
	case "0", "微信":
		return models.PayPlatformWeChat, nil
	case "1", "支付宝":
		return models.PayPlatformAlipay, nil
	case "2", "银行卡":
		return models.PayPlatformBankCard, nil
	default:
		return 0, fmt.Errorf("unrecognised platform %q", value)
	}
}
