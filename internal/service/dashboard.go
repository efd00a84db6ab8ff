// Package service implements the dashboard business logic on top of the
// repositories. Period aggregates are computed in Go rather than SQL so
// they behave identically across database backends; the data volumes of a
// single creator's dashboard are small enough that this never matters.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

// MonthlySum is one month's aggregated amount.
type MonthlySum struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Total float64 `json:"total"`
}

// YearlySum is one year's aggregated amount.
type YearlySum struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

// RewardBreakdown lists the payouts matching a product filter together
// with their combined amount.
type RewardBreakdown struct {
	Items []*models.Reward `json:"items"`
	Total float64          `json:"total"`
}

// Dashboard exposes the read side of the creator dashboard.
type Dashboard struct {
	manuscripts       repository.ManuscriptRepository
	disqualifications repository.DisqualificationRepository
	rewards           repository.RewardRepository
	withdrawals       repository.WithdrawalRepository
	outcomes          repository.OutcomeRepository
	salaries          repository.SalaryRepository
}

// NewDashboard creates a Dashboard service.
func NewDashboard(
	manuscripts repository.ManuscriptRepository,
	disqualifications repository.DisqualificationRepository,
	rewards repository.RewardRepository,
	withdrawals repository.WithdrawalRepository,
	outcomes repository.OutcomeRepository,
	salaries repository.SalaryRepository,
) *Dashboard {
	return &Dashboard{
		manuscripts:       manuscripts,
		disqualifications: disqualifications,
		rewards:           rewards,
		withdrawals:       withdrawals,
		outcomes:          outcomes,
		salaries:          salaries,
	}
}

// Manuscripts lists all synced works, newest first.
func (d *Dashboard) Manuscripts(ctx context.Context) ([]*models.Manuscript, error) {
	return d.manuscripts.List(ctx)
}

// ManuscriptsByTag lists works whose tag contains the fragment.
func (d *Dashboard) ManuscriptsByTag(ctx context.Context, tag string) ([]*models.Manuscript, error) {
	return d.manuscripts.ListByTag(ctx, tag)
}

// UnderperformingManuscripts lists works below the view threshold that
// were posted before the cutoff.
func (d *Dashboard) UnderperformingManuscripts(ctx context.Context, maxView int64, postedBefore time.Time) ([]*models.Manuscript, error) {
	return d.manuscripts.ListUnderperforming(ctx, maxView, postedBefore)
}

// Disqualifications lists all works pulled from disqualification notices,
// newest first.
func (d *Dashboard) Disqualifications(ctx context.Context) ([]*models.Disqualification, error) {
	return d.disqualifications.List(ctx)
}

// DisqualificationsByTag lists disqualified works whose tag contains the
// fragment.
func (d *Dashboard) DisqualificationsByTag(ctx context.Context, tag string) ([]*models.Disqualification, error) {
	return d.disqualifications.ListByTag(ctx, tag)
}

// Rewards lists all payouts, newest first.
func (d *Dashboard) Rewards(ctx context.Context) ([]*models.Reward, error) {
	return d.rewards.List(ctx)
}

// RewardsByProduct lists payouts matching the product fragment and the
// sum of their amounts.
func (d *Dashboard) RewardsByProduct(ctx context.Context, product string) (RewardBreakdown, error) {
	items, err := d.rewards.ListByProduct(ctx, product)
	if err != nil {
		return RewardBreakdown{}, err
	}
	out := RewardBreakdown{Items: items}
	for _, item := range items {
		out.Total += item.Money
	}
	return out, nil
}

// Withdrawals lists all payouts to external accounts, newest period first.
func (d *Dashboard) Withdrawals(ctx context.Context) ([]*models.Withdrawal, error) {
	return d.withdrawals.List(ctx)
}

// Outcomes lists all expenses, newest first.
func (d *Dashboard) Outcomes(ctx context.Context) ([]*models.Outcome, error) {
	return d.outcomes.List(ctx)
}

// Salaries lists all salary rows, newest period first.
func (d *Dashboard) Salaries(ctx context.Context) ([]*models.Salary, error) {
	return d.salaries.List(ctx)
}

// MonthlyIncome aggregates salary plus withdrawals per month.
func (d *Dashboard) MonthlyIncome(ctx context.Context) ([]MonthlySum, error) {
	sums := map[[2]int]float64{}

	salaries, err := d.salaries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading salaries: %w", err)
	}
	for _, s := range salaries {
		sums[[2]int{s.Year, s.Month}] += s.Salary
	}

	withdrawals, err := d.withdrawals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading withdrawals: %w", err)
	}
	for _, w := range withdrawals {
		sums[[2]int{w.Year, w.Month}] += w.Brokerage
	}

	return sortedMonthly(sums), nil
}

// YearlyIncome aggregates salary plus withdrawals per year.
func (d *Dashboard) YearlyIncome(ctx context.Context) ([]YearlySum, error) {
	monthly, err := d.MonthlyIncome(ctx)
	if err != nil {
		return nil, err
	}
	return rollupYears(monthly), nil
}

// MonthlyOutcome aggregates expenses per month.
func (d *Dashboard) MonthlyOutcome(ctx context.Context) ([]MonthlySum, error) {
	outcomes, err := d.outcomes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading outcomes: %w", err)
	}
	sums := map[[2]int]float64{}
	for _, o := range outcomes {
		sums[[2]int{o.PayDate.Year(), int(o.PayDate.Month())}] += o.Amount
	}
	return sortedMonthly(sums), nil
}

// YearlyOutcome aggregates expenses per year.
func (d *Dashboard) YearlyOutcome(ctx context.Context) ([]YearlySum, error) {
	monthly, err := d.MonthlyOutcome(ctx)
	if err != nil {
		return nil, err
	}
	return rollupYears(monthly), nil
}

// MonthlyRewards aggregates incentive payouts per month.
func (d *Dashboard) MonthlyRewards(ctx context.Context) ([]MonthlySum, error) {
	rewards, err := d.rewards.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rewards: %w", err)
	}
	sums := map[[2]int]float64{}
	for _, r := range rewards {
		sums[[2]int{r.GrantedAt.Year(), int(r.GrantedAt.Month())}] += r.Money
	}
	return sortedMonthly(sums), nil
}

// YearlyRewards aggregates incentive payouts per year.
func (d *Dashboard) YearlyRewards(ctx context.Context) ([]YearlySum, error) {
	monthly, err := d.MonthlyRewards(ctx)
	if err != nil {
		return nil, err
	}
	return rollupYears(monthly), nil
}

// sortedMonthly flattens a period map, newest period first.
func sortedMonthly(sums map[[2]int]float64) []MonthlySum {
	out := make([]MonthlySum, 0, len(sums))
	for period, total := range sums {
		out = append(out, MonthlySum{Year: period[0], Month: period[1], Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}

// rollupYears collapses monthly sums into yearly ones, newest first.
func rollupYears(monthly []MonthlySum) []YearlySum {
	sums := map[int]float64{}
	for _, m := range monthly {
		sums[m.Year] += m.Total
	}
	out := make([]YearlySum, 0, len(sums))
	for year, total := range sums {
		out = append(out, YearlySum{Year: year, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out
}
