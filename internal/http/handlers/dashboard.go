package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/service"
)

// BalanceSource reports the creator's live withdrawable balance.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// DashboardHandler exposes the synced creator data and its aggregates.
type DashboardHandler struct {
	dashboard *service.Dashboard
	balance   BalanceSource
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(dashboard *service.Dashboard, balance BalanceSource) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, balance: balance}
}

// Register registers the dashboard routes with the API.
func (h *DashboardHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listManuscripts",
		Method:      "GET",
		Path:        "/api/v1/manuscripts",
		Summary:     "List manuscripts",
		Description: "Returns synced works, optionally filtered by tag or by an underperformance threshold",
		Tags:        []string{"Dashboard"},
	}, h.ListManuscripts)

	huma.Register(api, huma.Operation{
		OperationID: "listDisqualifications",
		Method:      "GET",
		Path:        "/api/v1/disqualifications",
		Summary:     "List disqualified works",
		Description: "Returns works pulled from event-disqualification notices, optionally filtered by tag",
		Tags:        []string{"Dashboard"},
	}, h.ListDisqualifications)

	huma.Register(api, huma.Operation{
		OperationID: "listRewards",
		Method:      "GET",
		Path:        "/api/v1/rewards",
		Summary:     "List incentive payouts",
		Tags:        []string{"Dashboard"},
	}, h.ListRewards)

	huma.Register(api, huma.Operation{
		OperationID: "listWithdrawals",
		Method:      "GET",
		Path:        "/api/v1/withdrawals",
		Summary:     "List withdrawals",
		Tags:        []string{"Dashboard"},
	}, h.ListWithdrawals)

	huma.Register(api, huma.Operation{
		OperationID: "listOutcomes",
		Method:      "GET",
		Path:        "/api/v1/outcomes",
		Summary:     "List expenses",
		Tags:        []string{"Dashboard"},
	}, h.ListOutcomes)

	huma.Register(api, huma.Operation{
		OperationID: "listSalaries",
		Method:      "GET",
		Path:        "/api/v1/salaries",
		Summary:     "List salaries",
		Tags:        []string{"Dashboard"},
	}, h.ListSalaries)

	huma.Register(api, huma.Operation{
		OperationID: "getIncomeSummary",
		Method:      "GET",
		Path:        "/api/v1/summary/income",
		Summary:     "Income by period",
		Description: "Salary plus withdrawals, grouped by month and by year",
		Tags:        []string{"Dashboard"},
	}, h.IncomeSummary)

	huma.Register(api, huma.Operation{
		OperationID: "getOutcomeSummary",
		Method:      "GET",
		Path:        "/api/v1/summary/outcome",
		Summary:     "Expenses by period",
		Tags:        []string{"Dashboard"},
	}, h.OutcomeSummary)

	huma.Register(api, huma.Operation{
		OperationID: "getRewardSummary",
		Method:      "GET",
		Path:        "/api/v1/summary/rewards",
		Summary:     "Incentive payouts by period",
		Tags:        []string{"Dashboard"},
	}, h.RewardSummary)

	huma.Register(api, huma.Operation{
		OperationID: "getBalance",
		Method:      "GET",
		Path:        "/api/v1/balance",
		Summary:     "Get withdrawable balance",
		Description: "Queries the platform for the current withdrawable balance",
		Tags:        []string{"Dashboard"},
	}, h.GetBalance)
}

// ListManuscriptsInput is the input for listing manuscripts.
type ListManuscriptsInput struct {
	Tag          string `query:"tag" doc:"Return only works whose tag contains this fragment"`
	MaxView      int64  `query:"max_view" doc:"Return only works with fewer views, posted before posted_before"`
	PostedBefore string `query:"posted_before" format:"date" doc:"Cutoff date for the underperformance filter"`
}

// ListManuscriptsOutput is the output for listing manuscripts.
type ListManuscriptsOutput struct {
	Body struct {
		Items []*models.Manuscript `json:"items"`
	}
}

// ListManuscripts lists synced works with optional filters.
func (h *DashboardHandler) ListManuscripts(ctx context.Context, input *ListManuscriptsInput) (*ListManuscriptsOutput, error) {
	var (
		items []*models.Manuscript
		err   error
	)
	switch {
	case input.MaxView > 0:
		cutoff := time.Now()
		if input.PostedBefore != "" {
			cutoff, err = time.Parse("2006-01-02", input.PostedBefore)
			if err != nil {
				return nil, huma.Error400BadRequest("invalid posted_before date")
			}
		}
		items, err = h.dashboard.UnderperformingManuscripts(ctx, input.MaxView, cutoff)
	case input.Tag != "":
		items, err = h.dashboard.ManuscriptsByTag(ctx, input.Tag)
	default:
		items, err = h.dashboard.Manuscripts(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("listing manuscripts: " + err.Error())
	}

	out := &ListManuscriptsOutput{}
	out.Body.Items = items
	return out, nil
}

// ListDisqualificationsInput is the input for listing disqualified works.
type ListDisqualificationsInput struct {
	Tag string `query:"tag" doc:"Return only works whose tag contains this fragment"`
}

// ListDisqualificationsOutput is the output for listing disqualified works.
type ListDisqualificationsOutput struct {
	Body struct {
		Items []*models.Disqualification `json:"items"`
	}
}

// ListDisqualifications lists works pulled from disqualification notices.
func (h *DashboardHandler) ListDisqualifications(ctx context.Context, input *ListDisqualificationsInput) (*ListDisqualificationsOutput, error) {
	var (
		items []*models.Disqualification
		err   error
	)
	if input.Tag != "" {
		items, err = h.dashboard.DisqualificationsByTag(ctx, input.Tag)
	} else {
		items, err = h.dashboard.Disqualifications(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("listing disqualifications: " + err.Error())
	}

	out := &ListDisqualificationsOutput{}
	out.Body.Items = items
	return out, nil
}

// ListRewardsInput is the input for listing payouts.
type ListRewardsInput struct {
	Product string `query:"product" doc:"Return only payouts whose product name contains this fragment"`
}

// ListRewardsOutput is the output for listing payouts.
type ListRewardsOutput struct {
	Body struct {
		Items []*models.Reward `json:"items"`
		Total float64          `json:"total"`
	}
}

// ListRewards lists incentive payouts with their combined amount.
func (h *DashboardHandler) ListRewards(ctx context.Context, input *ListRewardsInput) (*ListRewardsOutput, error) {
	breakdown, err := h.dashboard.RewardsByProduct(ctx, input.Product)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing rewards: " + err.Error())
	}

	out := &ListRewardsOutput{}
	out.Body.Items = breakdown.Items
	out.Body.Total = breakdown.Total
	return out, nil
}

// ListWithdrawalsOutput is the output for listing withdrawals.
type ListWithdrawalsOutput struct {
	Body struct {
		Items []*models.Withdrawal `json:"items"`
	}
}

// ListWithdrawals lists payouts to external accounts.
func (h *DashboardHandler) ListWithdrawals(ctx context.Context, _ *struct{}) (*ListWithdrawalsOutput, error) {
	items, err := h.dashboard.Withdrawals(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing withdrawals: " + err.Error())
	}

	out := &ListWithdrawalsOutput{}
	out.Body.Items = items
	return out, nil
}

// ListOutcomesOutput is the output for listing expenses.
type ListOutcomesOutput struct {
	Body struct {
		Items []*models.Outcome `json:"items"`
	}
}

// ListOutcomes lists imported expenses.
func (h *DashboardHandler) ListOutcomes(ctx context.Context, _ *struct{}) (*ListOutcomesOutput, error) {
	items, err := h.dashboard.Outcomes(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing outcomes: " + err.Error())
	}

	out := &ListOutcomesOutput{}
	out.Body.Items = items
	return out, nil
}

// ListSalariesOutput is the output for listing salaries.
type ListSalariesOutput struct {
	Body struct {
		Items []*models.Salary `json:"items"`
	}
}

// ListSalaries lists imported salary rows.
func (h *DashboardHandler) ListSalaries(ctx context.Context, _ *struct{}) (*ListSalariesOutput, error) {
	items, err := h.dashboard.Salaries(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing salaries: " + err.Error())
	}

	out := &ListSalariesOutput{}
	out.Body.Items = items
	return out, nil
}

// SummaryOutput is the output shape shared by the period summaries.
type SummaryOutput struct {
	Body struct {
		Monthly []service.MonthlySum `json:"monthly"`
		Yearly  []service.YearlySum  `json:"yearly"`
	}
}

// IncomeSummary aggregates salary plus withdrawals by period.
func (h *DashboardHandler) IncomeSummary(ctx context.Context, _ *struct{}) (*SummaryOutput, error) {
	monthly, err := h.dashboard.MonthlyIncome(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("summarising income: " + err.Error())
	}
	yearly, err := h.dashboard.YearlyIncome(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("summarising income: " + err.Error())
	}

	out := &SummaryOutput{}
	out.Body.Monthly = monthly
	out.Body.Yearly = yearly
	return out, nil
}

// OutcomeSummary aggregates expenses by period.
func (h *DashboardHandler) OutcomeSummary(ctx context.Context, _ *struct{}) (*SummaryOutput, error) {
	monthly, err := h.dashboard.MonthlyOutcome(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("summarising outcome: " + err.Error())
	}
	yearly, err := h.dashboard.YearlyOutcome(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("summarising outcome: " + err.Error())
	}

	out := &SummaryOutput{}
	out.Body.Monthly = monthly
	out.Body.Yearly = yearly
	return out, nil
}

// RewardSummary aggregates incentive payouts by period.
func (h *DashboardHandler) RewardSummary(ctx context.Context, _ *struct{}) (*SummaryOutput, error) {
	monthly, err := h.dashboard.MonthlyRewards(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("summarising rewards: " + err.Error())
	}
	yearly, err := h.dashboard.YearlyRewards(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("summarising rewards: " + err.Error())
	}

	out := &SummaryOutput{}
	out.Body.Monthly = monthly
	out.Body.Yearly = yearly
	return out, nil
}

// BalanceOutput is the output for the balance endpoint.
type BalanceOutput struct {
	Body struct {
		Balance float64 `json:"balance"`
	}
}

// GetBalance queries the platform for the withdrawable balance.
func (h *DashboardHandler) GetBalance(ctx context.Context, _ *struct{}) (*BalanceOutput, error) {
	balance, err := h.balance.Balance(ctx)
	if err != nil {
		return nil, huma.Error502BadGateway("fetching balance: " + err.Error())
	}

	out := &BalanceOutput{}
	out.Body.Balance = balance
	return out, nil
}
