package models

import "time"

// Manuscript is one published work synced from the member API. The table is
// replaced wholesale on each sync, so no unique key is needed.
type Manuscript struct {
	BaseModel

	Title    string    `gorm:"size:255;not null;index" json:"title"`
	View     int64     `gorm:"default:0" json:"view"`
	PostedAt time.Time `gorm:"index" json:"posted_at"`
	Tag      string    `gorm:"size:255;index" json:"tag"`
}

func (Manuscript) TableName() string {
	return "manuscripts"
}

// Reward is one incentive payout from the earnings listing. Withdrawal
// entries are filtered out into the withdrawals table instead.
type Reward struct {
	BaseModel

	ProductName string    `gorm:"size:100;not null;index" json:"product_name"`
	Money       float64   `gorm:"not null" json:"money"`
	GrantedAt   time.Time `gorm:"index" json:"granted_at"`
}

func (Reward) TableName() string {
	return "rewards"
}

// Disqualification is one work pulled from an event-disqualification notice
// in the platform's message feed, keyed by title and notice time so
// repeated scans do not duplicate rows.
type Disqualification struct {
	BaseModel

	Title    string    `gorm:"size:255;not null;uniqueIndex:idx_disqualification_entry" json:"title"`
	Tag      string    `gorm:"size:255;index" json:"tag"`
	View     int64     `gorm:"default:0" json:"view"`
	PostedAt time.Time `gorm:"not null;uniqueIndex:idx_disqualification_entry;index" json:"posted_at"`
}

func (Disqualification) TableName() string {
	return "disqualifications"
}

// Withdrawal channel types.
const (
	WithdrawalBankCard = 0
	WithdrawalAlipay   = 1
)

// Withdrawal is one payout to an external account, keyed by month and
// channel so re-syncs do not duplicate rows.
type Withdrawal struct {
	BaseModel

	Year      int     `gorm:"not null;uniqueIndex:idx_withdrawal_period" json:"year"`
	Month     int     `gorm:"not null;uniqueIndex:idx_withdrawal_period" json:"month"`
	Brokerage float64 `gorm:"not null" json:"brokerage"`
	Type      int     `gorm:"not null;uniqueIndex:idx_withdrawal_period" json:"type"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}

// Outcome payment platform types.
const (
	PayPlatformWeChat   = 0
	PayPlatformAlipay   = 1
	PayPlatformBankCard = 2
)

// Outcome is one expense row imported from a spreadsheet.
type Outcome struct {
	BaseModel

	PayDate     time.Time `gorm:"not null;uniqueIndex:idx_outcome_entry;index" json:"pay_date"`
	PayPlatform int       `gorm:"not null;uniqueIndex:idx_outcome_entry" json:"pay_platform"`
	Amount      float64   `gorm:"not null;uniqueIndex:idx_outcome_entry" json:"amount"`
	Note        string    `gorm:"size:255;uniqueIndex:idx_outcome_entry" json:"note"`
}

func (Outcome) TableName() string {
	return "outcomes"
}

// Salary is one month's wage, imported from a spreadsheet.
type Salary struct {
	BaseModel

	Year         int     `gorm:"not null;uniqueIndex:idx_salary_period" json:"year"`
	Month        int     `gorm:"not null;uniqueIndex:idx_salary_period" json:"month"`
	Salary       float64 `gorm:"not null" json:"salary"`
	WorkingHours float64 `json:"working_hours"`
	HourlyWage   float64 `json:"hourly_wage"`
}

func (Salary) TableName() string {
	return "salaries"
}
