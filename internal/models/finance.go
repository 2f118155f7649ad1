package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry kinds for Expense.Kind.
const (
	KindExpense = "expense"
	KindIncome  = "income"
)

// Billing cycles for BillSubscription.BillingCycle.
const (
	CycleWeekly  = "weekly"
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Expense is a single logged expense or income entry.
type Expense struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Kind        string          `json:"kind" db:"kind"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Category    string          `json:"category" db:"category"`
	Description string          `json:"description" db:"description"`
	SpentAt     time.Time       `json:"spent_at" db:"spent_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Goal is a savings goal tracked towards a target amount.
type Goal struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Name          string          `json:"name" db:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount" db:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount" db:"current_amount"`
	Deadline      *time.Time      `json:"deadline,omitempty" db:"deadline"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Percentage returns progress towards the target in the range [0, 100].
func (g Goal) Percentage() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	pct := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	if pct.IsNegative() {
		return 0
	}
	return pct.Round(2).InexactFloat64()
}

var goalMilestones = []int{25, 50, 75, 100}

// CrossedMilestone returns the highest milestone reached by moving progress
// from prev to next percent, or 0 when none was newly crossed.
func CrossedMilestone(prev, next float64) int {
	crossed := 0
	for _, m := range goalMilestones {
		if prev < float64(m) && next >= float64(m) {
			crossed = m
		}
	}
	return crossed
}

// BillSubscription is a recurring bill the user wants reminders for.
type BillSubscription struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Name            string          `json:"name" db:"name"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	BillingCycle    string          `json:"billing_cycle" db:"billing_cycle"`
	NextBillingDate time.Time       `json:"next_billing_date" db:"next_billing_date"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// DaysUntilDue counts whole days from now until the next billing date.
func (s BillSubscription) DaysUntilDue(now time.Time) int {
	due := s.NextBillingDate.Truncate(24 * time.Hour)
	today := now.Truncate(24 * time.Hour)
	return int(due.Sub(today).Hours() / 24)
}
