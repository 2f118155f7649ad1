package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type UserStore interface {
	CreateUser(ctx context.Context, email, name, password string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, e models.Expense) (models.Expense, error)
	// ListExpenses returns the user's entries spent at or after since, newest first.
	ListExpenses(ctx context.Context, userID string, since time.Time) ([]models.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) (models.Expense, error)
}

type GoalStore interface {
	CreateGoal(ctx context.Context, g models.Goal) (models.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]models.Goal, error)
	// UpdateGoalProgress sets the current amount and returns the goal before
	// and after the change.
	UpdateGoalProgress(ctx context.Context, userID, id string, current decimal.Decimal) (before, after models.Goal, err error)
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s models.BillSubscription) (models.BillSubscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]models.BillSubscription, error)
	UpdateSubscription(ctx context.Context, s models.BillSubscription) (models.BillSubscription, error)
	DeleteSubscription(ctx context.Context, userID, id string) (models.BillSubscription, error)
	// DueSubscriptions lists every user's subscriptions billed in [from, until].
	DueSubscriptions(ctx context.Context, from, until time.Time) ([]models.BillSubscription, error)
}

type PushStore interface {
	SavePushSubscription(ctx context.Context, userID, endpoint, p256dh, auth string) error
	GetPushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Store is everything the HTTP handlers persist.
type Store interface {
	UserStore
	ExpenseStore
	GoalStore
	SubscriptionStore
	PushStore
	Close() error
}
