package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbot/internal/models"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.CreateUser(ctx, "Ann@Example.com", "Ann", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.True(t, u.CheckPassword("hunter22"))

	_, err = s.CreateUser(ctx, "ann@example.com", "Other", "pw")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetUserByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpensesScopedToUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	old, _ := s.CreateExpense(ctx, models.Expense{UserID: "u", Amount: decimal.NewFromInt(5), SpentAt: now.AddDate(0, 0, -40)})
	recent, _ := s.CreateExpense(ctx, models.Expense{UserID: "u", Amount: decimal.NewFromInt(10), SpentAt: now.Add(-time.Hour)})
	newest, _ := s.CreateExpense(ctx, models.Expense{UserID: "u", Amount: decimal.NewFromInt(20), SpentAt: now})
	_, _ = s.CreateExpense(ctx, models.Expense{UserID: "v", Amount: decimal.NewFromInt(99), SpentAt: now})

	list, err := s.ListExpenses(ctx, "u", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newest.ID, list[0].ID)
	assert.Equal(t, recent.ID, list[1].ID)

	_, err = s.DeleteExpense(ctx, "v", old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	deleted, err := s.DeleteExpense(ctx, "u", old.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, deleted.ID)
}

func TestMemoryStore_GoalProgress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	g, err := s.CreateGoal(ctx, models.Goal{UserID: "u", Name: "Trip", TargetAmount: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	before, after, err := s.UpdateGoalProgress(ctx, "u", g.ID, decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.True(t, before.CurrentAmount.IsZero())
	assert.Equal(t, 60.0, after.Percentage())

	_, _, err = s.UpdateGoalProgress(ctx, "v", g.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DueSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	soon, _ := s.CreateSubscription(ctx, models.BillSubscription{UserID: "u", Name: "Rent", NextBillingDate: now.AddDate(0, 0, 1)})
	_, _ = s.CreateSubscription(ctx, models.BillSubscription{UserID: "v", Name: "Gym", NextBillingDate: now.AddDate(0, 0, 10)})

	_, _ = s.CreateSubscription(ctx, models.BillSubscription{UserID: "u", Name: "Old", NextBillingDate: now.AddDate(0, 0, -2)})

	due, err := s.DueSubscriptions(ctx, now.Truncate(24*time.Hour), now.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon.ID, due[0].ID)

	soon.Name = "Rent (flat)"
	updated, err := s.UpdateSubscription(ctx, soon)
	require.NoError(t, err)
	assert.Equal(t, "Rent (flat)", updated.Name)

	soon.UserID = "v"
	_, err = s.UpdateSubscription(ctx, soon)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PushSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SavePushSubscription(ctx, "u", "https://push/1", "p", "a"))
	require.NoError(t, s.SavePushSubscription(ctx, "u", "https://push/1", "p2", "a2"))
	require.NoError(t, s.SavePushSubscription(ctx, "v", "https://push/2", "p", "a"))

	subs, err := s.GetPushSubscriptions(ctx, "u")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "p2", subs[0].P256dh)

	require.NoError(t, s.DeletePushSubscription(ctx, "https://push/1"))
	subs, _ = s.GetPushSubscriptions(ctx, "u")
	assert.Empty(t, subs)
}
