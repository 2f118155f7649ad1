package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbot/internal/models"
)

// newPostgres connects to DATABASE_URL and migrates it. Tests create their
// own users with unique emails so they can share a database.
func newPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.RunMigrations(context.Background()))
	return s
}

func pgUser(t *testing.T, s *PostgresStore) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), uuid.NewString()+"@Example.com", "Test", "hunter22")
	require.NoError(t, err)
	return u
}

func TestPostgresStore_Users(t *testing.T) {
	ctx := context.Background()
	s := newPostgres(t)

	u := pgUser(t, s)
	assert.Contains(t, u.Email, "@example.com")
	assert.True(t, u.CheckPassword("hunter22"))

	_, err := s.CreateUser(ctx, u.Email, "Other", "pw")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUser(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ExpensesScopedToUser(t *testing.T) {
	ctx := context.Background()
	s := newPostgres(t)
	u, v := pgUser(t, s), pgUser(t, s)

	e, err := s.CreateExpense(ctx, models.Expense{
		UserID: u.ID, Kind: models.KindExpense, Amount: decimal.NewFromInt(12),
		Category: "food", SpentAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	list, err := s.ListExpenses(ctx, u.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(12)))

	_, err = s.DeleteExpense(ctx, v.ID, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteExpense(ctx, u.ID, e.ID)
	require.NoError(t, err)
}

func TestPostgresStore_UpdateGoalProgress(t *testing.T) {
	ctx := context.Background()
	s := newPostgres(t)
	u, v := pgUser(t, s), pgUser(t, s)

	g, err := s.CreateGoal(ctx, models.Goal{
		UserID: u.ID, Name: "Trip",
		TargetAmount: decimal.NewFromInt(200), CurrentAmount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	before, after, err := s.UpdateGoalProgress(ctx, u.ID, g.ID, decimal.NewFromInt(120))
	require.NoError(t, err)
	assert.True(t, before.CurrentAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, after.CurrentAmount.Equal(decimal.NewFromInt(120)))

	_, _, err = s.UpdateGoalProgress(ctx, v.ID, g.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.UpdateGoalProgress(ctx, u.ID, "bad-id", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_DueSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := newPostgres(t)
	u := pgUser(t, s)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for name, due := range map[string]time.Time{
		"Overdue": today.AddDate(0, 0, -2),
		"Soon":    today.AddDate(0, 0, 1),
		"Later":   today.AddDate(0, 0, 30),
	} {
		_, err := s.CreateSubscription(ctx, models.BillSubscription{
			UserID: u.ID, Name: name, Amount: decimal.NewFromInt(9),
			BillingCycle: models.CycleMonthly, NextBillingDate: due,
		})
		require.NoError(t, err)
	}

	due, err := s.DueSubscriptions(ctx, today, today.AddDate(0, 0, 3))
	require.NoError(t, err)
	var names []string
	for _, sub := range due {
		if sub.UserID == u.ID {
			names = append(names, sub.Name)
		}
	}
	assert.Equal(t, []string{"Soon"}, names)
}
