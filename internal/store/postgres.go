package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	migrations := []string{
		`ALTER TABLE expenses ADD COLUMN IF NOT EXISTS kind VARCHAR(16) NOT NULL DEFAULT 'expense';`,
		`ALTER TABLE goals ADD COLUMN IF NOT EXISTS deadline TIMESTAMP WITH TIME ZONE;`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, email, name, password string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.GetContext(ctx, &user,
		`INSERT INTO users (id, email, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, email, name, password_hash, created_at`,
		uuid.NewString(), strings.ToLower(email), name, passwordHash,
	)
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, ErrNotFound
	}
	var user models.User
	err := s.db.GetContext(ctx, &user,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1`,
		strings.ToLower(email))
	if err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

// Expense methods

const expenseColumns = `id, user_id, kind, amount, category, description, spent_at, created_at`

func (s *PostgresStore) CreateExpense(ctx context.Context, e models.Expense) (models.Expense, error) {
	e.ID = uuid.NewString()
	var out models.Expense
	err := s.db.GetContext(ctx, &out,
		`INSERT INTO expenses (id, user_id, kind, amount, category, description, spent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING `+expenseColumns,
		e.ID, e.UserID, e.Kind, e.Amount, e.Category, e.Description, e.SpentAt,
	)
	return out, err
}

func (s *PostgresStore) ListExpenses(ctx context.Context, userID string, since time.Time) ([]models.Expense, error) {
	expenses := []models.Expense{}
	err := s.db.SelectContext(ctx, &expenses,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = $1 AND spent_at >= $2
		 ORDER BY spent_at DESC`,
		userID, since,
	)
	return expenses, err
}

func (s *PostgresStore) DeleteExpense(ctx context.Context, userID, id string) (models.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Expense{}, ErrNotFound
	}
	var out models.Expense
	err := s.db.GetContext(ctx, &out,
		`DELETE FROM expenses WHERE id = $1 AND user_id = $2 RETURNING `+expenseColumns,
		id, userID)
	if err != nil {
		return models.Expense{}, notFound(err)
	}
	return out, nil
}

// Goal methods

const goalColumns = `id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at`

func (s *PostgresStore) CreateGoal(ctx context.Context, g models.Goal) (models.Goal, error) {
	g.ID = uuid.NewString()
	var out models.Goal
	err := s.db.GetContext(ctx, &out,
		`INSERT INTO goals (id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+goalColumns,
		g.ID, g.UserID, g.Name, g.TargetAmount, g.CurrentAmount, g.Deadline,
	)
	return out, err
}

func (s *PostgresStore) ListGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	goals := []models.Goal{}
	err := s.db.SelectContext(ctx, &goals,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = $1 ORDER BY created_at`, userID)
	return goals, err
}

func (s *PostgresStore) UpdateGoalProgress(ctx context.Context, userID, id string, current decimal.Decimal) (models.Goal, models.Goal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Goal{}, models.Goal{}, ErrNotFound
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Goal{}, models.Goal{}, err
	}
	defer tx.Rollback()

	var before models.Goal
	err = tx.GetContext(ctx, &before,
		`SELECT `+goalColumns+` FROM goals WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	if err != nil {
		return models.Goal{}, models.Goal{}, notFound(err)
	}

	var after models.Goal
	err = tx.GetContext(ctx, &after,
		`UPDATE goals SET current_amount = $1, updated_at = NOW()
		 WHERE id = $2 RETURNING `+goalColumns,
		current, id)
	if err != nil {
		return models.Goal{}, models.Goal{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Goal{}, models.Goal{}, err
	}
	return before, after, nil
}

// Subscription methods

const subscriptionColumns = `id, user_id, name, amount, billing_cycle, next_billing_date, created_at, updated_at`

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub models.BillSubscription) (models.BillSubscription, error) {
	sub.ID = uuid.NewString()
	var out models.BillSubscription
	err := s.db.GetContext(ctx, &out,
		`INSERT INTO subscriptions (id, user_id, name, amount, billing_cycle, next_billing_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+subscriptionColumns,
		sub.ID, sub.UserID, sub.Name, sub.Amount, sub.BillingCycle, sub.NextBillingDate,
	)
	return out, err
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, userID string) ([]models.BillSubscription, error) {
	subs := []models.BillSubscription{}
	err := s.db.SelectContext(ctx, &subs,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY next_billing_date`, userID)
	return subs, err
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub models.BillSubscription) (models.BillSubscription, error) {
	if _, err := uuid.Parse(sub.ID); err != nil {
		return models.BillSubscription{}, ErrNotFound
	}
	var out models.BillSubscription
	err := s.db.GetContext(ctx, &out,
		`UPDATE subscriptions
		 SET name = $1, amount = $2, billing_cycle = $3, next_billing_date = $4, updated_at = NOW()
		 WHERE id = $5 AND user_id = $6
		 RETURNING `+subscriptionColumns,
		sub.Name, sub.Amount, sub.BillingCycle, sub.NextBillingDate, sub.ID, sub.UserID,
	)
	if err != nil {
		return models.BillSubscription{}, notFound(err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, userID, id string) (models.BillSubscription, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.BillSubscription{}, ErrNotFound
	}
	var out models.BillSubscription
	err := s.db.GetContext(ctx, &out,
		`DELETE FROM subscriptions WHERE id = $1 AND user_id = $2 RETURNING `+subscriptionColumns,
		id, userID)
	if err != nil {
		return models.BillSubscription{}, notFound(err)
	}
	return out, nil
}

func (s *PostgresStore) DueSubscriptions(ctx context.Context, from, until time.Time) ([]models.BillSubscription, error) {
	subs := []models.BillSubscription{}
	err := s.db.SelectContext(ctx, &subs,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE next_billing_date >= $1 AND next_billing_date <= $2
		 ORDER BY next_billing_date`, from, until)
	return subs, err
}

// Push subscription methods

func (s *PostgresStore) SavePushSubscription(ctx context.Context, userID, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (endpoint) DO UPDATE SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`,
		userID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) GetPushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	subs := []models.PushSubscription{}
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at FROM push_subscriptions WHERE user_id = $1`, userID)
	return subs, err
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}
