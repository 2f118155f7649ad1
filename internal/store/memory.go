package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
)

// MemoryStore keeps everything in process memory. It backs local
// development when DATABASE_URL is unset, and the handler tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	expenses      map[string]models.Expense
	goals         map[string]models.Goal
	subscriptions map[string]models.BillSubscription
	push          map[string]models.PushSubscription // keyed by endpoint
	nextPushID    int
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		expenses:      make(map[string]models.Expense),
		goals:         make(map[string]models.Goal),
		subscriptions: make(map[string]models.BillSubscription),
		push:          make(map[string]models.PushSubscription),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() error { return nil }

// User methods

func (s *MemoryStore) CreateUser(ctx context.Context, email, name, password string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	email = strings.ToLower(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return models.User{}, ErrConflict
		}
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

// Expense methods

func (s *MemoryStore) CreateExpense(ctx context.Context, e models.Expense) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = s.now()
	s.expenses[e.ID] = e
	return e, nil
}

func (s *MemoryStore) ListExpenses(ctx context.Context, userID string, since time.Time) ([]models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Expense{}
	for _, e := range s.expenses {
		if e.UserID == userID && !e.SpentAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpentAt.After(out[j].SpentAt) })
	return out, nil
}

func (s *MemoryStore) DeleteExpense(ctx context.Context, userID, id string) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return models.Expense{}, ErrNotFound
	}
	delete(s.expenses, id)
	return e, nil
}

// Goal methods

func (s *MemoryStore) CreateGoal(ctx context.Context, g models.Goal) (models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = uuid.NewString()
	g.CreatedAt = s.now()
	g.UpdatedAt = g.CreatedAt
	s.goals[g.ID] = g
	return g, nil
}

func (s *MemoryStore) ListGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Goal{}
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateGoalProgress(ctx context.Context, userID, id string, current decimal.Decimal) (models.Goal, models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, ok := s.goals[id]
	if !ok || before.UserID != userID {
		return models.Goal{}, models.Goal{}, ErrNotFound
	}
	after := before
	after.CurrentAmount = current
	after.UpdatedAt = s.now()
	s.goals[id] = after
	return before, after, nil
}

// Subscription methods

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub models.BillSubscription) (models.BillSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.NewString()
	sub.CreatedAt = s.now()
	sub.UpdatedAt = sub.CreatedAt
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

func (s *MemoryStore) ListSubscriptions(ctx context.Context, userID string) ([]models.BillSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.BillSubscription{}
	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sortByBillingDate(out)
	return out, nil
}

func (s *MemoryStore) UpdateSubscription(ctx context.Context, sub models.BillSubscription) (models.BillSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.subscriptions[sub.ID]
	if !ok || old.UserID != sub.UserID {
		return models.BillSubscription{}, ErrNotFound
	}
	sub.CreatedAt = old.CreatedAt
	sub.UpdatedAt = s.now()
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

func (s *MemoryStore) DeleteSubscription(ctx context.Context, userID, id string) (models.BillSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok || sub.UserID != userID {
		return models.BillSubscription{}, ErrNotFound
	}
	delete(s.subscriptions, id)
	return sub, nil
}

func (s *MemoryStore) DueSubscriptions(ctx context.Context, from, until time.Time) ([]models.BillSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.BillSubscription{}
	for _, sub := range s.subscriptions {
		if !sub.NextBillingDate.Before(from) && !sub.NextBillingDate.After(until) {
			out = append(out, sub)
		}
	}
	sortByBillingDate(out)
	return out, nil
}

func sortByBillingDate(subs []models.BillSubscription) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].NextBillingDate.Before(subs[j].NextBillingDate) })
}

// Push subscription methods

func (s *MemoryStore) SavePushSubscription(ctx context.Context, userID, endpoint, p256dh, auth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.push[endpoint]
	if !ok {
		s.nextPushID++
		sub = models.PushSubscription{ID: s.nextPushID, Endpoint: endpoint, CreatedAt: s.now()}
	}
	sub.UserID = userID
	sub.P256dh = p256dh
	sub.Auth = auth
	s.push[endpoint] = sub
	return nil
}

func (s *MemoryStore) GetPushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.PushSubscription{}
	for _, sub := range s.push {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.push, endpoint)
	return nil
}
