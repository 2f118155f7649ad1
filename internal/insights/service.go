// Package insights summarizes a user's recent spending and, when an AI
// backend is configured, adds a short narrative about it.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
	"budgetbot/internal/store"
)

const (
	DefaultDays = 30
	MaxDays     = 365
)

type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	// Share of total expenses, in percent.
	Share float64 `json:"share"`
}

type Summary struct {
	Days        int             `json:"days"`
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`
	Categories  []CategoryTotal `json:"categories"`
	Narrative   string          `json:"narrative"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Cached      bool            `json:"cached"`
}

// Service is constructed once and shared by handlers.
type Service struct {
	expenses store.ExpenseStore
	cache    Cache
	gen      Generator
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithGenerator enables narratives. Without it Narrative stays empty.
func WithGenerator(g Generator) Option {
	return func(s *Service) { s.gen = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(expenses store.ExpenseStore, cache Cache, ttl time.Duration, opts ...Option) *Service {
	if cache == nil {
		cache = NewMemoryCache()
	}
	s := &Service{
		expenses: expenses,
		cache:    cache,
		ttl:      ttl,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize returns the summary for the last days days, from cache when
// possible.
func (s *Service) Summarize(ctx context.Context, userID string, days int) (Summary, error) {
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}

	key := fmt.Sprintf("%s:%d", userID, days)
	if cached, ok := s.cache.Get(ctx, key); ok {
		cached.Cached = true
		return cached, nil
	}

	since := s.now().AddDate(0, 0, -days)
	entries, err := s.expenses.ListExpenses(ctx, userID, since)
	if err != nil {
		return Summary{}, fmt.Errorf("listing expenses: %w", err)
	}

	sum := Compute(entries, days)
	sum.GeneratedAt = s.now()
	if s.gen != nil && len(entries) > 0 {
		text, err := s.gen.Generate(ctx, Prompt(sum))
		if err != nil {
			s.logger.Warn("[INSIGHTS] Narrative generation failed", "user", userID, "error", err)
		} else {
			sum.Narrative = text
		}
	}

	if s.ttl > 0 {
		s.cache.Set(ctx, key, sum, s.ttl)
	}
	return sum, nil
}

// Invalidate drops every cached window for userID. Call it after the
// user's expenses change.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.DeletePrefix(ctx, userID+":"); err != nil {
		s.logger.Warn("[INSIGHTS] Failed to invalidate cache", "user", userID, "error", err)
	}
}

// Compute totals entries by kind and expense category. Categories are sorted
// by total, largest first.
func Compute(entries []models.Expense, days int) Summary {
	sum := Summary{Days: days, Categories: []CategoryTotal{}}
	byCategory := map[string]decimal.Decimal{}
	for _, e := range entries {
		if e.Kind == models.KindIncome {
			sum.Income = sum.Income.Add(e.Amount)
			continue
		}
		sum.Expenses = sum.Expenses.Add(e.Amount)
		cat := e.Category
		if cat == "" {
			cat = "other"
		}
		byCategory[cat] = byCategory[cat].Add(e.Amount)
	}
	sum.Net = sum.Income.Sub(sum.Expenses)

	hundred := decimal.NewFromInt(100)
	for cat, total := range byCategory {
		share := 0.0
		if sum.Expenses.IsPositive() {
			share = total.Div(sum.Expenses).Mul(hundred).Round(1).InexactFloat64()
		}
		sum.Categories = append(sum.Categories, CategoryTotal{Category: cat, Total: total, Share: share})
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		a, b := sum.Categories[i], sum.Categories[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.Category < b.Category
	})
	return sum
}

// Prompt describes the summary for the narrative model.
func Prompt(sum Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a friendly budgeting assistant. In at most three sentences, "+
		"give the user one observation and one practical tip about their last %d days.\n", sum.Days)
	fmt.Fprintf(&sb, "Income: %s\nExpenses: %s\nNet: %s\n", sum.Income.StringFixed(2), sum.Expenses.StringFixed(2), sum.Net.StringFixed(2))
	for _, c := range sum.Categories {
		fmt.Fprintf(&sb, "- %s: %s (%.1f%%)\n", c.Category, c.Total.StringFixed(2), c.Share)
	}
	return sb.String()
}
