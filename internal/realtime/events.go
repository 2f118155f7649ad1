package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"budgetbot/internal/models"
)

func money(f float64) string {
	return fmt.Sprintf("$%.2f", f)
}

func ExpenseEvent(e models.Expense, action string) models.Event {
	amount := e.Amount.InexactFloat64()
	title := "Expense added"
	msg := fmt.Sprintf("%s spent on %s", money(amount), e.Category)
	if e.Kind == models.KindIncome {
		title = "Income added"
		msg = fmt.Sprintf("%s received", money(amount))
	}
	if action == models.ActionDeleted {
		title = "Entry removed"
		msg = fmt.Sprintf("%s %s entry deleted", money(amount), e.Kind)
	}
	return models.NewEvent(title, msg, models.ExpenseChange{
		ExpenseID:   e.ID,
		Action:      action,
		Kind:        e.Kind,
		Amount:      amount,
		Category:    e.Category,
		Description: e.Description,
	})
}

func GoalEvent(g models.Goal, milestone int) models.Event {
	pct := g.Percentage()
	title := "Goal progress updated"
	msg := fmt.Sprintf("%s is %.0f%% funded", g.Name, pct)
	if milestone == 100 {
		title = "Goal reached"
		msg = fmt.Sprintf("You reached your %s goal of %s", g.Name, money(g.TargetAmount.InexactFloat64()))
	} else if milestone > 0 {
		title = fmt.Sprintf("%d%% milestone reached", milestone)
	}
	return models.NewEvent(title, msg, models.GoalProgress{
		GoalID:        g.ID,
		Name:          g.Name,
		CurrentAmount: g.CurrentAmount.InexactFloat64(),
		TargetAmount:  g.TargetAmount.InexactFloat64(),
		Percentage:    pct,
		Milestone:     milestone,
	})
}

func subscriptionInfo(s models.BillSubscription) models.SubscriptionInfo {
	return models.SubscriptionInfo{
		SubscriptionID:  s.ID,
		Name:            s.Name,
		Amount:          s.Amount.InexactFloat64(),
		BillingCycle:    s.BillingCycle,
		NextBillingDate: s.NextBillingDate,
	}
}

// SubscriptionEvent builds the added, updated or deleted event for s.
func SubscriptionEvent(t models.EventType, s models.BillSubscription) (models.Event, error) {
	info := subscriptionInfo(s)
	switch t {
	case models.EventSubscriptionAdded:
		return models.NewEvent("Subscription added",
			fmt.Sprintf("%s (%s %s) is now tracked", s.Name, money(info.Amount), s.BillingCycle),
			models.SubscriptionAdded{SubscriptionInfo: info}), nil
	case models.EventSubscriptionUpdated:
		return models.NewEvent("Subscription updated",
			fmt.Sprintf("%s was updated", s.Name),
			models.SubscriptionUpdated{SubscriptionInfo: info}), nil
	case models.EventSubscriptionDeleted:
		return models.NewEvent("Subscription removed",
			fmt.Sprintf("%s is no longer tracked", s.Name),
			models.SubscriptionDeleted{SubscriptionInfo: info}), nil
	}
	return models.Event{}, fmt.Errorf("%s is not a subscription event", t)
}

func BillReminderEvent(s models.BillSubscription, now time.Time) models.Event {
	days := s.DaysUntilDue(now)
	amount := s.Amount.InexactFloat64()
	var msg string
	switch {
	case days < 0:
		msg = fmt.Sprintf("%s (%s) is %d days overdue", s.Name, money(amount), -days)
	case days == 0:
		msg = fmt.Sprintf("%s (%s) is due today", s.Name, money(amount))
	case days == 1:
		msg = fmt.Sprintf("%s (%s) is due tomorrow", s.Name, money(amount))
	default:
		msg = fmt.Sprintf("%s (%s) is due in %d days", s.Name, money(amount), days)
	}
	return models.NewEvent("Upcoming bill", msg, models.BillReminder{
		SubscriptionID:  s.ID,
		Name:            s.Name,
		Amount:          amount,
		NextBillingDate: s.NextBillingDate,
		DaysUntilDue:    days,
	})
}

// Named helpers. Each fixes the payload shape of one event type.

func (n *Notifier) SendExpenseUpdated(ctx context.Context, userID string, e models.Expense, action string) bool {
	return n.Publish(ctx, userID, ExpenseEvent(e, action))
}

func (n *Notifier) SendGoalProgress(ctx context.Context, userID string, g models.Goal, milestone int) bool {
	return n.Publish(ctx, userID, GoalEvent(g, milestone))
}

func (n *Notifier) SendSubscriptionAdded(ctx context.Context, userID string, s models.BillSubscription) bool {
	return n.sendSubscription(ctx, userID, models.EventSubscriptionAdded, s)
}

func (n *Notifier) SendSubscriptionUpdated(ctx context.Context, userID string, s models.BillSubscription) bool {
	return n.sendSubscription(ctx, userID, models.EventSubscriptionUpdated, s)
}

func (n *Notifier) SendSubscriptionDeleted(ctx context.Context, userID string, s models.BillSubscription) bool {
	return n.sendSubscription(ctx, userID, models.EventSubscriptionDeleted, s)
}

func (n *Notifier) sendSubscription(ctx context.Context, userID string, t models.EventType, s models.BillSubscription) bool {
	ev, err := SubscriptionEvent(t, s)
	if err != nil {
		n.logger.Error("[NOTIFY] Failed to build subscription event", "user", userID, "error", err)
		return false
	}
	return n.Publish(ctx, userID, ev)
}

func (n *Notifier) SendBillReminder(ctx context.Context, userID string, s models.BillSubscription, now time.Time) bool {
	return n.Publish(ctx, userID, BillReminderEvent(s, now))
}

func (n *Notifier) SendDashboardRefresh(ctx context.Context, userID, reason string, widgets ...string) bool {
	return n.Publish(ctx, userID, models.NewEvent("Dashboard updated", reason, models.DashboardRefresh{
		Reason:  reason,
		Widgets: widgets,
	}))
}

func (n *Notifier) SendGeneral(ctx context.Context, userID, title, message string, data json.RawMessage) bool {
	return n.Publish(ctx, userID, models.NewEvent(title, message, models.General{Raw: data}))
}
