package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of realtime event and fixes its payload shape.
type EventType string

const (
	EventBillReminder        EventType = "bill_reminder"
	EventGoalMilestone       EventType = "goal_milestone"
	EventExpenseUpdated      EventType = "expense_updated"
	EventSubscriptionAdded   EventType = "subscription_added"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventDashboardRefresh    EventType = "dashboard_refresh"
	EventGeneral             EventType = "general"
)

// Broker event names a subscriber listens for.
const (
	BrokerNotification        = "notification"
	BrokerExpenseUpdated      = "expense-updated"
	BrokerGoalUpdated         = "goal-updated"
	BrokerSubscriptionUpdated = "subscription-updated"
	BrokerDashboardRefresh    = "dashboard-refresh"
)

// BrokerEvents lists every broker event name, in a stable order.
var BrokerEvents = []string{
	BrokerNotification,
	BrokerExpenseUpdated,
	BrokerGoalUpdated,
	BrokerSubscriptionUpdated,
	BrokerDashboardRefresh,
}

// BrokerEvent returns the broker event name the type is delivered under.
func (t EventType) BrokerEvent() string {
	switch t {
	case EventExpenseUpdated:
		return BrokerExpenseUpdated
	case EventGoalMilestone:
		return BrokerGoalUpdated
	case EventSubscriptionAdded, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return BrokerSubscriptionUpdated
	case EventDashboardRefresh:
		return BrokerDashboardRefresh
	default:
		return BrokerNotification
	}
}

// CustomEventName maps a broker event name to the in-process event name
// consumers register for.
func CustomEventName(brokerEvent string) string {
	if brokerEvent == BrokerNotification {
		return "pusher-notification"
	}
	return brokerEvent
}

// Payload is the per-type body of an Event. The set of implementations is
// closed: one struct per EventType.
type Payload interface {
	EventType() EventType
	isPayload()
}

type BillReminder struct {
	SubscriptionID  string    `json:"subscriptionId"`
	Name            string    `json:"name"`
	Amount          float64   `json:"amount"`
	NextBillingDate time.Time `json:"nextBillingDate"`
	DaysUntilDue    int       `json:"daysUntilDue"`
}

type GoalProgress struct {
	GoalID        string  `json:"goalId"`
	Name          string  `json:"name"`
	CurrentAmount float64 `json:"currentAmount"`
	TargetAmount  float64 `json:"targetAmount"`
	Percentage    float64 `json:"percentage"`
	Milestone     int     `json:"milestone,omitempty"`
}

// Expense actions carried by ExpenseChange.
const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
)

type ExpenseChange struct {
	ExpenseID   string  `json:"expenseId"`
	Action      string  `json:"action"`
	Kind        string  `json:"kind"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
}

// SubscriptionInfo is the shared body of the three subscription events.
type SubscriptionInfo struct {
	SubscriptionID  string    `json:"subscriptionId"`
	Name            string    `json:"name"`
	Amount          float64   `json:"amount,omitempty"`
	BillingCycle    string    `json:"billingCycle,omitempty"`
	NextBillingDate time.Time `json:"nextBillingDate,omitzero"`
}

type SubscriptionAdded struct{ SubscriptionInfo }
type SubscriptionUpdated struct{ SubscriptionInfo }
type SubscriptionDeleted struct{ SubscriptionInfo }

type DashboardRefresh struct {
	Reason  string   `json:"reason,omitempty"`
	Widgets []string `json:"widgets,omitempty"`
}

// General carries an arbitrary JSON object verbatim.
type General struct {
	Raw json.RawMessage
}

func (BillReminder) EventType() EventType { return EventBillReminder }
func (GoalProgress) EventType() EventType { return EventGoalMilestone }
func (ExpenseChange) EventType() EventType { return EventExpenseUpdated }
func (SubscriptionAdded) EventType() EventType { return EventSubscriptionAdded }
func (SubscriptionUpdated) EventType() EventType { return EventSubscriptionUpdated }
func (SubscriptionDeleted) EventType() EventType { return EventSubscriptionDeleted }
func (DashboardRefresh) EventType() EventType { return EventDashboardRefresh }
func (General) EventType() EventType { return EventGeneral }

func (BillReminder) isPayload() {}
func (GoalProgress) isPayload() {}
func (ExpenseChange) isPayload() {}
func (SubscriptionAdded) isPayload() {}
func (SubscriptionUpdated) isPayload() {}
func (SubscriptionDeleted) isPayload() {}
func (DashboardRefresh) isPayload() {}
func (General) isPayload() {}

func (g General) MarshalJSON() ([]byte, error) {
	if len(g.Raw) == 0 {
		return []byte("{}"), nil
	}
	return g.Raw, nil
}

func (g *General) UnmarshalJSON(b []byte) error {
	g.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Event is one realtime notification. Read is only ever set client side.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data"`
	Read      bool      `json:"read"`
}

// NewEvent stamps a fresh id and timestamp and derives Type from the payload.
func NewEvent(title, message string, data Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      data.EventType(),
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// BrokerEvent is the broker event name this event is delivered under.
func (e Event) BrokerEvent() string {
	return e.Type.BrokerEvent()
}

type eventJSON struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Read      bool            `json:"read"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, fmt.Errorf("event %s has no payload", e.ID)
	}
	if e.Type != "" && e.Type != e.Data.EventType() {
		return nil, fmt.Errorf("event type %q does not match payload type %q", e.Type, e.Data.EventType())
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", e.Data.EventType(), err)
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Type:      e.Data.EventType(),
		Title:     e.Title,
		Message:   e.Message,
		Timestamp: e.Timestamp,
		Data:      data,
		Read:      e.Read,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodePayload(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        raw.ID,
		Type:      data.EventType(),
		Title:     raw.Title,
		Message:   raw.Message,
		Timestamp: raw.Timestamp,
		Data:      data,
		Read:      raw.Read,
	}
	return nil
}

// DecodePayload decodes data into the payload struct for t. Unknown types
// decode as General.
func DecodePayload(t EventType, data json.RawMessage) (Payload, error) {
	var p Payload
	var err error
	switch t {
	case EventBillReminder:
		var v BillReminder
		err = unmarshalData(data, &v)
		p = v
	case EventGoalMilestone:
		var v GoalProgress
		err = unmarshalData(data, &v)
		p = v
	case EventExpenseUpdated:
		var v ExpenseChange
		err = unmarshalData(data, &v)
		p = v
	case EventSubscriptionAdded:
		var v SubscriptionAdded
		err = unmarshalData(data, &v)
		p = v
	case EventSubscriptionUpdated:
		var v SubscriptionUpdated
		err = unmarshalData(data, &v)
		p = v
	case EventSubscriptionDeleted:
		var v SubscriptionDeleted
		err = unmarshalData(data, &v)
		p = v
	case EventDashboardRefresh:
		var v DashboardRefresh
		err = unmarshalData(data, &v)
		p = v
	default:
		p = General{Raw: append(json.RawMessage(nil), data...)}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return p, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
