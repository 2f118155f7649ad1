package subscriber

import (
	"sync"

	"budgetbot/internal/models"
)

// InboxSize is how many recent notifications an Inbox keeps.
const InboxSize = 50

// Inbox is a bounded, newest-first list of received events. It lives only
// as long as the process.
type Inbox struct {
	mu    sync.Mutex
	items []models.Event
	limit int
}

func NewInbox() *Inbox {
	return &Inbox{limit: InboxSize}
}

// Add prepends ev, dropping the oldest item once the inbox is full.
func (in *Inbox) Add(ev models.Event) {
	in.mu.Lock()
	defer in.mu.Unlock()
	ev.Read = false
	in.items = append([]models.Event{ev}, in.items...)
	if len(in.items) > in.limit {
		in.items = in.items[:in.limit]
	}
}

// Items returns a copy, newest first.
func (in *Inbox) Items() []models.Event {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]models.Event(nil), in.items...)
}

// MarkRead flags the event with id as read and reports whether it was found.
func (in *Inbox) MarkRead(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		if in.items[i].ID == id {
			in.items[i].Read = true
			return true
		}
	}
	return false
}

func (in *Inbox) MarkAllRead() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		in.items[i].Read = true
	}
}

func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, ev := range in.items {
		if !ev.Read {
			n++
		}
	}
	return n
}

func (in *Inbox) ClearAll() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = nil
}
