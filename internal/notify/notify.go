package notify

import (
	"context"
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/google/uuid"
)

// Event types delivered to account holders.
const (
	EventTransfer        = "transfer"
	EventCharge          = "agreement.charge"
	EventCustomerSummary = "customer.summary"
)

// Event is an observation delivered to one account after its call committed.
type Event struct {
	ID      uuid.UUID         `json:"id"`
	Type    string            `json:"type"`
	Account domain.Name       `json:"account"`
	Memo    string            `json:"memo,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(kind string, account domain.Name, memo string, at time.Time, fields map[string]string) Event {
	return Event{
		ID:      uuid.New(),
		Type:    kind,
		Account: account,
		Memo:    memo,
		Fields:  fields,
		At:      at,
	}
}

// Notifier delivers events. Delivery is best effort and never fails the
// call that produced the events.
type Notifier interface {
	Notify(ctx context.Context, events ...Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, ...Event) {}

// Multi fans events out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, events...)
		}
	}
}
