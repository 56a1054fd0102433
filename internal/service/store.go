package service

import (
	"context"
	"errors"

	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/ayo6706/token-ledger/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() repository.Queries
	RunInTx(ctx context.Context, fn func(q repository.Queries) error) error
}

// unit is one atomic call: transactional queries plus the events it will
// release once the transaction commits.
type unit struct {
	q      repository.Queries
	events []notify.Event
}

func (u *unit) emit(events ...notify.Event) {
	u.events = append(u.events, events...)
}

// runUnit executes fn as one all-or-nothing call and notifies only on commit.
func runUnit(ctx context.Context, store QueryStore, notifier notify.Notifier, fn func(u *unit) error) error {
	var u *unit
	err := store.RunInTx(ctx, func(q repository.Queries) error {
		u = &unit{q: q}
		return fn(u)
	})
	if err != nil {
		return err
	}
	if notifier != nil && len(u.events) > 0 {
		notifier.Notify(ctx, u.events...)
	}
	return nil
}

// notFound translates a repository miss into the given domain error and
// leaves every other error untouched.
func notFound(err error, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
