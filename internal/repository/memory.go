package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
)

type balanceKey struct {
	owner domain.Name
	code  string
}

type idSet map[uint64]struct{}

type memState struct {
	stats      map[string]models.Stats
	balances   map[balanceKey]models.Balance
	customers  map[domain.Name]models.Customer
	agreements map[uint64]models.Agreement

	byKey          map[models.AgreementKey]uint64
	byPayeePayer   map[models.PartyKey]idSet
	byPayerService map[models.ServiceKey]idSet
	byPayeeService map[models.ServiceKey]idSet

	nextID uint64
}

// MemoryStore keeps every record set in process memory. Units of work are
// serialized by a single lock; a failed unit replays its undo log so no
// partial write survives.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		stats:          make(map[string]models.Stats),
		balances:       make(map[balanceKey]models.Balance),
		customers:      make(map[domain.Name]models.Customer),
		agreements:     make(map[uint64]models.Agreement),
		byKey:          make(map[models.AgreementKey]uint64),
		byPayeePayer:   make(map[models.PartyKey]idSet),
		byPayerService: make(map[models.ServiceKey]idSet),
		byPayeeService: make(map[models.ServiceKey]idSet),
		nextID:         1,
	}}
}

// Queries returns a query set that locks per call.
func (s *MemoryStore) Queries() Queries {
	return &memQueries{store: s, state: s.state}
}

// RunInTx executes fn while holding the store lock and rolls back on error or panic.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Queries) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &memQueries{state: s.state, inTx: true}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memQueries struct {
	store *MemoryStore
	state *memState
	inTx  bool
	undo  []func()
}

func (q *memQueries) rlock() func() {
	if q.inTx {
		return func() {}
	}
	q.store.mu.RLock()
	return q.store.mu.RUnlock
}

func (q *memQueries) lock() func() {
	if q.inTx {
		return func() {}
	}
	q.store.mu.Lock()
	return q.store.mu.Unlock
}

func (q *memQueries) record(fn func()) {
	if q.inTx {
		q.undo = append(q.undo, fn)
	}
}

func (q *memQueries) rollback() {
	for i := len(q.undo) - 1; i >= 0; i-- {
		q.undo[i]()
	}
	q.undo = nil
}

func (q *memQueries) GetStats(_ context.Context, code string) (models.Stats, error) {
	defer q.rlock()()
	st, ok := q.state.stats[code]
	if !ok {
		return models.Stats{}, ErrNotFound
	}
	return st, nil
}

func (q *memQueries) ListStats(_ context.Context) ([]models.Stats, error) {
	defer q.rlock()()
	out := make([]models.Stats, 0, len(q.state.stats))
	for _, st := range q.state.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol().Code < out[j].Symbol().Code })
	return out, nil
}

func (q *memQueries) InsertStats(_ context.Context, stats models.Stats) error {
	defer q.lock()()
	code := stats.Symbol().Code
	if _, ok := q.state.stats[code]; ok {
		return ErrDuplicate
	}
	q.state.stats[code] = stats
	q.record(func() { delete(q.state.stats, code) })
	return nil
}

func (q *memQueries) UpdateStats(_ context.Context, stats models.Stats) error {
	defer q.lock()()
	code := stats.Symbol().Code
	prev, ok := q.state.stats[code]
	if !ok {
		return ErrNotFound
	}
	q.state.stats[code] = stats
	q.record(func() { q.state.stats[code] = prev })
	return nil
}

func (q *memQueries) GetBalance(_ context.Context, owner domain.Name, code string) (models.Balance, error) {
	defer q.rlock()()
	b, ok := q.state.balances[balanceKey{owner, code}]
	if !ok {
		return models.Balance{}, ErrNotFound
	}
	return b, nil
}

func (q *memQueries) ListBalances(_ context.Context, owner domain.Name) ([]models.Balance, error) {
	defer q.rlock()()
	var out []models.Balance
	for k, b := range q.state.balances {
		if k.owner == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance.Symbol.Code < out[j].Balance.Symbol.Code })
	return out, nil
}

func (q *memQueries) PutBalance(_ context.Context, balance models.Balance) error {
	defer q.lock()()
	key := balanceKey{balance.Owner, balance.Balance.Symbol.Code}
	prev, existed := q.state.balances[key]
	q.state.balances[key] = balance
	q.record(func() {
		if existed {
			q.state.balances[key] = prev
		} else {
			delete(q.state.balances, key)
		}
	})
	return nil
}

func (q *memQueries) DeleteBalance(_ context.Context, owner domain.Name, code string) error {
	defer q.lock()()
	key := balanceKey{owner, code}
	prev, ok := q.state.balances[key]
	if !ok {
		return ErrNotFound
	}
	delete(q.state.balances, key)
	q.record(func() { q.state.balances[key] = prev })
	return nil
}

func (q *memQueries) SumBalances(_ context.Context, code string) (int64, error) {
	defer q.rlock()()
	var sum int64
	for k, b := range q.state.balances {
		if k.code == code {
			sum += b.Balance.Amount
		}
	}
	return sum, nil
}

func (q *memQueries) GetCustomer(_ context.Context, account domain.Name) (models.Customer, error) {
	defer q.rlock()()
	c, ok := q.state.customers[account]
	if !ok {
		return models.Customer{}, ErrNotFound
	}
	return c, nil
}

func (q *memQueries) PutCustomer(_ context.Context, customer models.Customer) error {
	defer q.lock()()
	prev, existed := q.state.customers[customer.Account]
	q.state.customers[customer.Account] = customer
	q.record(func() {
		if existed {
			q.state.customers[customer.Account] = prev
		} else {
			delete(q.state.customers, customer.Account)
		}
	})
	return nil
}

func (q *memQueries) DeleteCustomer(_ context.Context, account domain.Name) error {
	defer q.lock()()
	prev, ok := q.state.customers[account]
	if !ok {
		return ErrNotFound
	}
	delete(q.state.customers, account)
	q.record(func() { q.state.customers[account] = prev })
	return nil
}

func (q *memQueries) GetAgreement(_ context.Context, key models.AgreementKey) (models.Agreement, error) {
	defer q.rlock()()
	id, ok := q.state.byKey[key]
	if !ok {
		return models.Agreement{}, ErrNotFound
	}
	return q.state.agreements[id], nil
}

func (q *memQueries) InsertAgreement(_ context.Context, agreement models.Agreement) (models.Agreement, error) {
	defer q.lock()()
	if _, ok := q.state.byKey[agreement.Key()]; ok {
		return models.Agreement{}, ErrDuplicate
	}
	prevNext := q.state.nextID
	agreement.ID = q.state.nextID
	q.state.nextID++
	q.state.index(agreement)
	q.record(func() {
		q.state.unindex(agreement)
		q.state.nextID = prevNext
	})
	return agreement, nil
}

func (q *memQueries) UpdateAgreement(_ context.Context, agreement models.Agreement) error {
	defer q.lock()()
	prev, ok := q.state.agreements[agreement.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Key() != agreement.Key() {
		return fmt.Errorf("update agreement %d: natural key is immutable", agreement.ID)
	}
	q.state.agreements[agreement.ID] = agreement
	q.record(func() { q.state.agreements[prev.ID] = prev })
	return nil
}

func (q *memQueries) DeleteAgreement(_ context.Context, id uint64) error {
	defer q.lock()()
	prev, ok := q.state.agreements[id]
	if !ok {
		return ErrNotFound
	}
	q.state.unindex(prev)
	q.record(func() { q.state.index(prev) })
	return nil
}

func (q *memQueries) ListAgreementsByPayeePayer(_ context.Context, key models.PartyKey) ([]models.Agreement, error) {
	defer q.rlock()()
	return q.state.collect(q.state.byPayeePayer[key]), nil
}

func (q *memQueries) ListAgreementsByPayerService(_ context.Context, key models.ServiceKey) ([]models.Agreement, error) {
	defer q.rlock()()
	return q.state.collect(q.state.byPayerService[key]), nil
}

func (q *memQueries) ListAgreementsByPayeeService(_ context.Context, key models.ServiceKey) ([]models.Agreement, error) {
	defer q.rlock()()
	return q.state.collect(q.state.byPayeeService[key]), nil
}

func (q *memQueries) ListAgreementsByState(_ context.Context, state domain.AgreementState) ([]models.Agreement, error) {
	defer q.rlock()()
	ids := make(idSet)
	for id, a := range q.state.agreements {
		if a.State == state {
			ids[id] = struct{}{}
		}
	}
	return q.state.collect(ids), nil
}

// index stores the body once and points every derived key at its id.
func (st *memState) index(a models.Agreement) {
	st.agreements[a.ID] = a
	st.byKey[a.Key()] = a.ID
	addID(st.byPayeePayer, a.ByPayeePayer(), a.ID)
	addID(st.byPayerService, a.ByPayerService(), a.ID)
	addID(st.byPayeeService, a.ByPayeeService(), a.ID)
}

func (st *memState) unindex(a models.Agreement) {
	delete(st.agreements, a.ID)
	delete(st.byKey, a.Key())
	removeID(st.byPayeePayer, a.ByPayeePayer(), a.ID)
	removeID(st.byPayerService, a.ByPayerService(), a.ID)
	removeID(st.byPayeeService, a.ByPayeeService(), a.ID)
}

func (st *memState) collect(ids idSet) []models.Agreement {
	out := make([]models.Agreement, 0, len(ids))
	for id := range ids {
		out = append(out, st.agreements[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func addID[K comparable](m map[K]idSet, key K, id uint64) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeID[K comparable](m map[K]idSet, key K, id uint64) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
