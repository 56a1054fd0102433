package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore provides Postgres-backed queries and transaction scoping.
type PgStore struct {
	db      *pgxpool.Pool
	queries *PgQueries
}

// NewPgStore creates a store wrapper around a pgx connection pool.
func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{
		db:      db,
		queries: NewPgQueries(db),
	}
}

// Queries returns the non-transactional query set.
func (s *PgStore) Queries() Queries {
	return s.queries
}

// RunInTx executes fn within a serializable database transaction.
func (s *PgStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PgQueries implements Queries over a pool or a transaction.
type PgQueries struct {
	db DBTX
}

func NewPgQueries(db DBTX) *PgQueries {
	return &PgQueries{db: db}
}

func (q *PgQueries) WithTx(tx pgx.Tx) *PgQueries {
	return &PgQueries{db: tx}
}

func mapPgError(err error, operation string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func requireOneRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const statsColumns = `code, precision, supply, max_supply, issuer`

func scanStats(row pgx.Row) (models.Stats, error) {
	var (
		code      string
		precision int16
		supply    int64
		maxSupply int64
		issuer    string
	)
	if err := row.Scan(&code, &precision, &supply, &maxSupply, &issuer); err != nil {
		return models.Stats{}, err
	}
	sym := domain.Symbol{Code: code, Precision: uint8(precision)}
	return models.Stats{
		Supply:    domain.NewAsset(supply, sym),
		MaxSupply: domain.NewAsset(maxSupply, sym),
		Issuer:    domain.Name(issuer),
	}, nil
}

func (q *PgQueries) GetStats(ctx context.Context, code string) (models.Stats, error) {
	st, err := scanStats(q.db.QueryRow(ctx, `SELECT `+statsColumns+` FROM symbol_stats WHERE code = $1`, code))
	if err != nil {
		return models.Stats{}, mapPgError(err, "get stats")
	}
	return st, nil
}

func (q *PgQueries) ListStats(ctx context.Context) ([]models.Stats, error) {
	rows, err := q.db.Query(ctx, `SELECT `+statsColumns+` FROM symbol_stats ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var out []models.Stats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (q *PgQueries) InsertStats(ctx context.Context, stats models.Stats) error {
	sym := stats.Symbol()
	_, err := q.db.Exec(ctx,
		`INSERT INTO symbol_stats (code, precision, supply, max_supply, issuer) VALUES ($1, $2, $3, $4, $5)`,
		sym.Code, int16(sym.Precision), stats.Supply.Amount, stats.MaxSupply.Amount, string(stats.Issuer))
	if err != nil {
		return mapPgError(err, "insert stats")
	}
	return nil
}

func (q *PgQueries) UpdateStats(ctx context.Context, stats models.Stats) error {
	tag, err := q.db.Exec(ctx, `UPDATE symbol_stats SET supply = $1 WHERE code = $2`,
		stats.Supply.Amount, stats.Symbol().Code)
	if err != nil {
		return mapPgError(err, "update stats")
	}
	return requireOneRow(tag)
}

const balanceColumns = `owner, code, precision, amount`

func scanBalance(row pgx.Row) (models.Balance, error) {
	var (
		owner     string
		code      string
		precision int16
		amount    int64
	)
	if err := row.Scan(&owner, &code, &precision, &amount); err != nil {
		return models.Balance{}, err
	}
	return models.Balance{
		Owner:   domain.Name(owner),
		Balance: domain.NewAsset(amount, domain.Symbol{Code: code, Precision: uint8(precision)}),
	}, nil
}

func (q *PgQueries) GetBalance(ctx context.Context, owner domain.Name, code string) (models.Balance, error) {
	b, err := scanBalance(q.db.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE owner = $1 AND code = $2`, string(owner), code))
	if err != nil {
		return models.Balance{}, mapPgError(err, "get balance")
	}
	return b, nil
}

func (q *PgQueries) ListBalances(ctx context.Context, owner domain.Name) ([]models.Balance, error) {
	rows, err := q.db.Query(ctx, `SELECT `+balanceColumns+` FROM balances WHERE owner = $1 ORDER BY code`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *PgQueries) PutBalance(ctx context.Context, balance models.Balance) error {
	sym := balance.Balance.Symbol
	_, err := q.db.Exec(ctx, `
		INSERT INTO balances (owner, code, precision, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, code) DO UPDATE SET amount = EXCLUDED.amount`,
		string(balance.Owner), sym.Code, int16(sym.Precision), balance.Balance.Amount)
	if err != nil {
		return mapPgError(err, "put balance")
	}
	return nil
}

func (q *PgQueries) DeleteBalance(ctx context.Context, owner domain.Name, code string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM balances WHERE owner = $1 AND code = $2`, string(owner), code)
	if err != nil {
		return mapPgError(err, "delete balance")
	}
	return requireOneRow(tag)
}

func (q *PgQueries) SumBalances(ctx context.Context, code string) (int64, error) {
	var sum int64
	if err := q.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM balances WHERE code = $1`, code).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return sum, nil
}

func (q *PgQueries) GetCustomer(ctx context.Context, account domain.Name) (models.Customer, error) {
	var (
		c                     models.Customer
		name, feeCode, odCode string
		feePrec, odPrec       int16
		feeAmount, odAmount   int64
		role                  int32
	)
	err := q.db.QueryRow(ctx, `
		SELECT account, fee_amount, fee_code, fee_precision, overdraft_amount, overdraft_code, overdraft_precision, role, enabled
		FROM customers WHERE account = $1`, string(account)).
		Scan(&name, &feeAmount, &feeCode, &feePrec, &odAmount, &odCode, &odPrec, &role, &c.Enabled)
	if err != nil {
		return models.Customer{}, mapPgError(err, "get customer")
	}
	c.Account = domain.Name(name)
	c.Fee = domain.NewAsset(feeAmount, domain.Symbol{Code: feeCode, Precision: uint8(feePrec)})
	c.Overdraft = domain.NewAsset(odAmount, domain.Symbol{Code: odCode, Precision: uint8(odPrec)})
	c.Role = domain.Role(role)
	return c, nil
}

func (q *PgQueries) PutCustomer(ctx context.Context, c models.Customer) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO customers (account, fee_amount, fee_code, fee_precision, overdraft_amount, overdraft_code, overdraft_precision, role, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account) DO UPDATE SET
			fee_amount = EXCLUDED.fee_amount, fee_code = EXCLUDED.fee_code, fee_precision = EXCLUDED.fee_precision,
			overdraft_amount = EXCLUDED.overdraft_amount, overdraft_code = EXCLUDED.overdraft_code,
			overdraft_precision = EXCLUDED.overdraft_precision, role = EXCLUDED.role, enabled = EXCLUDED.enabled`,
		string(c.Account), c.Fee.Amount, c.Fee.Symbol.Code, int16(c.Fee.Symbol.Precision),
		c.Overdraft.Amount, c.Overdraft.Symbol.Code, int16(c.Overdraft.Symbol.Precision),
		int32(c.Role), c.Enabled)
	if err != nil {
		return mapPgError(err, "put customer")
	}
	return nil
}

func (q *PgQueries) DeleteCustomer(ctx context.Context, account domain.Name) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM customers WHERE account = $1`, string(account))
	if err != nil {
		return mapPgError(err, "delete customer")
	}
	return requireOneRow(tag)
}

const agreementColumns = `id, payer, payee, service_id, price_amount, price_code, price_precision,
	begins_at, total_periods, charged_periods, state`

func scanAgreement(row pgx.Row) (models.Agreement, error) {
	var (
		a                     models.Agreement
		id                    int64
		payer, payee, code    string
		serviceID             int64
		amount                int64
		precision             int16
		beginsAt              time.Time
		totalPeriods, charged int64
		state                 string
	)
	if err := row.Scan(&id, &payer, &payee, &serviceID, &amount, &code, &precision,
		&beginsAt, &totalPeriods, &charged, &state); err != nil {
		return models.Agreement{}, err
	}
	a.ID = uint64(id)
	a.Payer = domain.Name(payer)
	a.Payee = domain.Name(payee)
	a.ServiceID = uint32(serviceID)
	a.Price = domain.NewAsset(amount, domain.Symbol{Code: code, Precision: uint8(precision)})
	a.BeginsAt = beginsAt.UTC()
	a.TotalPeriods = uint32(totalPeriods)
	a.ChargedPeriods = uint32(charged)
	a.State = domain.AgreementState(state)
	return a, nil
}

func (q *PgQueries) listAgreements(ctx context.Context, where string, args ...any) ([]models.Agreement, error) {
	rows, err := q.db.Query(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()

	var out []models.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *PgQueries) GetAgreement(ctx context.Context, key models.AgreementKey) (models.Agreement, error) {
	a, err := scanAgreement(q.db.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM agreements WHERE payer = $1 AND payee = $2 AND service_id = $3`,
		string(key.Payer), string(key.Payee), int64(key.ServiceID)))
	if err != nil {
		return models.Agreement{}, mapPgError(err, "get agreement")
	}
	return a, nil
}

func (q *PgQueries) InsertAgreement(ctx context.Context, a models.Agreement) (models.Agreement, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO agreements (payer, payee, service_id, price_amount, price_code, price_precision,
			begins_at, total_periods, charged_periods, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		string(a.Payer), string(a.Payee), int64(a.ServiceID), a.Price.Amount, a.Price.Symbol.Code,
		int16(a.Price.Symbol.Precision), a.BeginsAt, int64(a.TotalPeriods), int64(a.ChargedPeriods), string(a.State),
	).Scan(&id)
	if err != nil {
		return models.Agreement{}, mapPgError(err, "insert agreement")
	}
	a.ID = uint64(id)
	return a, nil
}

func (q *PgQueries) UpdateAgreement(ctx context.Context, a models.Agreement) error {
	tag, err := q.db.Exec(ctx, `UPDATE agreements SET charged_periods = $1, state = $2 WHERE id = $3`,
		int64(a.ChargedPeriods), string(a.State), int64(a.ID))
	if err != nil {
		return mapPgError(err, "update agreement")
	}
	return requireOneRow(tag)
}

func (q *PgQueries) DeleteAgreement(ctx context.Context, id uint64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM agreements WHERE id = $1`, int64(id))
	if err != nil {
		return mapPgError(err, "delete agreement")
	}
	return requireOneRow(tag)
}

func (q *PgQueries) ListAgreementsByPayeePayer(ctx context.Context, key models.PartyKey) ([]models.Agreement, error) {
	return q.listAgreements(ctx, `payee = $1 AND payer = $2`, string(key.Payee), string(key.Payer))
}

func (q *PgQueries) ListAgreementsByPayerService(ctx context.Context, key models.ServiceKey) ([]models.Agreement, error) {
	return q.listAgreements(ctx, `payer = $1 AND service_id = $2`, string(key.Account), int64(key.ServiceID))
}

func (q *PgQueries) ListAgreementsByPayeeService(ctx context.Context, key models.ServiceKey) ([]models.Agreement, error) {
	return q.listAgreements(ctx, `payee = $1 AND service_id = $2`, string(key.Account), int64(key.ServiceID))
}

func (q *PgQueries) ListAgreementsByState(ctx context.Context, state domain.AgreementState) ([]models.Agreement, error) {
	return q.listAgreements(ctx, `state = $1`, string(state))
}
