package repository

import (
	"context"
	"errors"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
)

var (
	// ErrNotFound is returned when a lookup or delete addresses no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert collides with a unique key.
	ErrDuplicate = errors.New("record already exists")
)

// Queries is the data access contract shared by the memory and Postgres stores.
type Queries interface {
	GetStats(ctx context.Context, code string) (models.Stats, error)
	ListStats(ctx context.Context) ([]models.Stats, error)
	InsertStats(ctx context.Context, stats models.Stats) error
	UpdateStats(ctx context.Context, stats models.Stats) error

	GetBalance(ctx context.Context, owner domain.Name, code string) (models.Balance, error)
	ListBalances(ctx context.Context, owner domain.Name) ([]models.Balance, error)
	PutBalance(ctx context.Context, balance models.Balance) error
	DeleteBalance(ctx context.Context, owner domain.Name, code string) error
	SumBalances(ctx context.Context, code string) (int64, error)

	GetCustomer(ctx context.Context, account domain.Name) (models.Customer, error)
	PutCustomer(ctx context.Context, customer models.Customer) error
	DeleteCustomer(ctx context.Context, account domain.Name) error

	GetAgreement(ctx context.Context, key models.AgreementKey) (models.Agreement, error)
	InsertAgreement(ctx context.Context, agreement models.Agreement) (models.Agreement, error)
	UpdateAgreement(ctx context.Context, agreement models.Agreement) error
	DeleteAgreement(ctx context.Context, id uint64) error
	ListAgreementsByPayeePayer(ctx context.Context, key models.PartyKey) ([]models.Agreement, error)
	ListAgreementsByPayerService(ctx context.Context, key models.ServiceKey) ([]models.Agreement, error)
	ListAgreementsByPayeeService(ctx context.Context, key models.ServiceKey) ([]models.Agreement, error)
	ListAgreementsByState(ctx context.Context, state domain.AgreementState) ([]models.Agreement, error)
}
