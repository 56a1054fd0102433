package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ayo6706/token-ledger/internal/clock"
	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/repository"
	"go.uber.org/zap"
)

// CustomerRegistry is the account policy lookup consumed by the ledger and
// the agreement engine.
type CustomerRegistry interface {
	Exists(ctx context.Context, account domain.Name) (bool, error)
	IsEnabled(ctx context.Context, account domain.Name) (bool, error)
	Role(ctx context.Context, account domain.Name) (domain.Role, error)
}

// queryRegistry answers registry questions from a query set, so lookups made
// inside a unit see the unit's own writes.
type queryRegistry struct {
	q         repository.Queries
	authority domain.Name
}

func (r queryRegistry) Exists(ctx context.Context, account domain.Name) (bool, error) {
	if account == r.authority {
		return true, nil
	}
	_, err := r.q.GetCustomer(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup customer: %w", err)
	}
	return true, nil
}

func (r queryRegistry) IsEnabled(ctx context.Context, account domain.Name) (bool, error) {
	c, err := r.q.GetCustomer(ctx, account)
	if err != nil {
		return false, notFound(err, customerNotFound(account))
	}
	return c.Enabled, nil
}

func (r queryRegistry) Role(ctx context.Context, account domain.Name) (domain.Role, error) {
	c, err := r.q.GetCustomer(ctx, account)
	if err != nil {
		return 0, notFound(err, customerNotFound(account))
	}
	return c.Role, nil
}

func customerNotFound(account domain.Name) error {
	return domain.NotFoundf(domain.ErrAccountNotFound.Code, "customer %s does not exist", account)
}

// UpsertCustomerCmd carries the attributes of a customer record.
type UpsertCustomerCmd struct {
	Account   domain.Name
	Fee       domain.Asset
	Overdraft domain.Asset
	Role      domain.Role
	Enabled   bool
	Memo      string
}

// CustomerService maintains the customer registry. Every write requires the
// governing authority.
type CustomerService struct {
	store     QueryStore
	ledger    *LedgerService
	notifier  notify.Notifier
	clock     clock.Clock
	authority domain.Name

	autoIssueOverdraft bool
}

func NewCustomerService(store QueryStore, ledger *LedgerService, notifier notify.Notifier, clk clock.Clock, authority domain.Name) *CustomerService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &CustomerService{
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		clock:     clk,
		authority: authority,
	}
}

// WithOverdraftAutoIssue issues a new customer's overdraft line to it on
// creation. The caller must also hold the overdraft symbol's issuer authority.
func (s *CustomerService) WithOverdraftAutoIssue(enabled bool) *CustomerService {
	s.autoIssueOverdraft = enabled
	return s
}

// Registry returns the registry view over committed state.
func (s *CustomerService) Registry() CustomerRegistry {
	return queryRegistry{q: s.store.Queries(), authority: s.authority}
}

func (s *CustomerService) Exists(ctx context.Context, account domain.Name) (bool, error) {
	return s.Registry().Exists(ctx, account)
}

func (s *CustomerService) IsEnabled(ctx context.Context, account domain.Name) (bool, error) {
	return s.Registry().IsEnabled(ctx, account)
}

func (s *CustomerService) Role(ctx context.Context, account domain.Name) (domain.Role, error) {
	return s.Registry().Role(ctx, account)
}

// Get returns the customer record of account.
func (s *CustomerService) Get(ctx context.Context, account domain.Name) (models.Customer, error) {
	c, err := s.store.Queries().GetCustomer(ctx, account)
	if err != nil {
		return models.Customer{}, notFound(err, customerNotFound(account))
	}
	return c, nil
}

func validateCustomerAsset(field string, a domain.Asset) error {
	if a.Amount < 0 {
		return domain.Validationf("invalid_"+field, "%s must not be negative", field)
	}
	if a.Amount == 0 && a.Symbol.Code == "" {
		return nil
	}
	if err := a.Symbol.Validate(); err != nil {
		return err
	}
	if !a.IsValid() {
		return domain.Validationf("invalid_"+field, "invalid %s", field)
	}
	return nil
}

// Upsert creates or replaces the customer record of cmd.Account.
func (s *CustomerService) Upsert(ctx context.Context, auth domain.Authorization, cmd UpsertCustomerCmd) (models.Customer, error) {
	customer, err := s.upsert(ctx, auth, cmd)
	observability.ObserveLedgerOperation("customer_upsert", err)
	return customer, err
}

func (s *CustomerService) upsert(ctx context.Context, auth domain.Authorization, cmd UpsertCustomerCmd) (models.Customer, error) {
	if err := auth.Require(s.authority); err != nil {
		return models.Customer{}, err
	}
	if err := cmd.Account.Validate(); err != nil {
		return models.Customer{}, err
	}
	if err := domain.ValidateMemo(cmd.Memo); err != nil {
		return models.Customer{}, err
	}
	if !cmd.Role.Valid() {
		return models.Customer{}, domain.Validationf("invalid_role", "invalid role %d", cmd.Role)
	}
	if err := validateCustomerAsset("fee", cmd.Fee); err != nil {
		return models.Customer{}, err
	}
	if err := validateCustomerAsset("overdraft", cmd.Overdraft); err != nil {
		return models.Customer{}, err
	}

	customer := models.Customer{
		Account:   cmd.Account,
		Fee:       cmd.Fee,
		Overdraft: cmd.Overdraft,
		Role:      cmd.Role,
		Enabled:   cmd.Enabled,
	}
	now := clock.Seconds(s.clock.Now())

	err := runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		_, err := u.q.GetCustomer(ctx, cmd.Account)
		created := errors.Is(err, repository.ErrNotFound)
		if err != nil && !created {
			return fmt.Errorf("lookup customer: %w", err)
		}

		if err := u.q.PutCustomer(ctx, customer); err != nil {
			return fmt.Errorf("put customer: %w", err)
		}

		if created && s.autoIssueOverdraft && cmd.Overdraft.Amount > 0 {
			if err := s.ledger.issueTx(ctx, u, auth, cmd.Account, cmd.Overdraft, domain.OverdraftMemo, now); err != nil {
				return err
			}
		}

		action := "updated"
		if created {
			action = "created"
		}
		u.emit(notify.NewEvent(notify.EventCustomerSummary, cmd.Account, cmd.Memo, now, map[string]string{
			"action":    action,
			"role":      cmd.Role.String(),
			"enabled":   strconv.FormatBool(cmd.Enabled),
			"fee":       cmd.Fee.String(),
			"overdraft": cmd.Overdraft.String(),
		}))
		return nil
	})
	if err != nil {
		return models.Customer{}, err
	}

	zap.L().Info("customer upserted", zap.String("account", cmd.Account.String()), zap.String("role", cmd.Role.String()))
	return customer, nil
}

// Erase deletes the customer record of account.
func (s *CustomerService) Erase(ctx context.Context, auth domain.Authorization, account domain.Name, memo string) error {
	err := s.erase(ctx, auth, account, memo)
	observability.ObserveLedgerOperation("customer_erase", err)
	return err
}

func (s *CustomerService) erase(ctx context.Context, auth domain.Authorization, account domain.Name, memo string) error {
	if err := auth.Require(s.authority); err != nil {
		return err
	}
	if err := domain.ValidateMemo(memo); err != nil {
		return err
	}
	now := clock.Seconds(s.clock.Now())

	return runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		if err := u.q.DeleteCustomer(ctx, account); err != nil {
			return notFound(err, customerNotFound(account))
		}
		u.emit(notify.NewEvent(notify.EventCustomerSummary, account, memo, now, map[string]string{"action": "erased"}))
		return nil
	})
}
