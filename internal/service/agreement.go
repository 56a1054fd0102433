package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ayo6706/token-ledger/internal/clock"
	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/notify"
	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/ayo6706/token-ledger/internal/repository"
	"go.uber.org/zap"
)

// UpsertAgreementCmd carries every field of an agreement. ChargedPeriods and
// Enabled are hints: creation ignores both, updates only read Enabled.
type UpsertAgreementCmd struct {
	Payer          domain.Name
	Payee          domain.Name
	ServiceID      uint32
	Price          domain.Asset
	BeginsAt       time.Time
	TotalPeriods   uint32
	ChargedPeriods uint32
	Enabled        domain.AgreementState
	Memo           string
}

func (c UpsertAgreementCmd) key() models.AgreementKey {
	return models.AgreementKey{Payer: c.Payer, Payee: c.Payee, ServiceID: c.ServiceID}
}

// AgreementService runs the recurring authorization engine. Charges move
// funds only through the ledger's transfer.
type AgreementService struct {
	store     QueryStore
	ledger    *LedgerService
	notifier  notify.Notifier
	clock     clock.Clock
	authority domain.Name
}

func NewAgreementService(store QueryStore, ledger *LedgerService, notifier notify.Notifier, clk clock.Clock, authority domain.Name) *AgreementService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &AgreementService{
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		clock:     clk,
		authority: authority,
	}
}

// Upsert creates the agreement when absent, otherwise changes its state.
func (s *AgreementService) Upsert(ctx context.Context, auth domain.Authorization, cmd UpsertAgreementCmd) (models.Agreement, error) {
	var out models.Agreement
	err := runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		if err := domain.ValidateMemo(cmd.Memo); err != nil {
			return err
		}
		existing, err := u.q.GetAgreement(ctx, cmd.key())
		switch {
		case errors.Is(err, repository.ErrNotFound):
			out, err = s.create(ctx, u.q, auth, cmd)
			return err
		case err != nil:
			return fmt.Errorf("lookup agreement: %w", err)
		}

		if err := auth.Require(s.authority, existing.Payee); err != nil {
			return err
		}
		next, err := resolveEnabledHint(existing, cmd.Enabled)
		if err != nil {
			return err
		}
		out, err = transitionAgreementState(ctx, u.q, existing, next)
		return err
	})
	observability.ObserveLedgerOperation("agreement_upsert", err)
	if err != nil {
		return models.Agreement{}, err
	}
	return out, nil
}

func (s *AgreementService) create(ctx context.Context, q repository.Queries, auth domain.Authorization, cmd UpsertAgreementCmd) (models.Agreement, error) {
	if err := auth.Require(cmd.Payer); err != nil {
		return models.Agreement{}, err
	}
	if err := cmd.Payer.Validate(); err != nil {
		return models.Agreement{}, err
	}
	if err := cmd.Payee.Validate(); err != nil {
		return models.Agreement{}, err
	}
	if cmd.Payer == cmd.Payee {
		return models.Agreement{}, domain.Validationf("same_party", "payer and payee must differ")
	}
	if cmd.TotalPeriods < 1 {
		return models.Agreement{}, domain.Validationf("invalid_periods", "total periods must be at least 1")
	}
	if err := cmd.Price.Symbol.Validate(); err != nil {
		return models.Agreement{}, err
	}
	if !cmd.Price.IsValid() || cmd.Price.Amount <= 0 {
		return models.Agreement{}, domain.Validationf(domain.ErrNonPositive.Code, "price must be positive")
	}
	stats, err := s.ledger.loadStats(ctx, q, cmd.Price.Symbol.Code)
	if errors.Is(err, domain.ErrSymbolNotFound) {
		return models.Agreement{}, domain.Validationf("unknown_price_symbol", "price symbol %s is not registered", cmd.Price.Symbol.Code)
	}
	if err != nil {
		return models.Agreement{}, err
	}
	if stats.Symbol() != cmd.Price.Symbol {
		return models.Agreement{}, domain.ErrSymbolMismatch
	}

	registry := queryRegistry{q: q, authority: s.authority}
	for _, party := range []domain.Name{cmd.Payer, cmd.Payee} {
		enabled, err := registry.IsEnabled(ctx, party)
		if err != nil {
			return models.Agreement{}, err
		}
		if !enabled {
			return models.Agreement{}, domain.Statef(domain.ErrAccountDisabled.Code, "account %s is not enabled", party)
		}
	}
	role, err := registry.Role(ctx, cmd.Payee)
	if err != nil {
		return models.Agreement{}, err
	}
	if !role.CanReceiveCharges() {
		return models.Agreement{}, domain.Validationf("invalid_payee_role", "payee %s with role %s cannot receive recurring charges", cmd.Payee, role)
	}

	created, err := q.InsertAgreement(ctx, models.Agreement{
		Payer:          cmd.Payer,
		Payee:          cmd.Payee,
		ServiceID:      cmd.ServiceID,
		Price:          cmd.Price,
		BeginsAt:       clock.Seconds(cmd.BeginsAt),
		TotalPeriods:   cmd.TotalPeriods,
		ChargedPeriods: 0,
		State:          domain.AgreementActive,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Agreement{}, domain.Conflictf("agreement_exists", "agreement (payer-payee-service) already exists")
		}
		return models.Agreement{}, fmt.Errorf("insert agreement: %w", err)
	}

	zap.L().Info("agreement created",
		zap.Uint64("agreement_id", created.ID),
		zap.String("payer", created.Payer.String()),
		zap.String("payee", created.Payee.String()),
		zap.Uint32("service_id", created.ServiceID),
		zap.String("price", created.Price.String()),
		zap.Uint32("total_periods", created.TotalPeriods))
	return created, nil
}

// Erase deletes the agreement and every lookup entry pointing at it.
func (s *AgreementService) Erase(ctx context.Context, auth domain.Authorization, key models.AgreementKey, memo string) error {
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := domain.ValidateMemo(memo); err != nil {
			return err
		}
		if err := auth.Require(s.authority, key.Payee); err != nil {
			return err
		}
		existing, err := q.GetAgreement(ctx, key)
		if err != nil {
			return notFound(err, domain.ErrAgreementNotFound)
		}
		if err := q.DeleteAgreement(ctx, existing.ID); err != nil {
			return notFound(err, domain.ErrAgreementNotFound)
		}
		zap.L().Info("agreement erased", zap.Uint64("agreement_id", existing.ID))
		return nil
	})
	observability.ObserveLedgerOperation("agreement_erase", err)
	return err
}

// Charge pulls one period's price from payer to payee.
func (s *AgreementService) Charge(ctx context.Context, auth domain.Authorization, key models.AgreementKey, amount domain.Asset, memo string) (models.Agreement, error) {
	now := clock.Seconds(s.clock.Now())
	var out models.Agreement
	err := runUnit(ctx, s.store, s.notifier, func(u *unit) error {
		var err error
		out, err = s.chargeTx(ctx, u, auth, key, amount, memo, now)
		return err
	})
	observability.ObserveLedgerOperation("agreement_charge", err)
	observability.IncrementAgreementCharge(amount.Symbol.Code, chargeResult(err))
	if err != nil {
		return models.Agreement{}, err
	}
	return out, nil
}

func (s *AgreementService) chargeTx(ctx context.Context, u *unit, auth domain.Authorization, key models.AgreementKey, amount domain.Asset, memo string, now time.Time) (models.Agreement, error) {
	if err := domain.ValidateMemo(memo); err != nil {
		return models.Agreement{}, err
	}
	if err := auth.Require(s.authority, key.Payee); err != nil {
		return models.Agreement{}, err
	}
	a, err := u.q.GetAgreement(ctx, key)
	if err != nil {
		return models.Agreement{}, notFound(err, domain.ErrAgreementNotFound)
	}

	switch a.State {
	case domain.AgreementActive:
	case domain.AgreementCompleted:
		return models.Agreement{}, domain.ErrContractEnded
	default:
		return models.Agreement{}, domain.ErrAgreementInactive
	}
	if amount != a.Price {
		return models.Agreement{}, domain.Validationf(domain.ErrPriceMismatch.Code,
			"quantity %s differs from agreed price %s", amount, a.Price)
	}

	next := a.NextEligible()
	if now.Before(next) {
		return models.Agreement{}, &domain.TooEarlyError{
			NextEligible:  next,
			RemainingDays: int64(next.Sub(now) / domain.Day),
		}
	}
	if a.ChargedPeriods+1 > a.TotalPeriods {
		return models.Agreement{}, domain.ErrContractEnded
	}

	if err := s.ledger.transferTx(ctx, u, a.Payer, a.Payee, a.Price, memo, now); err != nil {
		return models.Agreement{}, err
	}

	a.ChargedPeriods++
	if a.Exhausted() {
		a.State = domain.AgreementCompleted
	}
	if err := u.q.UpdateAgreement(ctx, a); err != nil {
		return models.Agreement{}, fmt.Errorf("update agreement: %w", err)
	}

	fields := map[string]string{
		"agreement_id":    strconv.FormatUint(a.ID, 10),
		"service_id":      strconv.FormatUint(uint64(a.ServiceID), 10),
		"price":           a.Price.String(),
		"charged_periods": strconv.FormatUint(uint64(a.ChargedPeriods), 10),
		"total_periods":   strconv.FormatUint(uint64(a.TotalPeriods), 10),
		"state":           string(a.State),
	}
	u.emit(
		notify.NewEvent(notify.EventCharge, a.Payer, memo, now, fields),
		notify.NewEvent(notify.EventCharge, a.Payee, memo, now, fields),
	)
	zap.L().Info("agreement charged",
		zap.Uint64("agreement_id", a.ID),
		zap.Uint32("charged_periods", a.ChargedPeriods),
		zap.String("state", string(a.State)))
	return a, nil
}

func chargeResult(err error) string {
	if err == nil {
		return "charged"
	}
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	return "error"
}

// Get returns the agreement addressed by its natural key.
func (s *AgreementService) Get(ctx context.Context, key models.AgreementKey) (models.Agreement, error) {
	a, err := s.store.Queries().GetAgreement(ctx, key)
	if err != nil {
		return models.Agreement{}, notFound(err, domain.ErrAgreementNotFound)
	}
	return a, nil
}

func (s *AgreementService) ListByPayeePayer(ctx context.Context, payee, payer domain.Name) ([]models.Agreement, error) {
	return s.store.Queries().ListAgreementsByPayeePayer(ctx, models.PartyKey{Payee: payee, Payer: payer})
}

func (s *AgreementService) ListByPayerService(ctx context.Context, payer domain.Name, serviceID uint32) ([]models.Agreement, error) {
	return s.store.Queries().ListAgreementsByPayerService(ctx, models.ServiceKey{Account: payer, ServiceID: serviceID})
}

func (s *AgreementService) ListByPayeeService(ctx context.Context, payee domain.Name, serviceID uint32) ([]models.Agreement, error) {
	return s.store.Queries().ListAgreementsByPayeeService(ctx, models.ServiceKey{Account: payee, ServiceID: serviceID})
}

// SweepResult summarises one billing sweep.
type SweepResult struct {
	Due     int
	Charged int
	Failed  int
}

// ChargeDue charges, as the governing authority, every active agreement
// whose next period has elapsed. Each agreement is its own unit; a failure
// is logged and the sweep moves on.
func (s *AgreementService) ChargeDue(ctx context.Context, memo string) (SweepResult, error) {
	var res SweepResult
	active, err := s.store.Queries().ListAgreementsByState(ctx, domain.AgreementActive)
	if err != nil {
		return res, fmt.Errorf("list active agreements: %w", err)
	}

	auth := domain.NewAuthorization(s.authority)
	now := clock.Seconds(s.clock.Now())
	for _, a := range active {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if a.Exhausted() || now.Before(a.NextEligible()) {
			continue
		}
		res.Due++
		if _, err := s.Charge(ctx, auth, a.Key(), a.Price, memo); err != nil {
			res.Failed++
			zap.L().Warn("scheduled charge failed",
				zap.Uint64("agreement_id", a.ID),
				zap.String("payer", a.Payer.String()),
				zap.String("payee", a.Payee.String()),
				zap.Error(err))
			continue
		}
		res.Charged++
	}
	return res, nil
}
