package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/models"
	"github.com/ayo6706/token-ledger/internal/repository"
	"go.uber.org/zap"
)

// COMPLETED is reachable from SUSPENDED only by re-enabling an exhausted
// agreement; it may still be suspended administratively.
var agreementTransitions = map[domain.AgreementState]map[domain.AgreementState]struct{}{
	domain.AgreementActive: {
		domain.AgreementSuspended: {},
		domain.AgreementCompleted: {},
	},
	domain.AgreementSuspended: {
		domain.AgreementActive:    {},
		domain.AgreementCompleted: {},
	},
	domain.AgreementCompleted: {
		domain.AgreementSuspended: {},
	},
}

func canTransition(current, next domain.AgreementState) bool {
	nextStates, ok := agreementTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// resolveEnabledHint maps the state requested on the update path to the state
// that is stored: only ACTIVE and SUSPENDED may be requested, and activating an
// exhausted agreement stores COMPLETED.
func resolveEnabledHint(a models.Agreement, hint domain.AgreementState) (domain.AgreementState, error) {
	if hint != domain.AgreementActive && hint != domain.AgreementSuspended {
		return "", domain.ErrInvalidState
	}
	if hint == domain.AgreementActive && a.Exhausted() {
		return domain.AgreementCompleted, nil
	}
	return hint, nil
}

// transitionAgreementState persists a state change; same-state requests are a no-op.
func transitionAgreementState(ctx context.Context, q repository.Queries, a models.Agreement, next domain.AgreementState) (models.Agreement, error) {
	if a.State == next {
		return a, nil
	}
	if !canTransition(a.State, next) {
		return models.Agreement{}, domain.Statef(domain.ErrInvalidState.Code, "invalid agreement state transition: %s -> %s", a.State, next)
	}
	if next == domain.AgreementCompleted && !a.Exhausted() {
		return models.Agreement{}, domain.Statef(domain.ErrInvalidState.Code, "agreement %d has uncharged periods", a.ID)
	}

	prev := a.State
	a.State = next
	if err := q.UpdateAgreement(ctx, a); err != nil {
		return models.Agreement{}, fmt.Errorf("update agreement state: %w", err)
	}
	zap.L().Info("agreement state changed",
		zap.Uint64("agreement_id", a.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	return a, nil
}
