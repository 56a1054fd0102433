package models

import (
	"time"

	"github.com/ayo6706/token-ledger/internal/domain"
)

// Stats is the supply record of one symbol.
type Stats struct {
	Supply    domain.Asset `json:"supply"`
	MaxSupply domain.Asset `json:"max_supply"`
	Issuer    domain.Name  `json:"issuer"`
}

func (s Stats) Symbol() domain.Symbol {
	return s.MaxSupply.Symbol
}

// Headroom is how much more can be issued.
func (s Stats) Headroom() int64 {
	return s.MaxSupply.Amount - s.Supply.Amount
}

// Balance is the holding of one owner in one symbol.
type Balance struct {
	Owner   domain.Name  `json:"owner"`
	Balance domain.Asset `json:"balance"`
}

// Customer holds the policy attributes of an account.
type Customer struct {
	Account   domain.Name  `json:"account"`
	Fee       domain.Asset `json:"fee"`
	Overdraft domain.Asset `json:"overdraft"`
	Role      domain.Role  `json:"role"`
	Enabled   bool         `json:"enabled"`
}

// AgreementKey is the natural key of an agreement.
type AgreementKey struct {
	Payer     domain.Name `json:"payer"`
	Payee     domain.Name `json:"payee"`
	ServiceID uint32      `json:"service_id"`
}

// PartyKey addresses agreements between a payee and a payer.
type PartyKey struct {
	Payee domain.Name
	Payer domain.Name
}

// ServiceKey addresses agreements of one account for one service.
type ServiceKey struct {
	Account   domain.Name
	ServiceID uint32
}

// Agreement is a standing authorization for the payee to pull Price from the
// payer once per period, at most TotalPeriods times.
type Agreement struct {
	ID             uint64                `json:"id"`
	Payer          domain.Name           `json:"payer"`
	Payee          domain.Name           `json:"payee"`
	ServiceID      uint32                `json:"service_id"`
	Price          domain.Asset          `json:"price"`
	BeginsAt       time.Time             `json:"begins_at"`
	TotalPeriods   uint32                `json:"total_periods"`
	ChargedPeriods uint32                `json:"charged_periods"`
	State          domain.AgreementState `json:"state"`
}

func (a Agreement) Key() AgreementKey {
	return AgreementKey{Payer: a.Payer, Payee: a.Payee, ServiceID: a.ServiceID}
}

func (a Agreement) ByPayeePayer() PartyKey {
	return PartyKey{Payee: a.Payee, Payer: a.Payer}
}

func (a Agreement) ByPayerService() ServiceKey {
	return ServiceKey{Account: a.Payer, ServiceID: a.ServiceID}
}

func (a Agreement) ByPayeeService() ServiceKey {
	return ServiceKey{Account: a.Payee, ServiceID: a.ServiceID}
}

// NextEligible is the first instant the next period may be charged.
func (a Agreement) NextEligible() time.Time {
	period := int64(domain.Period / time.Second)
	return time.Unix(a.BeginsAt.Unix()+(int64(a.ChargedPeriods)+1)*period, 0).UTC()
}

// Exhausted reports whether every period has been charged.
func (a Agreement) Exhausted() bool {
	return a.ChargedPeriods >= a.TotalPeriods
}
