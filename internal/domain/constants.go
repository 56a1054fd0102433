package domain

import "time"

const (
	// Period is the fixed interval between two charges of an agreement.
	Period = 30 * 24 * time.Hour
	// Day is the unit used when reporting how long a payee still has to wait.
	Day = 24 * time.Hour

	// MaxMemoBytes caps every memo accepted by the ledger.
	MaxMemoBytes = 256

	// MaxAmount is the largest magnitude an asset can carry (2^62 - 1).
	MaxAmount int64 = 1<<62 - 1

	// Notification memo used when a new customer receives its overdraft line.
	OverdraftMemo = "oft|create"
)

// Role classifies a customer account.
type Role uint32

const (
	RolePersonal   Role = 1
	RoleBusiness   Role = 2
	RoleFoundation Role = 3
	RoleBankAdmin  Role = 4
)

func (r Role) Valid() bool {
	return r >= RolePersonal && r <= RoleBankAdmin
}

// CanReceiveCharges reports whether accounts of this role may be the payee of an agreement.
func (r Role) CanReceiveCharges() bool {
	return r == RoleBusiness || r == RoleBankAdmin
}

func (r Role) String() string {
	switch r {
	case RolePersonal:
		return "personal"
	case RoleBusiness:
		return "business"
	case RoleFoundation:
		return "foundation"
	case RoleBankAdmin:
		return "bank_admin"
	default:
		return "unknown"
	}
}

// AgreementState is the lifecycle flag of a recurring agreement.
type AgreementState string

const (
	AgreementActive    AgreementState = "ACTIVE"
	AgreementSuspended AgreementState = "SUSPENDED"
	AgreementCompleted AgreementState = "COMPLETED"
)

func (s AgreementState) Valid() bool {
	switch s {
	case AgreementActive, AgreementSuspended, AgreementCompleted:
		return true
	}
	return false
}
