package account

import "time"

// Account types supported at creation.
const (
	TypeChecking = "checking"
	TypeSavings  = "savings"
	TypeBusiness = "business"
)

// Account statuses. Closed is terminal; suspended and active are reversible.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusClosed    = "closed"
)

// Account represents a customer account. The balance is a read-only snapshot
// here; only the ledger mutates it.
type Account struct {
	ID           string
	OwnerID      string
	Number       string
	Type         string
	BalanceCents int64
	Currency     string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidType reports whether t is a supported account type.
func ValidType(t string) bool {
	switch t {
	case TypeChecking, TypeSavings, TypeBusiness:
		return true
	default:
		return false
	}
}
