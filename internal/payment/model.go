package payment

import "time"

// Payment statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Payment methods accepted at creation.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodWallet       = "wallet"
)

// Payment records a charge created against the remote gateway on behalf of an
// account.
type Payment struct {
	ID             string
	UserID         string
	AccountID      string
	ChargeID       string
	AmountCents    int64
	Currency       string
	Status         string
	Method         string
	Description    string
	FailureReason  string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// ValidMethod reports whether m is a supported payment method.
func ValidMethod(m string) bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodWallet:
		return true
	default:
		return false
	}
}
