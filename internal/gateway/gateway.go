package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Charge statuses reported by the remote processor.
const (
	StatusSucceeded  = "succeeded"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

var (
	// ErrRejected indicates the processor refused the charge (bad amount,
	// unsupported currency). Not retryable.
	ErrRejected = errors.New("charge rejected by gateway")

	// ErrUnavailable indicates a transient processor failure. Retryable.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// ChargeRequest describes a charge to create remotely.
type ChargeRequest struct {
	AmountCents int64
	Currency    string
	Description string
}

// Charge is the processor's view of a charge.
type Charge struct {
	ID            string
	Status        string
	FailureReason string
}

// Gateway is the opaque remote charge capability. Failures map to ErrRejected
// or ErrUnavailable depending on the processor's error class.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	ConfirmCharge(ctx context.Context, chargeID string) (Charge, error)
}

// Static simulates a processor that approves everything. Used in development
// mode and tests.
type Static struct{}

// CreateCharge returns a synthetic processing charge.
func (Static) CreateCharge(_ context.Context, req ChargeRequest) (Charge, error) {
	if req.AmountCents <= 0 {
		return Charge{}, ErrRejected
	}
	return Charge{ID: "ch_" + uuid.NewString(), Status: StatusProcessing}, nil
}

// ConfirmCharge reports the charge as succeeded.
func (Static) ConfirmCharge(_ context.Context, chargeID string) (Charge, error) {
	return Charge{ID: chargeID, Status: StatusSucceeded}, nil
}
