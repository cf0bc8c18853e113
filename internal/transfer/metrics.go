package transfer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clearledger/clearledger/internal/ledger"
)

var transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clearledger_transfers_total",
	Help: "Transfer attempts by outcome",
}, []string{"outcome"})

func observeOutcome(err error) {
	switch {
	case err == nil:
		transfersTotal.WithLabelValues("completed").Inc()
	case errors.Is(err, ledger.ErrInsufficientBalance):
		transfersTotal.WithLabelValues("insufficient_balance").Inc()
	case errors.Is(err, ledger.ErrLockTimeout):
		transfersTotal.WithLabelValues("lock_timeout").Inc()
	case errors.Is(err, ledger.ErrTransferFailed):
		transfersTotal.WithLabelValues("failed").Inc()
	default:
		transfersTotal.WithLabelValues("rejected").Inc()
	}
}
