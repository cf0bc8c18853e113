package events

import (
	"context"
	"log/slog"
)

// Topics published by the core.
const (
	TopicTransactions = "transaction-events"
	TopicPayments     = "payment-events"
)

// Publisher delivers events to a downstream bus, at-least-once. Publishing is
// fire-and-forget from the core's perspective: failures are logged by callers
// and never affect committed ledger state.
type Publisher interface {
	Publish(ctx context.Context, topic, partitionKey string, payload any) error
}

// LogPublisher is a bus stand-in that writes events to the structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LogPublisher) Publish(_ context.Context, topic, partitionKey string, payload any) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event published", "topic", topic, "partition_key", partitionKey, "payload", payload)
	return nil
}
