package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerManager handles durable consumer creation and retrieval.
type ConsumerManager struct {
	js jetstream.JetStream
}

// NewConsumerManager creates a new ConsumerManager.
func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable consumer on the events stream.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, name, filterSubject string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}

	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, StreamEvents, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, StreamEvents, err)
	}
	return consumer, nil
}

// Tail fetches events from consumer until ctx is done, handing each to fn
// and acknowledging it. A handler error leaves the message for redelivery.
func Tail(ctx context.Context, consumer jetstream.Consumer, fn func(subject string, data []byte) error) error {
	for {
		batch, err := consumer.Fetch(10, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching events", "error", err)
			continue
		}

		for msg := range batch.Messages() {
			if err := fn(msg.Subject(), msg.Data()); err != nil {
				slog.Warn("event handler failed", "subject", msg.Subject(), "error", err)
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
