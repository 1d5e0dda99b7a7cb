package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// streamPublisher is the part of jetstream.JetStream the Publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js streamPublisher
}

// NewPublisher creates a new Publisher. js is usually Client.JetStream().
func NewPublisher(js streamPublisher) *Publisher {
	return &Publisher{js: js}
}

// PublishOutfitSubmitted publishes an accepted outfit. Redelivery of the
// same cycle is deduplicated by the stream.
func (p *Publisher) PublishOutfitSubmitted(ctx context.Context, event OutfitSubmitted) error {
	return p.publish(ctx, SubjectOutfit, event, jetstream.WithMsgID("outfit-"+event.CycleID))
}

// PublishCycleFinished publishes the outcome of a cycle.
func (p *Publisher) PublishCycleFinished(ctx context.Context, event CycleFinished) error {
	return p.publish(ctx, SubjectCycle, event, jetstream.WithMsgID("cycle-"+event.CycleID))
}

// PublishWearablesSynced publishes ingestion statistics.
func (p *Publisher) PublishWearablesSynced(ctx context.Context, event WearablesSynced) error {
	return p.publish(ctx, SubjectWearables, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload, opts...)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
