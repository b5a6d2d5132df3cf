package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topics published by the settlement services.
const (
	TopicUserRegistered = "membership.user_registered"
	TopicCodesGenerated = "voucher.codes_generated"
	TopicCodeSold       = "voucher.code_sold"
	TopicCodeRedeemed   = "voucher.code_redeemed"
	TopicRedeemFailed   = "voucher.redeem_failed"
	TopicUserBlocked    = "lockout.user_blocked"
	TopicUserUnblocked  = "lockout.user_unblocked"
	TopicOrderPaid      = "order.paid"
	TopicOrderPrinted   = "order.printed"
)

// AllTopics lists every topic, in publication order of a typical session.
var AllTopics = []string{
	TopicUserRegistered,
	TopicCodesGenerated,
	TopicCodeSold,
	TopicCodeRedeemed,
	TopicRedeemFailed,
	TopicUserBlocked,
	TopicUserUnblocked,
	TopicOrderPaid,
	TopicOrderPrinted,
}

// Publisher emits domain events after state has been committed.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Bus is an in-process publisher backed by a watermill go channel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NewSlogLogger(logger),
		),
		logger: logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// RunAudit logs every event on the given topics until ctx is cancelled.
func (b *Bus) RunAudit(ctx context.Context, topics ...string) error {
	for _, topic := range topics {
		msgs, err := b.pubsub.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		go func(topic string, msgs <-chan *message.Message) {
			for msg := range msgs {
				b.logger.InfoContext(ctx, "domain event",
					"topic", topic,
					"event_id", msg.UUID,
					"payload", json.RawMessage(msg.Payload),
				)
				msg.Ack()
			}
		}(topic, msgs)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, string, any) error { return nil }

// PublishAll emits the events of one committed change. Publish failures are
// logged and not returned.
func PublishAll(ctx context.Context, p Publisher, logger *slog.Logger, batch ...Envelope) {
	for _, e := range batch {
		if err := p.Publish(ctx, e.Topic, e.Payload); err != nil {
			logger.WarnContext(ctx, "event publish failed", "topic", e.Topic, "error", err)
		}
	}
}

// Envelope pairs a payload with its topic.
type Envelope struct {
	Topic   string
	Payload any
}
