// Package events is the in-process event bus used when no Kafka brokers are
// configured. It mirrors the producer side of the Kafka client so the
// booking service does not care which one it is given.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const (
	metadataKey       = "key"
	metadataRequestID = "request_id"
)

type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewZapLoggerAdapter(log)),
		logger: log,
	}
}

// Publish marshals payload to JSON and hands it to current subscribers of
// topic. With no subscribers the message is dropped.
func (b *Bus) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataKey, key)
	if id := logger.RequestID(ctx); id != "" {
		msg.Metadata.Set(metadataRequestID, id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe runs handler for every message on topic until ctx ends. A
// failing handler is logged and the message acked anyway so it is not
// redelivered forever.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(context.Context, []byte) error) error {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			msgCtx := ctx
			if id := msg.Metadata.Get(metadataRequestID); id != "" {
				msgCtx = logger.WithRequestID(ctx, id)
			}
			if err := handler(msgCtx, msg.Payload); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("topic", topic),
					zap.String("message_uuid", msg.UUID),
					zap.Error(err))
			}
			msg.Ack()
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
