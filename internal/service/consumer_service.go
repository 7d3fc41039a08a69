package service

import (
	"context"

	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// SessionDelivery pushes an encoded event to every subscriber of a session.
type SessionDelivery interface {
	SendToSession(sessionId string, payload []byte)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	delivery  SessionDelivery
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	delivery SessionDelivery,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		delivery:  delivery,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	// Invalid messages are acked so they are never redelivered.
	defer msg.Ack()

	evt, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("Consumer", "Failed to unmarshal session event", map[string]interface{}{"error": err.Error()})
		return
	}
	if evt.SessionId() == "" {
		cs.logger.Warn("Consumer", "Dropping session event without session id", map[string]interface{}{"type": evt.EventType()})
		return
	}

	cs.delivery.SendToSession(evt.SessionId(), msg.Payload)
}
