package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// NewAMQPPublisher builds the durable pub/sub publisher for outbound
// events and the poison queue.
func NewAMQPPublisher(amqpURL string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	cfg := amqp.NewDurablePubSubConfig(amqpURL, amqp.GenerateQueueNameTopicNameWithSuffix("rt-delivery"))
	pub, err := amqp.NewPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	return pub, nil
}

// NewAMQPSubscriber builds the durable pub/sub subscriber feeding the
// inbound event router.
func NewAMQPSubscriber(amqpURL string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	cfg := amqp.NewDurablePubSubConfig(amqpURL, amqp.GenerateQueueNameTopicNameWithSuffix("rt-delivery"))
	sub, err := amqp.NewSubscriber(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("amqp subscriber: %w", err)
	}
	return sub, nil
}
