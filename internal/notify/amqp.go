package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes events as JSON to a topic exchange, routed by kind.
type AMQPNotifier struct {
	channel  *amqp.Channel
	exchange string
}

// NewAMQPNotifier wraps an open channel whose exchange is already declared.
func NewAMQPNotifier(channel *amqp.Channel, exchange string) *AMQPNotifier {
	return &AMQPNotifier{channel: channel, exchange: exchange}
}

func (n *AMQPNotifier) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = n.channel.PublishWithContext(
		ctx,
		n.exchange,
		event.Kind, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
