package storage

import (
	"fmt"

	"github.com/dkezh/casket/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// NewAMQPChannel dials RabbitMQ and declares the event exchange.
func NewAMQPChannel(cfg config.AMQPConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}

	return conn, channel, nil
}
