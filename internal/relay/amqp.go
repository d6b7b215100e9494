package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Vinayak0723/cryptoexchange/internal/config"
)

// AMQPPublisher publishes envelopes to a fanout exchange, routing key =
// connection key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // amqp.Channel is not safe for concurrent publishing
	ch *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(cfg config.AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

// Name implements Publisher.
func (p *AMQPPublisher) Name() string { return "amqp" }

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, batch []Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, env := range batch {
		msg, err := toPublishing(env)
		if err != nil {
			return err
		}

		err = p.ch.PublishWithContext(ctx,
			p.exchange, // exchange
			env.Key,    // routing key
			false,      // mandatory
			false,      // immediate
			msg,
		)
		if err != nil {
			return fmt.Errorf("amqp publish %s: %w", env.Key, err)
		}
	}
	return nil
}

// Close implements Publisher.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil && err != amqp.ErrClosed {
		p.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return p.conn.Close()
}

func toPublishing(env Envelope) (amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode envelope: %w", err)
	}

	return amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   env.ReceivedAt,
		Type:        env.Event,
		AppId:       env.Instance,
		Headers: amqp.Table{
			"key":     env.Key,
			"conn_id": env.ConnID,
		},
		Body: body,
	}, nil
}
