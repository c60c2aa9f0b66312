package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue events go to when none is configured.
const DefaultQueue = "seat.events"

// AMQPPublisher publishes events as persistent JSON messages to a durable
// queue on the default exchange. A dropped connection is re-dialed on the
// next publish; a channel closed by the broker is reopened on the live
// connection.
type AMQPPublisher struct {
	url    string
	queue  string
	logger *slog.Logger
	dial   func(url string) (amqpConn, error)

	mu   sync.Mutex
	conn amqpConn
	ch   amqpChannel
}

// amqpConn and amqpChannel are the parts of the client the publisher uses.
type amqpConn interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type connection struct{ *amqp.Connection }

func (c connection) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (amqpConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return connection{conn}, nil
}

// NewAMQPPublisher dials the broker and declares the queue.
func NewAMQPPublisher(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(url, queue, logger, dialAMQP)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(url, queue string, logger *slog.Logger, dial func(string) (amqpConn, error)) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{url: url, queue: queue, logger: logger, dial: dial}
}

func (p *AMQPPublisher) connectLocked() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	p.conn = conn
	if err := p.openChannelLocked(); err != nil {
		conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func (p *AMQPPublisher) openChannelLocked() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		ch.Close()
		return fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}
	p.ch = ch
	return nil
}

// ensureLocked re-dials a dropped connection or reopens a closed channel.
func (p *AMQPPublisher) ensureLocked() error {
	if p.conn == nil || p.conn.IsClosed() {
		p.logger.Warn("rabbitmq: reconnecting", slog.String("queue", p.queue))
		return p.connectLocked()
	}
	if p.ch == nil || p.ch.IsClosed() {
		p.logger.Warn("rabbitmq: reopening channel", slog.String("queue", p.queue))
		return p.openChannelLocked()
	}
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLocked(); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
