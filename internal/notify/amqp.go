package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// publisher is the subset of *amqp.Channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes notifications as persistent JSON messages.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       publisher
	exchange string
	key      string
	timeout  time.Duration
	log      *logger.Logger
}

// DialAMQP connects to the broker and declares the durable queue that
// receives notifications through the default exchange.
func DialAMQP(url, queue string) (*AMQPSink, error) {
	if queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	s := newAMQPSink(ch, "", queue)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch publisher, exchange, key string) *AMQPSink {
	return &AMQPSink{
		ch:       ch,
		exchange: exchange,
		key:      key,
		timeout:  5 * time.Second,
		log:      logger.With("component", "notify.amqp"),
	}
}

// Notify implements Sink. Publish failures are logged and dropped.
func (s *AMQPSink) Notify(ctx context.Context, n Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		s.log.Error("marshal notification failed", "kind", string(n.Kind), "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.mu.Lock()
	err = s.ch.PublishWithContext(pubCtx, s.exchange, s.key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         string(n.Kind),
		Timestamp:    n.At,
		Body:         body,
	})
	s.mu.Unlock()
	if err != nil {
		s.log.Error("publish notification failed", "kind", string(n.Kind), "error", err)
	}
}

// Close closes the channel and connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
