package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

const (
	// maxFailures is the number of consecutive connection failures that
	// opens the publish circuit.
	maxFailures = 5
	// openTimeout is how long the circuit stays open before a probe.
	openTimeout = 30 * time.Second

	maxBackoff = 30 * time.Second
)

// Client publishes document changes on a fanout exchange and lets every
// process consume them through its own exclusive queue.
type Client struct {
	url          string
	exchangeName string
	breaker      *gobreaker.CircuitBreaker

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	// consumers counts open consumer channels.
	consumers atomic.Int32

	// publish is replaced in tests
	publish func(ctx context.Context, msg amqp091.Publishing) error
}

func newClient(url, exchangeName string) *Client {
	c := &Client{url: url, exchangeName: exchangeName}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "amqp-publish",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isConnectionError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	c.publish = c.publishOnChannel
	return c
}

// NewClient dials the broker and declares the fanout exchange.
func NewClient(url, exchangeName string) (*Client, error) {
	c := newClient(url, exchangeName)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	if old != nil && !old.IsClosed() {
		old.Close()
	}
	return nil
}

// PublishDocumentChanged broadcasts msg to every subscriber. While the
// broker keeps failing the circuit opens and publishes fail fast.
func (c *Client) PublishDocumentChanged(ctx context.Context, msg *DocumentChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.publish(ctx, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			Timestamp:    msg.Timestamp,
			MessageId:    msg.Origin,
			Body:         body,
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker is open: %w", err)
	}
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "Published document change",
		"document_id", msg.DocumentID,
		"exchange", c.exchangeName,
		"bytes", len(body))
	return nil
}

func (c *Client) publishOnChannel(ctx context.Context, msg amqp091.Publishing) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return amqp091.ErrClosed
	}
	if err := c.channel.PublishWithContext(ctx, c.exchangeName, "", false, false, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// BreakerState reports the publish circuit state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Subscribe consumes document changes until ctx is done or the returned
// function is called. onStatus reports connection loss and recovery; after
// a loss the client reconnects with exponential backoff. The consumer
// channel is closed when consumption stops.
//
// Undecodable deliveries are rejected without requeue; handler errors are
// treated the same way.
func (c *Client) Subscribe(ctx context.Context, handler func(*DocumentChangedMessage) error, onStatus func(bool)) (func(), error) {
	sub, err := c.consume()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	if onStatus != nil {
		onStatus(true)
	}

	go func() {
		defer func() { sub.close() }()
		for {
			if !c.drain(ctx, sub, handler) {
				return
			}
			if onStatus != nil {
				onStatus(false)
			}
			sub.close()
			sub = c.reconnect(ctx)
			if sub == nil {
				return
			}
			if onStatus != nil {
				onStatus(true)
			}
		}
	}()
	return cancel, nil
}

// subscription is one consumer channel with its deliveries and the
// connection's close notifications.
type subscription struct {
	owner      *Client
	channel    *amqp091.Channel
	deliveries <-chan amqp091.Delivery
	closed     chan *amqp091.Error
}

// close releases the channel. It is safe to call more than once.
func (s *subscription) close() {
	if s == nil || s.channel == nil {
		return
	}
	ch := s.channel
	s.channel = nil
	s.owner.consumers.Add(-1)
	if ch.IsClosed() {
		return
	}
	if err := ch.Close(); err != nil {
		slog.Debug("Closing consumer channel failed", "error", err)
	}
}

// consume declares a server-named exclusive queue bound to the exchange.
func (c *Client) consume() (*subscription, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, amqp091.ErrClosed
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // name: server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack (we want manual ack)
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	c.consumers.Add(1)
	return &subscription{
		owner:      c,
		channel:    ch,
		deliveries: deliveries,
		closed:     conn.NotifyClose(make(chan *amqp091.Error, 1)),
	}, nil
}

// drain handles deliveries. It returns false when consumption should stop
// for good and true when the connection was lost.
func (c *Client) drain(ctx context.Context, sub *subscription, handler func(*DocumentChangedMessage) error) bool {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping document change consumption", "reason", ctx.Err())
			return false
		case amqpErr := <-sub.closed:
			slog.WarnContext(ctx, "AMQP connection closed", "error", amqpErr)
			return true
		case delivery, ok := <-sub.deliveries:
			if !ok {
				return ctx.Err() == nil
			}
			msg, err := DocumentChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}
			if err := handler(msg); err != nil {
				slog.WarnContext(ctx, "Dropping document change", "error", err, "document_id", msg.DocumentID)
				delivery.Nack(false, false)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) reconnect(ctx context.Context) *subscription {
	for attempt := 0; ; attempt++ {
		wait := exponentialBackoff(attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		err := c.connect()
		if err == nil {
			var sub *subscription
			sub, err = c.consume()
			if err == nil {
				slog.InfoContext(ctx, "AMQP connection restored", "attempts", attempt+1)
				return sub
			}
		}
		slog.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, "retry_in", exponentialBackoff(attempt+1), "error", err)
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
