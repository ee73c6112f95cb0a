// Package amqp publishes sync state events to a RabbitMQ topic exchange so
// other processes can follow an installation's sync progress.
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

	"fintrack/internal/core"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
	eventBuffer    = 64
)

// Client publishes sync state events. A failing broker opens the circuit
// breaker so publishing never stalls the caller; the connection is re-dialled
// with exponential backoff.
type Client struct {
	url          string
	exchangeName string
	routingKey   string

	mu            sync.Mutex
	conn          *amqp091.Connection
	channel       *amqp091.Channel
	dialAttempt   int
	nextDialAfter time.Time

	state        int32
	failureCount int64
	lastFailure  time.Time

	events chan *SyncStateEvent
}

// NewClient dials the broker and declares the exchange.
func NewClient(url, exchangeName, routingKey string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		events:       make(chan *SyncStateEvent, eventBuffer),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
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
		"topic",        // type
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

	c.conn = conn
	c.channel = channel
	c.dialAttempt = 0
	return nil
}

// channelLocked returns a usable channel, re-dialling when the previous
// connection was lost and the backoff delay has passed.
func (c *Client) channelLocked() (*amqp091.Channel, error) {
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.dropLocked()

	if now := time.Now(); now.Before(c.nextDialAfter) {
		return nil, fmt.Errorf("reconnect to AMQP in %s", c.nextDialAfter.Sub(now).Round(time.Millisecond))
	}
	if err := c.connectLocked(); err != nil {
		delay := exponentialBackoff(c.dialAttempt)
		c.dialAttempt++
		c.nextDialAfter = time.Now().Add(delay)
		slog.Warn("AMQP reconnect failed", "attempt", c.dialAttempt, "retry_in", delay, "error", err)
		return nil, err
	}
	slog.Info("AMQP connection re-established", "exchange", c.exchangeName)
	return c.channel, nil
}

func (c *Client) dropLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// PublishSyncState publishes one event on the configured routing key.
func (c *Client) PublishSyncState(ctx context.Context, event *SyncStateEvent) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, skipping publish")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel, err := c.channelLocked()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("get channel: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.dropLocked()
		}
		return fmt.Errorf("publish event: %w", err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published sync state event",
		"installation_id", event.InstallationID,
		"status", event.Status,
		"pending", event.PendingChangeCount)
	return nil
}

// Forward returns a sync state subscriber that hands events to Run. It never
// blocks: when the buffer is full the event is dropped.
func (c *Client) Forward(installationID string) func(core.SyncState) {
	return func(state core.SyncState) {
		select {
		case c.events <- NewSyncStateEvent(installationID, state):
		default:
			slog.Warn("Sync state event dropped, publisher is behind", "status", state.Status)
		}
	}
}

// Run publishes forwarded events until ctx is done.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.events:
			if err := c.PublishSyncState(ctx, event); err != nil {
				slog.WarnContext(ctx, "Failed to publish sync state event", "error", err)
			}
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		err = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); cerr != nil {
			err = cerr
		}
		c.conn = nil
	}
	return err
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		elapsed := time.Since(c.lastFailure)
		c.mu.Unlock()
		if elapsed > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// recordFailure is called with c.mu held or from tests.
func (c *Client) recordFailure() {
	failures := atomic.AddInt64(&c.failureCount, 1)
	c.lastFailure = time.Now()
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", failures)
		}
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
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
