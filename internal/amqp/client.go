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

	applog "moneymind/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishRetries = 3
	publishTimeout = 5 * time.Second

	// maxSyncAttempts bounds redeliveries of a sync message whose handler
	// keeps failing before it is dropped to the dead-letter path.
	maxSyncAttempts = 5
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Client publishes ledger change events and consumes sync deliveries over a
// single direct exchange. Each queue is bound with its own name as routing key.
type Client struct {
	url          string
	exchangeName string
	changesQueue string
	syncQueue    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time

	// syncFailures counts consecutive handler failures on the sync queue.
	syncFailures int
	// retryDelay is waited before a failed sync delivery is requeued.
	retryDelay func(attempt int) time.Duration
}

func NewClient(url, exchangeName, changesQueue, syncQueue string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		changesQueue: changesQueue,
		syncQueue:    syncQueue,
		retryDelay:   exponentialBackoff,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.changesQueue, c.syncQueue); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchange string, queues ...string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range queues {
		if q == "" {
			continue
		}
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// PublishLedgerChanged publishes a change event, retrying with exponential
// backoff and reconnecting on connection errors.
func (c *Client) PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish ledger change: %w", ErrCircuitOpen)
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.publish(ctx, c.changesQueue, body)
		if lastErr == nil {
			c.recordSuccess()
			slog.InfoContext(ctx, "Published ledger change",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldOwner, msg.Owner,
				applog.FieldVersion, msg.Version,
				"reason", msg.Reason,
				"exchange", c.exchangeName,
				"queue", c.changesQueue)
			return nil
		}

		c.recordFailure()
		if !isConnectionError(lastErr) {
			break
		}
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldErrorType, applog.ErrorTypeNetwork,
			"attempt", attempt+1,
			applog.FieldError, lastErr)
		c.resetConnection()
		if err := c.connect(); err != nil {
			lastErr = err
		}
	}
	return fmt.Errorf("publish ledger change: %w", lastErr)
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return errors.New("connection closed")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeLedgerSync delivers sync messages to handler until ctx is done.
// Undecodable deliveries are dropped. Handler failures are requeued after a
// backoff and dropped once a redelivered message has failed maxSyncAttempts
// times in a row.
func (c *Client) ConsumeLedgerSync(ctx context.Context, handler func(context.Context, *LedgerSyncMessage) error) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return errors.New("amqp channel not open")
	}

	msgs, err := ch.Consume(
		c.syncQueue, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger sync messages",
		applog.FieldComponent, applog.ComponentAMQP, "queue", c.syncQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption",
				applog.FieldComponent, applog.ComponentAMQP, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handleSyncDelivery(ctx, delivery, handler)
		}
	}
}

// handleSyncDelivery settles one sync delivery. It is only called from the
// consumer loop, so syncFailures needs no locking.
func (c *Client) handleSyncDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, *LedgerSyncMessage) error) {
	msg, err := LedgerSyncMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal sync message",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		c.syncFailures++
		attempts := c.syncFailures
		if delivery.Redelivered && attempts >= maxSyncAttempts {
			c.syncFailures = 0
			slog.ErrorContext(ctx, "Dropping sync message after repeated failures",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldOperation, applog.OpSync,
				applog.FieldOwner, msg.Owner,
				"attempts", attempts,
				applog.FieldError, err)
			delivery.Nack(false, false)
			return
		}

		delay := c.requeueDelay(attempts)
		slog.ErrorContext(ctx, "Failed to handle sync message",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldOperation, applog.OpSync,
			applog.FieldOwner, msg.Owner,
			"attempts", attempts,
			"retry_in", delay,
			applog.FieldError, err)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		delivery.Nack(false, true)
		return
	}

	c.syncFailures = 0
	delivery.Ack(false)
	slog.InfoContext(ctx, "Processed ledger sync message",
		applog.FieldComponent, applog.ComponentAMQP,
		applog.FieldOperation, applog.OpSync,
		applog.FieldOwner, msg.Owner)
}

func (c *Client) requeueDelay(attempts int) time.Duration {
	if c.retryDelay == nil {
		return exponentialBackoff(attempts - 1)
	}
	return c.retryDelay(attempts - 1)
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		since := time.Since(c.lastFailure)
		c.mu.Unlock()
		if since > openTimeout {
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

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
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
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
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
