package deliver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CardSorting/hana-relay/core/correlation"
	"github.com/CardSorting/hana-relay/core/infra/logging"
	"github.com/CardSorting/hana-relay/core/infra/metrics"
	"github.com/CardSorting/hana-relay/core/infra/schema"
)

const deliverTimeout = 10 * time.Second

// ResultEnvelope is the result-queue message shape agreed with the worker side.
type ResultEnvelope struct {
	UserID   string `json:"userId"`
	Response string `json:"response"`
}

// Messenger delivers a rendered note to a destination channel. Implementations
// own the chat-platform specifics.
type Messenger interface {
	Deliver(ctx context.Context, channelID string, note Note) error
}

// Subscriber is the broker capability the consumer depends on.
type Subscriber interface {
	Subscribe(subject, queue string, handler func(data []byte) error) error
}

// Options wires a Consumer.
type Options struct {
	Cache     *correlation.Cache
	Messenger Messenger
	Retry     Policy
	Metrics   metrics.Metrics
}

// Consumer turns inbound result messages back into user-facing replies. Every
// failure path is terminal: the broker hands each message over exactly once,
// so nothing here may escape the handler.
type Consumer struct {
	cache     *correlation.Cache
	messenger Messenger
	retry     Policy
	metrics   metrics.Metrics
	envelope  *schema.Compiled
}

// New constructs a Consumer.
func New(opts Options) (*Consumer, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	envelope, err := schema.ResultEnvelope()
	if err != nil {
		return nil, err
	}
	return &Consumer{
		cache:     opts.Cache,
		messenger: opts.Messenger,
		retry:     opts.Retry.normalized(),
		metrics:   opts.Metrics,
		envelope:  envelope,
	}, nil
}

// Start subscribes the consumer to the result subject.
func (c *Consumer) Start(bus Subscriber, subject, queue string) error {
	return bus.Subscribe(subject, queue, c.Handle)
}

// Handle processes one result message. It always returns nil; malformed
// messages, correlation misses, and exhausted deliveries are logged, counted,
// and dropped.
func (c *Consumer) Handle(data []byte) error {
	if len(data) == 0 {
		logging.Warn("deliver", "empty result message dropped")
		c.metrics.IncResult(metrics.ResultInvalid)
		return nil
	}
	if err := c.envelope.Validate(data); err != nil {
		logging.Error("deliver", "malformed result message dropped", "error", err)
		c.metrics.IncResult(metrics.ResultInvalid)
		return nil
	}
	var result ResultEnvelope
	if err := json.Unmarshal(data, &result); err != nil {
		logging.Error("deliver", "undecodable result message dropped", "error", err)
		c.metrics.IncResult(metrics.ResultInvalid)
		return nil
	}

	entry, ok := c.cache.Get(result.UserID)
	if !ok {
		// Expired, never set, or already consumed. An accepted loss path,
		// but the rate is an operational signal.
		logging.Warn("deliver", "no correlation entry for result",
			"user_id", result.UserID)
		c.metrics.IncResult(metrics.ResultCorrelationMiss)
		return nil
	}
	defer c.cache.Clear(result.UserID)

	note := renderNote(entry, result)
	attempts, err := c.retry.Do(context.Background(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()
		return c.messenger.Deliver(ctx, entry.ChannelID, note)
	})
	if err != nil {
		logging.Error("deliver", "delivery exhausted",
			"user_id", result.UserID, "channel_id", entry.ChannelID,
			"attempts", attempts, "error", err)
		c.metrics.IncResult(metrics.ResultExhausted)
		return nil
	}

	logging.Info("deliver", "response delivered",
		"user_id", result.UserID, "channel_id", entry.ChannelID, "attempts", attempts)
	c.metrics.IncResult(metrics.ResultDelivered)
	return nil
}
