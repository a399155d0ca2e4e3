package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"energyinsight/internal/config"
	"energyinsight/internal/energy"
	"energyinsight/internal/logger"
	"energyinsight/internal/metrics"
)

// Sink receives decoded batches.
type Sink interface {
	Ingest(ctx context.Context, source string, readings []energy.Reading) (Result, error)
}

// cleanupFlushTimeout bounds the flush that ends a group session.
const cleanupFlushTimeout = 10 * time.Second

// pendingMark is a consumed message whose offset is committed once every
// reading up to it has been stored.
type pendingMark struct {
	session sarama.ConsumerGroupSession
	msg     *sarama.ConsumerMessage
}

// Consumer reads JSON readings from a Kafka topic as part of a consumer
// group and hands them to a Sink in batches. Offsets are marked only after
// the batch holding their reading was stored, so delivery is at least once.
type Consumer struct {
	group      sarama.ConsumerGroup
	topic      string
	batchSize  int
	flushEvery time.Duration
	loc        *time.Location
	sink       Sink
	log        logger.Logger

	mu      sync.Mutex
	buf     []energy.Reading
	pending []pendingMark
}

// NewConsumer joins the configured consumer group.
func NewConsumer(cfg *config.Config, sink Sink, loc *time.Location, log logger.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	sc.Consumer.MaxWaitTime = 250 * time.Millisecond

	group, err := sarama.NewConsumerGroup(cfg.Brokers(), cfg.KafkaGroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("join consumer group %s: %w", cfg.KafkaGroupID, err)
	}
	return newConsumer(group, cfg.KafkaTopic, cfg.KafkaBatchSize, cfg.KafkaFlushInterval(), loc, sink, log), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string, batchSize int, flushEvery time.Duration, loc *time.Location, sink Sink, log logger.Logger) *Consumer {
	return &Consumer{
		group:      group,
		topic:      topic,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		loc:        loc,
		sink:       sink,
		log:        log.With(logger.String("topic", topic)),
		buf:        make([]energy.Reading, 0, batchSize),
	}
}

// Run consumes until ctx is cancelled. Each group session flushes what it
// buffered before its offsets are committed for the last time.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Error(ctx, "consumer group error", logger.Error(err))
		}
	}()

	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				_ = c.Flush(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	handler := &groupHandler{consumer: c}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("consume %s: %w", c.topic, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// add queues a consumed message. r is nil for messages that did not decode;
// they are still marked in order with the readings around them. A full
// buffer is flushed and the flush error returned.
func (c *Consumer) add(ctx context.Context, r *energy.Reading, mark pendingMark) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r != nil {
		c.buf = append(c.buf, *r)
	}
	c.pending = append(c.pending, mark)
	if len(c.buf) >= c.batchSize {
		return c.flushLocked(ctx)
	}
	return nil
}

// Flush hands the buffered readings to the sink. On failure the buffer is
// kept for the next attempt and no offset is marked.
func (c *Consumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flushLocked(ctx)
}

func (c *Consumer) flushLocked(ctx context.Context) error {
	if len(c.buf) > 0 {
		batch := make([]energy.Reading, len(c.buf))
		copy(batch, c.buf)

		res, err := c.sink.Ingest(ctx, SourceKafka, batch)
		if err != nil && !errors.Is(err, ErrNoValidReadings) {
			c.log.Error(ctx, "flush failed", logger.Int("count", len(batch)), logger.Error(err))
			return err
		}
		c.buf = c.buf[:0]
		c.log.Debug(ctx, "flushed batch", logger.Int("accepted", res.Accepted), logger.Int("rejected", res.Rejected))
	}

	for _, p := range c.pending {
		p.session.MarkMessage(p.msg, "")
	}
	c.pending = c.pending[:0]
	return nil
}

// discard forgets buffered readings whose offsets were never marked. The
// group redelivers them to whichever member owns the partition next.
func (c *Consumer) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = c.buf[:0]
	c.pending = c.pending[:0]
}

// waitForFlush blocks consumption until the buffer is stored or ctx ends.
func (c *Consumer) waitForFlush(ctx context.Context) {
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Flush(ctx) == nil {
				return
			}
		}
	}
}

func decodeMessage(value []byte, loc *time.Location) (energy.Reading, error) {
	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return energy.Reading{}, fmt.Errorf("%w: %v", energy.ErrInvalidReading, err)
	}
	return rec.Reading(0, loc)
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(_ sarama.ConsumerGroupSession) error { return nil }

// Cleanup runs before the session commits its offsets for the last time.
func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupFlushTimeout)
	defer cancel()
	if err := h.consumer.Flush(ctx); err != nil {
		h.consumer.discard()
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	c := h.consumer
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			var reading *energy.Reading
			r, err := decodeMessage(msg.Value, c.loc)
			if err != nil {
				metrics.IngestErrors.WithLabelValues(SourceKafka, "decode").Inc()
				c.log.Warn(ctx, "dropping message",
					logger.Int("partition", int(msg.Partition)),
					logger.Any("offset", msg.Offset),
					logger.Error(err))
			} else {
				reading = &r
			}
			if err := c.add(ctx, reading, pendingMark{session: session, msg: msg}); err != nil {
				c.waitForFlush(ctx)
			}
		}
	}
}
