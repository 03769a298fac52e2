// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The indexer publishes item-error and run-complete
// events, and in serve mode consumes index requests that trigger rebuilds.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/resilience"
)

// MessageHandler processes one message. A returned error is retried with
// backoff; once the attempts are spent the message is logged and committed
// so a poison message cannot stall the partition. Wrap an error with
// resilience.Permanent to skip the retries.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of the configured consumer group.
type Consumer struct {
	reader     messageReader
	handler    MessageHandler
	retry      resilience.RetryConfig
	fetchDelay time.Duration
	logger     *slog.Logger
}

// NewConsumer creates a Consumer for topic. New group members start from the
// latest offset; requests made while no indexer was running are not replayed.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler, cfg.PublishAttempts)
}

func newConsumer(r messageReader, topic string, handler MessageHandler, attempts int) *Consumer {
	if attempts <= 0 {
		attempts = 3
	}
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		fetchDelay: time.Second,
		logger:     slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader. It returns
// nil on cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err, "retry_in", c.fetchDelay)
			select {
			case <-time.After(c.fetchDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		c.process(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
	log.Debug("message received")
	err := resilience.Retry(ctx, "kafka-handle", c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Uncommitted; the group redelivers it to the next member.
			return
		}
		log.Error("message dropped", "error", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("commit failed", "error", err)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
