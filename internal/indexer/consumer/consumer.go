// Package consumer rebuilds the lookup index on demand: from the HTTP API
// through Rebuilder, or from index-request events read off Kafka.
package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/logger"
)

// Starter is the part of kafka.Consumer the IndexConsumer needs.
type Starter interface {
	Start(ctx context.Context) error
}

// IndexConsumer drives rebuilds from the index-requests topic.
type IndexConsumer struct {
	consumer Starter
	logger   *slog.Logger
}

func New(kafkaConsumer Starter) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleRequest returns a MessageHandler that runs one rebuild per
// IndexRequest. Undecodable messages and requests arriving while a rebuild
// is running are logged and skipped, so they are not redelivered forever.
func HandleRequest(r *Rebuilder) kafka.MessageHandler {
	log := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[events.IndexRequest](value)
		if err != nil {
			log.Error("failed to decode index request",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if req.RequestID != "" {
			ctx = logger.WithRequestID(ctx, req.RequestID)
		}
		res, err := r.Rebuild(ctx, req.Roots)
		switch {
		case errors.Is(err, apperrors.ErrRebuildInProgress):
			logger.FromContext(ctx).Warn("index request skipped, rebuild in progress", "roots", req.Roots)
			return nil
		case errors.Is(err, apperrors.ErrNoRoots), errors.Is(err, apperrors.ErrInvalidInput):
			logger.FromContext(ctx).Error("index request rejected", "roots", req.Roots, "error", err)
			return nil
		case err != nil:
			return err
		}
		logger.FromContext(ctx).Info("index request completed",
			"run_id", res.RunID,
			"files", res.Index.FileCount(),
			"interrupted", res.Interrupted,
		)
		return nil
	}
}
