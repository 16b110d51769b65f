// Package consumer reads publication records from the ingest Kafka topic
// and feeds them to the index builder.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pubfinder/internal/indexer"
	"pubfinder/internal/record"
	apperrors "pubfinder/pkg/errors"
	"pubfinder/pkg/kafka"
)

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleRecord returns a Kafka MessageHandler that ingests each published
// record. Undecodable messages and malformed records are logged and
// dropped rather than retried; other ingest failures propagate so the
// message is redelivered.
func HandleRecord(engine *indexer.Engine) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		rec, err := kafka.DecodeJSON[record.Record](value)
		if err != nil {
			logger.Error("failed to decode record", "key", string(key), "error", err)
			return nil
		}
		if err := engine.Ingest(ctx, rec); err != nil {
			if errors.Is(err, apperrors.ErrMalformedRecord) {
				logger.Warn("dropping malformed record", "key", string(key), "error", err)
				return nil
			}
			return fmt.Errorf("ingesting record %s: %w", rec.ID, err)
		}
		logger.Info("record indexed", "doc_id", rec.ID)
		return nil
	}
}
