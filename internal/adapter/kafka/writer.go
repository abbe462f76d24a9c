package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/config"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// batchSize bounds the messages handed to one WriteMessages call.
const batchSize = 500

// Writer publishes panel cells to a Kafka topic, one message per cell.
// It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// Store serializes every cell of every panel and publishes them in batches.
// Cells are keyed by granularity, locality, bucket and category so a
// compacted topic keeps the latest value per cell.
func (w *Writer) Store(ctx context.Context, panels []domain.Panel) error {
	msgs := make([]kafkago.Message, 0, batchSize)
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish panel cells: %w", err)
		}
		msgs = msgs[:0]
		return nil
	}

	var total int
	for _, p := range panels {
		for _, c := range p.Cells {
			msg, err := serializeToMessage(p.Granularity, p.RefreshedAt, c)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
			total++
			if len(msgs) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	w.logger.Debug("panel cells published", "topic", w.writer.Topic, "cells", total)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// cellMessage is the JSON value of a published cell.
type cellMessage struct {
	Granularity domain.Granularity `json:"granularity"`
	domain.Cell
}

// serializeToMessage marshals a panel cell into a Kafka message.
func serializeToMessage(g domain.Granularity, refreshedAt time.Time, c domain.Cell) (kafkago.Message, error) {
	data, err := json.Marshal(cellMessage{Granularity: g, Cell: c})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize panel cell: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(cellKey(g, c)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "granularity", Value: []byte(g)},
			{Key: "refreshed_at", Value: []byte(refreshedAt.Format(time.RFC3339))},
		},
	}, nil
}

func cellKey(g domain.Granularity, c domain.Cell) string {
	return string(g) + "|" + strconv.Itoa(c.Key) + "|" + c.Time.String() + "|" + string(c.Category)
}
