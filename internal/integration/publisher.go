// Package integration relays stored domain events to other bounded contexts
// over Kafka. The relay polls the stream table past a persisted cursor, so
// delivery is at-least-once and survives restarts without re-reading history.
package integration

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/outboxlab/eventgate/internal/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const cursorName = "kafka"

type Publisher struct {
	db        *sqlx.DB
	writer    *kafka.Writer
	topic     string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   []string
	Topic     string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(db *sqlx.DB, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Publisher{
		db: db,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
		topic:     cfg.Topic,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.writer.Close()

	tick := time.NewTicker(p.pollEvery)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := p.publishBatch(ctx); err != nil {
				logger.Log.Error("integration publish failed", zap.Error(err))
			}
		}
	}
}

type feedRow struct {
	ID            int64     `db:"id"`
	EventID       string    `db:"event_id"`
	AggregateID   string    `db:"aggregate_id"`
	StreamVersion int64     `db:"stream_version"`
	EventName     string    `db:"event_name"`
	SchemaVersion int       `db:"schema_version"`
	Payload       []byte    `db:"payload"`
	OccurredOn    time.Time `db:"occurred_on"`
}

// publishBatch claims the cursor row, reads the next slice of the global
// feed, writes it to Kafka, then advances the cursor, all in one
// transaction, so a crash re-delivers rather than skips.
func (p *Publisher) publishBatch(ctx context.Context) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var position int64
	if err := tx.QueryRowxContext(ctx,
		`SELECT position FROM publisher_cursor WHERE name = ? FOR UPDATE`, cursorName,
	).Scan(&position); err != nil {
		return err
	}

	var rows []feedRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT id, event_id, aggregate_id, stream_version, event_name, schema_version, payload, occurred_on
		FROM events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, position, p.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return tx.Commit()
	}

	msgs := make([]kafka.Message, len(rows))
	for i, r := range rows {
		msgs[i] = kafka.Message{
			Key:   []byte(r.AggregateID),
			Value: r.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(r.EventID)},
				{Key: "event_name", Value: []byte(r.EventName)},
				{Key: "occurred_on", Value: []byte(r.OccurredOn.UTC().Format(time.RFC3339Nano))},
			},
		}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}

	last := rows[len(rows)-1].ID
	if _, err := tx.ExecContext(ctx,
		`UPDATE publisher_cursor SET position = ? WHERE name = ?`, last, cursorName,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Log.Info("published integration events",
		zap.Int("count", len(rows)), zap.Int64("cursor", last))
	return nil
}
