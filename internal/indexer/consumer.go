package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"MiniMarket/internal/events"
)

const retryBackoff = 200 * time.Millisecond

// Applier is what the consumer hands decoded envelopes to.
type Applier interface {
	Apply(ctx context.Context, env events.Envelope) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer applies envelopes in partition order and commits an offset only
// after its envelope was applied. A message that cannot be decoded, or whose
// envelope Apply reports as ErrPermanent, is logged and committed so it does
// not wedge the partition. Any other failure is retried.
type Consumer struct {
	r   messageReader
	log *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return &Consumer{r: r, log: log}
}

func (c *Consumer) Run(ctx context.Context, a Applier) error {
	defer c.r.Close()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, a, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, a Applier, m kafka.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		c.log.Warn("skip undecodable message",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		return c.r.CommitMessages(ctx, m)
	}

	for {
		err := a.Apply(ctx, env)
		if err == nil {
			break
		}
		if errors.Is(err, ErrPermanent) {
			c.log.Error("skip unprojectable event",
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType),
				zap.String("deployment_id", env.Deployment),
				zap.Error(err),
			)
			break
		}
		c.log.Warn("apply failed, retrying",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}

	return c.r.CommitMessages(ctx, m)
}
