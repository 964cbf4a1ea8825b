package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShubhamPawar-3333/NexusCart/pkg/idempotency"
	"github.com/ShubhamPawar-3333/NexusCart/pkg/tracing"
)

// Handler processes one message payload. A nil return acknowledges the
// message; an error triggers bounded redelivery and finally the dead
// letter topic.
type Handler func(ctx context.Context, value []byte) error

type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dedup interface {
	Key(topic string, partition int, offset int64) string
	Processed(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer reads one saga topic and hands payloads to the application
// handler. Offsets are committed, and the dedup marker written, only
// after the handler succeeds or the message is parked in the DLQ, so
// delivery stays at least once end to end: a crash mid-handling leaves
// neither, and the message comes back.
type Consumer struct {
	log         *slog.Logger
	reader      messageSource
	handler     Handler
	idem        dedup
	dlq         producer
	dlqTopic    string
	maxAttempts int
	backoff     time.Duration
	tracer      trace.Tracer
	spanName    string
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, handler Handler, idem *idempotency.Store, dlq *Writer) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	c := &Consumer{
		log:         log.With("topic", topic),
		reader:      r,
		handler:     handler,
		idem:        idem,
		dlqTopic:    topic + ".dlq",
		maxAttempts: 3,
		backoff:     200 * time.Millisecond,
		tracer:      otel.Tracer("inventory-consumer"),
		spanName:    "Consume " + topic,
	}
	if dlq != nil {
		c.dlq = dlq
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		done, err := c.idem.Processed(ctx, key)
		if err != nil {
			// Redis down: fall through and rely on per-order idempotency
			// in the handlers.
			c.log.Error("idempotency check failed", "err", err)
		}
		if done {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, c.spanName)

		if err := c.process(msgCtx, msg); err != nil {
			span.End()
			// Leave the offset uncommitted and the key unmarked so the
			// message is redelivered.
			c.log.Error("handler gave up, awaiting redelivery", "offset", msg.Offset, "err", err)
			continue
		}
		span.End()
		if err := c.idem.Mark(ctx, key); err != nil {
			c.log.Error("idempotency mark failed", "key", key, "err", err)
		}
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler(ctx, msg.Value); err == nil {
			return nil
		}
		c.log.Error("handler failed", "attempt", attempt, "offset", msg.Offset, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	if c.dlq == nil {
		return err
	}
	// Retries exhausted: park the raw message so redelivery of the topic
	// is not blocked, and commit.
	dlqErr := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.dlqTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(msg.Headers, kafka.Header{Key: "x-dead-letter-reason", Value: []byte(err.Error())}),
	})
	if dlqErr != nil {
		c.log.Error("dead letter publish failed", "offset", msg.Offset, "err", dlqErr)
		return err
	}
	c.log.Error("message parked in dead letter topic", "dlq", c.dlqTopic, "offset", msg.Offset)
	return nil
}
