package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Handler processes one intake payload.  A returned error triggers retries
// and, ultimately, the dead-letter topic.
type Handler func(ctx context.Context, payload EventReceivedPayload) error

// readerInterface abstracts kafka.Reader for testing.
type readerInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// deadLetterer abstracts the DLQ writer for testing.
type deadLetterer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer drives the event-ingestion worker: it reads intake messages,
// hands them to the handler, and commits only after the handler succeeds.
// Messages that keep failing go to the dead-letter topic so one poison
// message never stalls the partition.
type Consumer struct {
	reader     readerInterface
	dlq        deadLetterer
	handler    Handler
	maxRetries int
	backoff    time.Duration
	logger     logging.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewConsumer builds a consumer in the configured group.
func NewConsumer(cfg config.KafkaConfig, worker config.WorkerConfig, handler Handler, logger logging.Logger) *Consumer {
	startOffset := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          TopicEventReceived,
		StartOffset:    startOffset,
		CommitInterval: 0, // explicit commits only
		MinBytes:       1,
		MaxBytes:       10 << 20,
	})
	dlq := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    TopicDeadLetter,
		Balancer: &kafka.LeastBytes{},
	}
	return &Consumer{
		reader:     reader,
		dlq:        dlq,
		handler:    handler,
		maxRetries: worker.MaxRetries,
		backoff:    worker.RetryBackoff,
		logger:     logger.Named("kafka-consumer"),
		stopped:    make(chan struct{}),
	}
}

// NewConsumerWithReader is the test constructor.
func NewConsumerWithReader(reader readerInterface, dlq deadLetterer, handler Handler, maxRetries int, backoff time.Duration, logger logging.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		dlq:        dlq,
		handler:    handler,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		stopped:    make(chan struct{}),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer close(c.stopped)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "fetch kafka message")
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("commit failed", logging.Err(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.logger.Warn("malformed envelope, dead-lettering",
			logging.String("topic", msg.Topic),
			logging.Err(err))
		c.deadLetter(ctx, msg)
		return
	}
	var payload EventReceivedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.logger.Warn("malformed payload, dead-lettering",
			logging.String("event_id", env.EventID),
			logging.Err(err))
		c.deadLetter(ctx, msg)
		return
	}

	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if err = c.handler(ctx, payload); err == nil {
			return
		}
		c.logger.Warn("intake handler failed",
			logging.String("caseref", payload.Caseref),
			logging.String("code", payload.Code),
			logging.Int("attempt", attempt+1),
			logging.Err(err))
	}

	c.logger.Error("intake message exhausted retries, dead-lettering",
		logging.String("caseref", payload.Caseref),
		logging.String("code", payload.Code),
		logging.Err(err))
	c.deadLetter(ctx, msg)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message) {
	dead := kafka.Message{Key: msg.Key, Value: msg.Value}
	if err := c.dlq.WriteMessages(ctx, dead); err != nil {
		c.logger.Error("dead-letter write failed", logging.Err(err))
	}
}

// Close stops the reader.
func (c *Consumer) Close() error {
	var err error
	c.stopOnce.Do(func() { err = c.reader.Close() })
	return err
}
