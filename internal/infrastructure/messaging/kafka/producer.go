package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ipdocket/ipdocket/internal/application/docket"
	"github.com/ipdocket/ipdocket/internal/application/renewal"
	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// writerInterface abstracts kafka.Writer for testing.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes engine outcomes and renewal transitions.  It implements
// both the docket and the renewal Publisher ports.
type Producer struct {
	writer writerInterface
	logger logging.Logger
	closed atomic.Bool
}

var (
	_ docket.Publisher  = (*Producer)(nil)
	_ renewal.Publisher = (*Producer)(nil)
)

// NewProducer builds a producer over the configured brokers.  The writer
// routes per-message topics, so one producer covers every outbound topic.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.ProducerRetries,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{writer: w, logger: logger.Named("kafka-producer")}
}

// NewProducerWithWriter is the test constructor.
func NewProducerWithWriter(w writerInterface, logger logging.Logger) *Producer {
	return &Producer{writer: w, logger: logger}
}

// PublishTask emits one engine outcome on the task-changed topic, keyed by
// matter so per-matter ordering is preserved.
func (p *Producer) PublishTask(ctx context.Context, msg docket.TaskMessage) error {
	return p.publish(ctx, TopicTaskChanged, fmt.Sprintf("matter-%d", msg.MatterID), "task."+msg.Action, msg)
}

// PublishMatterKilled emits the terminal-event notification.
func (p *Producer) PublishMatterKilled(ctx context.Context, matterID int64, eventCode string) error {
	payload := MatterKilledPayload{MatterID: matterID, EventCode: eventCode}
	return p.publish(ctx, TopicMatterKilled, fmt.Sprintf("matter-%d", matterID), "matter.killed", payload)
}

// PublishTransition emits one renewal workflow transition, keyed by job so a
// bulk operation stays together.
func (p *Producer) PublishTransition(ctx context.Context, msg renewal.TransitionMessage) error {
	return p.publish(ctx, TopicRenewalTransition, msg.JobID, "renewal."+msg.Action, msg)
}

func (p *Producer) publish(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	if p.closed.Load() {
		return errors.New(errors.ErrCodeExternalService, "producer closed")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal payload")
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        "ipdocket",
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal envelope")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "write kafka message")
	}
	p.logger.Debug("message published",
		logging.String("topic", topic),
		logging.String("event_type", eventType))
	return nil
}

// Close flushes and shuts the writer down.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
