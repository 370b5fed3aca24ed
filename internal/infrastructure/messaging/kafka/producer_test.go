package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	apprenewal "github.com/ipdocket/ipdocket/internal/application/renewal"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

type capturingWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *capturingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *capturingWriter) Close() error { return nil }

func TestProducer_PublishTaskEnvelope(t *testing.T) {
	w := &capturingWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	msg := appdocket.TaskMessage{
		MatterID:  7,
		EventID:   12,
		EventCode: "FIL",
		TaskID:    99,
		TaskCode:  "RESP",
		Action:    "created",
		At:        time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishTask(context.Background(), msg))
	require.Len(t, w.msgs, 1)

	out := w.msgs[0]
	assert.Equal(t, TopicTaskChanged, out.Topic)
	assert.Equal(t, "matter-7", string(out.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(out.Value, &env))
	assert.Equal(t, "task.created", env.EventType)
	assert.Equal(t, "ipdocket", env.Source)
	assert.NotEmpty(t, env.EventID)

	var got appdocket.TaskMessage
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, msg.TaskID, got.TaskID)
	assert.Equal(t, msg.EventCode, got.EventCode)
}

func TestProducer_PublishTransitionKeyedByJob(t *testing.T) {
	w := &capturingWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())

	msg := apprenewal.TransitionMessage{
		TaskID: 3, JobID: "job-abc", Action: "update_step",
		FromStep: 0, ToStep: 1, At: time.Now().UTC(),
	}
	require.NoError(t, p.PublishTransition(context.Background(), msg))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, TopicRenewalTransition, w.msgs[0].Topic)
	assert.Equal(t, "job-abc", string(w.msgs[0].Key))
}

func TestProducer_ClosedProducerRefuses(t *testing.T) {
	w := &capturingWriter{}
	p := NewProducerWithWriter(w, logging.NewNopLogger())
	require.NoError(t, p.Close())

	err := p.PublishMatterKilled(context.Background(), 1, "EXP")
	assert.Error(t, err)
	assert.Empty(t, w.msgs)
}
