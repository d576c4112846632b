package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func buildTestMessage(t *testing.T) Message {
	t.Helper()
	msg, err := NewMessage().
		WithKey("dr-house").
		WithEventType("appointment.booked").
		WithValue(map[string]string{"appointment_id": "a-1"}).
		Build()
	require.NoError(t, err)
	return msg
}

func TestMessageBuilder_SetsStandardHeaders(t *testing.T) {
	msg := buildTestMessage(t)

	assert.Equal(t, "dr-house", msg.Key)
	assert.NotEmpty(t, msg.GetEventID())
	assert.Equal(t, "appointment.booked", msg.GetEventType())
	assert.Equal(t, SchemaVersion, msg.GetHeader(HeaderSchemaVersion))

	var payload map[string]string
	require.NoError(t, msg.DecodeValue(&payload))
	assert.Equal(t, "a-1", payload["appointment_id"])
}

func TestMessageBuilder_UnencodableValue(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestProducer_PublishWritesKeyedMessage(t *testing.T) {
	writer := &recordingWriter{}
	p := newProducerWithWriters("appointments", writer, nil, nil)

	var seen []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		seen = append(seen, msg.Topic)
		return next(ctx, msg)
	})

	require.NoError(t, p.Publish(context.Background(), buildTestMessage(t)))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "dr-house", string(writer.messages[0].Key))
	assert.Equal(t, "appointment.booked", headerValue(writer.messages[0], HeaderEventType))
	assert.Equal(t, []string{"appointments"}, seen)
}

func TestProducer_RejectsInvalidMessages(t *testing.T) {
	p := newProducerWithWriters("appointments", &recordingWriter{}, nil, nil)

	assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("{}")}), ErrEmptyKey)
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)
}

func TestProducer_FailedWriteGoesToDLQ(t *testing.T) {
	writeErr := errors.New("dial tcp: connection refused")
	writer := &recordingWriter{err: writeErr}
	dlq := &recordingWriter{}
	p := newProducerWithWriters("appointments", writer, dlq, nil)

	err := p.Publish(context.Background(), buildTestMessage(t))
	require.ErrorIs(t, err, writeErr)
	assert.Equal(t, ErrorTypeTransient, ClassifyError(err))

	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "appointments", headerValue(dlq.messages[0], HeaderOriginalTopic))
	assert.Equal(t, writeErr.Error(), headerValue(dlq.messages[0], HeaderDLQError))
}

func TestProducer_Closed(t *testing.T) {
	writer := &recordingWriter{}
	p := newProducerWithWriters("appointments", writer, nil, nil)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), buildTestMessage(t)), ErrProducerClosed)
}
