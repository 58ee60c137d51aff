package mq

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

var errTransient = errors.New("order service timeout")

func TestFailureHandler_RetriesThroughDelayTopic(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w, "delay_topic_1m", 3, nil)

	msg := kafka.Message{Topic: "stock-locked", Key: []byte("SN-1"), Value: []byte(`{}`),
		Headers: []kafka.Header{{Key: "traceparent", Value: []byte("00-abc")}}}
	require.NoError(t, h.Handle(context.Background(), msg, errTransient))

	require.Len(t, w.msgs, 1)
	out := w.msgs[0]
	assert.Equal(t, "delay_topic_1m", out.Topic)
	assert.Equal(t, "stock-locked", GetHeader(out.Headers, HeaderRealTopic))
	assert.Equal(t, 1, RetryCount(out.Headers))
	assert.Equal(t, "00-abc", GetHeader(out.Headers, "traceparent"))
}

func TestFailureHandler_DeadLettersAfterMaxRetries(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w, "delay_topic_1m", 2, nil)

	msg := kafka.Message{Topic: "stock-locked", Partition: 3, Offset: 42, Value: []byte(`{}`),
		Headers: []kafka.Header{{Key: HeaderRetryCount, Value: []byte("2")}}}
	require.NoError(t, h.Handle(context.Background(), msg, errTransient))

	require.Len(t, w.msgs, 1)
	out := w.msgs[0]
	assert.Equal(t, "stock-locked.dlt", out.Topic)
	assert.Equal(t, "stock-locked", GetHeader(out.Headers, HeaderOriginalTopic))
	assert.Equal(t, "3", GetHeader(out.Headers, HeaderOriginalPartition))
	assert.Equal(t, "42", GetHeader(out.Headers, HeaderOriginalOffset))
	assert.Equal(t, errTransient.Error(), GetHeader(out.Headers, HeaderExceptionMessage))
}

func TestFailureHandler_NonRetryableGoesStraightToDLT(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w, "delay_topic_1m", 5, func(err error) bool { return false })

	require.NoError(t, h.Handle(context.Background(), kafka.Message{Topic: "stock-release-check"}, errors.New("bad payload")))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "stock-release-check.dlt", w.msgs[0].Topic)
}

func TestFailureHandler_WriterErrorIsReturned(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	h := NewFailureHandler(w, "delay_topic_1m", 1, nil)

	err := h.Handle(context.Background(), kafka.Message{Topic: "stock-locked"}, errTransient)
	assert.Error(t, err)
}

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	var headers []kafka.Header
	SetHeader(&headers, "k", "v1")
	SetHeader(&headers, "k", "v2")
	require.Len(t, headers, 1)
	assert.Equal(t, "v2", GetHeader(headers, "k"))

	c := KafkaHeaderCarrier(headers)
	assert.Equal(t, []string{"k"}, c.Keys())
}
