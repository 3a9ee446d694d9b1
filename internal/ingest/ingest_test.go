package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"coldchain-service/internal/models"
	"coldchain-service/internal/monitor"
)

type fakeSink struct {
	mu       sync.Mutex
	readings []models.Reading
	fullFor  int
}

func (s *fakeSink) Submit(r models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fullFor > 0 {
		s.fullFor--
		return monitor.ErrQueueFull
	}
	s.readings = append(s.readings, r)
	return nil
}

func (s *fakeSink) got() []models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Reading(nil), s.readings...)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestBatchFromTopic(t *testing.T) {
	assert.Equal(t, "insulin-7", batchFromTopic("sensors/+/readings", "sensors/insulin-7/readings"))
	assert.Equal(t, "", batchFromTopic("sensors/readings", "sensors/readings"))
	assert.Equal(t, "", batchFromTopic("sensors/#", "sensors/a/b"))
}

func TestKafkaConsumer_RunDeliversAndCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"batchId":"b1","temperature":5,"humidity":45}`)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Key: []byte("b2"), Value: []byte(`{"temperature":6,"humidity":46}`)},
	}}
	sink := &fakeSink{fullFor: 2}
	c := newKafkaConsumer(KafkaConfig{Brokers: []string{"k:9092"}, Topic: "readings", GroupID: "g", RetryDelay: time.Millisecond}, reader, sink, zaptest.NewLogger(t))

	err := c.Run(context.Background())
	require.NoError(t, err)

	got := sink.got()
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].BatchID)
	assert.Equal(t, "b2", got[1].BatchID)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed, "rejected messages are committed too")

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestKafkaConsumer_StopsWhenQueueStaysFull(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"batchId":"b1","temperature":5,"humidity":45}`)},
	}}
	sink := &fakeSink{fullFor: 1 << 30}
	c := newKafkaConsumer(KafkaConfig{RetryDelay: time.Millisecond}, reader, sink, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, reader.committed)
}

func TestNewKafkaConsumer_Validation(t *testing.T) {
	log := zaptest.NewLogger(t)
	_, err := NewKafkaConsumer(KafkaConfig{Topic: "t", GroupID: "g"}, &fakeSink{}, log)
	assert.Error(t, err)
	_, err = NewKafkaConsumer(KafkaConfig{Brokers: []string{"k"}, GroupID: "g"}, &fakeSink{}, log)
	assert.Error(t, err)
	_, err = NewKafkaConsumer(KafkaConfig{Brokers: []string{"k"}, Topic: "t"}, &fakeSink{}, log)
	assert.Error(t, err)
}

func TestMQTTSubscriber_Accept(t *testing.T) {
	sink := &fakeSink{}
	s := &MQTTSubscriber{cfg: MQTTConfig{Topic: "sensors/+/readings"}, sink: sink, log: zaptest.NewLogger(t)}

	s.accept("sensors/vaccine-3/readings", []byte(`{"deviceId":"d9","temperature":3,"humidity":50}`))
	s.accept("sensors/vaccine-3/readings", []byte(`{"temperature":"n/a","humidity":50}`))

	got := sink.got()
	require.Len(t, got, 1)
	assert.Equal(t, "vaccine-3", got[0].BatchID)
	assert.Equal(t, "d9", got[0].DeviceID)
}

func TestNewMQTTSubscriber_Validation(t *testing.T) {
	_, err := NewMQTTSubscriber(MQTTConfig{Topic: "t"}, &fakeSink{}, zaptest.NewLogger(t))
	assert.Error(t, err)

	s, err := NewMQTTSubscriber(MQTTConfig{Broker: "tcp://localhost:1883", Topic: "sensors/+/readings", ClientID: "test"}, &fakeSink{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, s.client)
}
