package amqp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

// fakeAcknowledger implements amqp.Acknowledger
type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) snapshot() []ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackRecord(nil), f.records...)
}

type fakeBroker struct {
	published   [][]byte
	contentType string
	publishErr  error
	messages    chan amqp.Delivery
}

func (b *fakeBroker) Publish(_ context.Context, body []byte, contentType string) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, body)
	b.contentType = contentType
	return nil
}

func (b *fakeBroker) Consume(context.Context, string) (<-chan amqp.Delivery, error) {
	if b.messages == nil {
		return nil, errors.New("not connected to RabbitMQ")
	}
	return b.messages, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_Notify(t *testing.T) {
	broker := &fakeBroker{}
	n := NewNotifier(broker, "uploader", testLogger())

	require.NoError(t, n.Notify(context.Background(), "job-1"))
	require.Len(t, broker.published, 1)
	assert.JSONEq(t, `{"job_id":"job-1"}`, string(broker.published[0]))
	assert.Equal(t, "application/json", broker.contentType)

	broker.publishErr = errors.New("channel closed")
	assert.ErrorContains(t, n.Notify(context.Background(), "job-2"), "channel closed")
}

func TestNotifier_Deliveries(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{messages: make(chan amqp.Delivery, 4)}
	n := NewNotifier(broker, "uploader", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := n.Deliveries(ctx)
	require.NoError(t, err)

	broker.messages <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`not json`)}
	broker.messages <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`{"job_id":""}`)}
	broker.messages <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte(`{"job_id":"a"}`)}
	broker.messages <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: []byte(`{"job_id":"b"}`)}

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case d := <-deliveries:
			got = append(got, d.JobID)
			if d.JobID == "a" {
				require.NoError(t, d.Ack())
			} else {
				require.NoError(t, d.Nack(true))
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []ackRecord{
		{tag: 1},
		{tag: 2},
		{tag: 3, ack: true},
		{tag: 4, requeue: true},
	}, ack.snapshot())
}

func TestNotifier_DeliveriesStopsWhenQueueCloses(t *testing.T) {
	broker := &fakeBroker{messages: make(chan amqp.Delivery)}
	n := NewNotifier(broker, "uploader", testLogger())

	deliveries, err := n.Deliveries(context.Background())
	require.NoError(t, err)

	close(broker.messages)

	select {
	case _, open := <-deliveries:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("delivery channel was not closed")
	}
}

func TestNotifier_DeliveriesConsumeError(t *testing.T) {
	n := NewNotifier(&fakeBroker{}, "uploader", testLogger())

	_, err := n.Deliveries(context.Background())
	assert.ErrorContains(t, err, "not connected")
}
