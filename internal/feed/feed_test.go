package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/cxgame/internal/models"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeSub struct {
	mu   sync.Mutex
	got  [][]byte
	fail bool
}

func (f *fakeSub) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.got = append(f.got, payload)
	return nil
}

func (f *fakeSub) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got...)
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue(quietLogger())
	for i := 0; i < 5; i++ {
		q.Push([]byte(fmt.Sprint(i)))
	}
	assert.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		item, err := q.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(item))
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueNextHonoursContext(t *testing.T) {
	q := NewQueue(quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueManyProducers(t *testing.T) {
	q := NewQueue(quietLogger())
	const producers, each = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Publish(models.Event{Type: models.EventInfo, Message: "hi"})
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < producers*each; i++ {
		_, err := q.Next(ctx)
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, 0, q.Len())
}

func TestQueuePublishSerializes(t *testing.T) {
	q := NewQueue(quietLogger())
	q.Publish(models.Event{Type: models.EventBcast, Message: "hello", User: "alice"})

	item, err := q.Next(context.Background())
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(item, &got))
	assert.Equal(t, "bcast", got["type"])
	assert.Equal(t, "hello", got["message"])
	assert.Equal(t, "alice", got["user"])
	_, hasData := got["data"]
	assert.False(t, hasData)
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	h := NewHub(quietLogger())
	good, bad := &fakeSub{}, &fakeSub{fail: true}
	h.Subscribe(good)
	h.Subscribe(bad)
	require.Equal(t, 2, h.Len())

	h.Broadcast([]byte("one"))
	assert.Equal(t, 1, h.Len())

	bad.fail = false
	h.Broadcast([]byte("two"))
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, good.received())
	assert.Empty(t, bad.received())
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(quietLogger())
	id := h.Subscribe(&fakeSub{})
	h.Unsubscribe(id)
	h.Unsubscribe(id)
	assert.Equal(t, 0, h.Len())
}

func TestHubRunDrainsQueue(t *testing.T) {
	h := NewHub(quietLogger())
	q := NewQueue(quietLogger())
	sub := &fakeSub{}
	h.Subscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, q) }()

	q.Push([]byte("a"))
	q.Push([]byte("b"))

	assert.Eventually(t, func() bool { return len(sub.received()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, sub.received())
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`{"type":"match","message":{}}`, "feed.match"},
		{`{"message":"x"}`, "feed.unknown"},
		{`not json`, "feed.unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, RoutingKey([]byte(tt.payload)))
		})
	}
}

type fakeChannel struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	published []amqp091.Publishing
	keys      []string
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return context.DeadlineExceeded
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	return nil
}

func TestAMQPSinkSurvivesPublishErrors(t *testing.T) {
	ch := &fakeChannel{failures: 1}
	sink := NewAMQPSink(ch, "cxgame.feed", quietLogger())
	h := NewHub(quietLogger())
	h.Subscribe(sink)

	h.Broadcast([]byte(`{"type":"buy","message":{}}`))
	assert.Equal(t, 1, h.Len(), "sink must stay subscribed after a failed publish")

	h.Broadcast([]byte(`{"type":"match","message":{}}`))
	assert.Equal(t, 1, h.Len())

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, 2, ch.attempts)
	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"feed.match"}, ch.keys)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.JSONEq(t, `{"type":"match","message":{}}`, string(ch.published[0].Body))
}
