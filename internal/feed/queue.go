// Package feed carries exchange events from command handlers to feed
// subscribers. Producers push serialized events onto a Queue; a single Hub
// drains it and fans each payload out to every subscriber.
package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/models"
)

// Queue is an unbounded FIFO of serialized events. Any number of goroutines
// may push; one consumer drains it with Next.
type Queue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
	log    logrus.FieldLogger
}

func NewQueue(log logrus.FieldLogger) *Queue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Queue{notify: make(chan struct{}, 1), log: log}
}

// Publish serializes event and enqueues it.
func (q *Queue) Publish(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		q.log.WithError(err).WithField("type", event.Type).Error("failed to marshal event")
		return
	}
	q.Push(payload)
}

// Push enqueues a pre-serialized payload.
func (q *Queue) Push(payload []byte) {
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a payload is available or ctx is done.
func (q *Queue) Next(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of queued payloads.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
