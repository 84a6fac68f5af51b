package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Subscriber receives raw event payloads. A Send error unsubscribes it.
type Subscriber interface {
	Send(payload []byte) error
}

// Hub fans payloads out to all current subscribers. Delivery is best-effort
// and at most once: there is no replay for late or failed subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]Subscriber
	seq  atomic.Int64
	log  logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{subs: make(map[int64]Subscriber), log: log}
}

// Subscribe registers s and returns its id.
func (h *Hub) Subscribe(s Subscriber) int64 {
	id := h.seq.Add(1)
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return id
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Len reports the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast delivers payload to every subscriber and drops those that fail.
func (h *Hub) Broadcast(payload []byte) {
	var failed []int64

	h.mu.RLock()
	for id, s := range h.subs {
		if err := s.Send(payload); err != nil {
			h.log.WithError(err).WithField("subscriber", id).Warn("dropping feed subscriber")
			failed = append(failed, id)
		}
	}
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, id := range failed {
		delete(h.subs, id)
	}
	h.mu.Unlock()
}

// Run drains q into Broadcast until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, q *Queue) error {
	for {
		payload, err := q.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		h.log.WithFields(logrus.Fields{"subscribers": h.Len(), "bytes": len(payload)}).Debug("feed item")
		h.Broadcast(payload)
	}
}
