package db

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Journal is a feed subscriber that writes events to the database from its
// own goroutine so a slow database never holds up the feed.
type Journal struct {
	db      *DB
	pending chan []byte
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewJournal buffers up to size events.
func NewJournal(db *DB, size int, log logrus.FieldLogger) *Journal {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Journal{db: db, pending: make(chan []byte, size), timeout: 5 * time.Second, log: log}
}

// Send queues payload. When the buffer is full the event is dropped and
// logged; the journal never asks to be unsubscribed.
func (j *Journal) Send(payload []byte) error {
	select {
	case j.pending <- payload:
	default:
		j.log.WithField("bytes", len(payload)).Warn("journal buffer full, dropping event")
	}
	return nil
}

// Run writes queued events until ctx is cancelled, then flushes what is
// already buffered.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case payload := <-j.pending:
			j.write(payload)
		case <-ctx.Done():
			for {
				select {
				case payload := <-j.pending:
					j.write(payload)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.db.RecordEvent(ctx, payload); err != nil {
		j.log.WithError(err).Error("failed to journal event")
	}
}
