// Package lifecycle owns the game clock: the started/paused flag, the
// optional time limit, and the one-shot final settlement.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	ReasonTimeLimit = "Time limit reached. Shutting down."
	ReasonShutdown  = "Shutdown command. Shutting down."
)

// SettleFunc performs the final settlement. It is called at most once.
type SettleFunc func(reason string)

// Controller is the single place where the time limit is checked and
// settlement is triggered, however many sessions are connected.
type Controller struct {
	started atomic.Bool
	closed  atomic.Bool

	timeStart time.Time
	timeLimit time.Duration
	now       func() time.Time

	once     sync.Once
	settle   SettleFunc
	requests chan string
	done     chan struct{}

	log logrus.FieldLogger
}

// New returns a controller whose clock starts now. A zero limit disables
// the time limit.
func New(started bool, limit time.Duration, settle SettleFunc, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Controller{
		timeStart: time.Now(),
		timeLimit: limit,
		now:       time.Now,
		settle:    settle,
		requests:  make(chan string, 1),
		done:      make(chan struct{}),
		log:       log,
	}
	c.started.Store(started)
	return c
}

// Started reports whether trading commands are accepted.
func (c *Controller) Started() bool { return c.started.Load() }

// SetStarted flips the pause flag. It does not touch the time limit.
func (c *Controller) SetStarted(v bool) { c.started.Store(v) }

// Closed reports whether settlement has begun.
func (c *Controller) Closed() bool { return c.closed.Load() }

// Done is closed once settlement has finished.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Expired reports whether the time limit has elapsed.
func (c *Controller) Expired() bool {
	return c.timeLimit > 0 && c.now().Sub(c.timeStart) >= c.timeLimit
}

// Remaining is the time left before the limit, or zero without one.
func (c *Controller) Remaining() time.Duration {
	if c.timeLimit <= 0 {
		return 0
	}
	left := c.timeLimit - c.now().Sub(c.timeStart)
	if left < 0 {
		return 0
	}
	return left
}

// RequestShutdown asks the controller loop to settle. It never blocks and
// extra requests are dropped.
func (c *Controller) RequestShutdown(reason string) {
	select {
	case c.requests <- reason:
	default:
	}
}

// Settle runs the settlement exactly once and reports whether this call ran
// it. The closed flag is raised before settle is invoked.
func (c *Controller) Settle(reason string) bool {
	ran := false
	c.once.Do(func() {
		ran = true
		c.closed.Store(true)
		c.log.WithField("reason", reason).Info("settling exchange")
		if c.settle != nil {
			c.settle(reason)
		}
		close(c.done)
	})
	return ran
}

// Run checks the time limit every tick and serves shutdown requests until
// settlement has happened or ctx is cancelled.
func (c *Controller) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case reason := <-c.requests:
			c.Settle(reason)
		case <-ticker.C:
			if c.Expired() {
				c.log.WithField("limit", c.timeLimit).Info("time limit reached")
				c.Settle(ReasonTimeLimit)
			}
		}
	}
}
