package taskmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/metrics"
)

// PollHandle identifies one subscriber of a Poller.
type PollHandle string

// PollFunc is one full refresh pass. The context carries the tick deadline;
// a pass that outlives it should return early.
type PollFunc func(ctx context.Context)

// Poller is a reference-counted interval driver. Any number of views can
// request refreshes concurrently; the underlying interval job runs once
// regardless of subscriber count.
//
//   - Start adds a subscriber; the 0-to-1 transition creates and starts a
//     gocron scheduler with a single repeating job.
//   - Stop removes a subscriber; the 1-to-0 transition shuts the scheduler
//     down. A tick already dispatched is not interrupted, only future ticks
//     are cancelled.
//
// Each tick is a full fetch-and-reconcile pass, not an incremental diff.
// The design trades O(n) backend calls per tick and interval-bounded staleness
// for not needing a persistent push connection to the daemon.
type Poller struct {
	name     string
	interval time.Duration
	tick     PollFunc
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu          sync.Mutex
	subscribers map[PollHandle]struct{}
	sched       gocron.Scheduler
}

// NewPoller creates an idle Poller. name appears in logs and metrics labels.
func NewPoller(name string, interval time.Duration, tick PollFunc, logger *zap.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		name:        name,
		interval:    interval,
		tick:        tick,
		logger:      logger.Named("poller").With(zap.String("poller", name)),
		metrics:     m,
		subscribers: make(map[PollHandle]struct{}),
	}
}

// Start registers a new subscriber and returns its handle. The first
// subscriber starts the interval job.
func (p *Poller) Start() (PollHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := PollHandle(uuid.NewString())
	p.subscribers[h] = struct{}{}

	if p.sched == nil {
		sched, err := gocron.NewScheduler()
		if err != nil {
			delete(p.subscribers, h)
			return "", fmt.Errorf("poller %s: create scheduler: %w", p.name, err)
		}

		_, err = sched.NewJob(
			gocron.DurationJob(p.interval),
			gocron.NewTask(p.runTick),
			// A pass slower than the interval must not stack a second pass
			// on top of it; skip and catch up on the next tick.
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			delete(p.subscribers, h)
			return "", fmt.Errorf("poller %s: schedule job: %w", p.name, err)
		}

		sched.Start()
		p.sched = sched
		p.logger.Debug("poller started", zap.Duration("interval", p.interval))
	}

	return h, nil
}

// Stop removes the subscriber identified by h. The last subscriber shuts the
// interval job down. Unknown handles are ignored, so double-Stop from a
// teardown path is harmless.
func (p *Poller) Stop(h PollHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subscribers[h]; !ok {
		return
	}
	delete(p.subscribers, h)

	if len(p.subscribers) == 0 && p.sched != nil {
		if err := p.sched.Shutdown(); err != nil {
			p.logger.Warn("poller shutdown error", zap.Error(err))
		}
		p.sched = nil
		p.logger.Debug("poller stopped")
	}
}

// Running reports whether the interval job is currently active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sched != nil
}

// Subscribers returns the current subscriber count.
func (p *Poller) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// forceShutdown stops the interval job and drops all subscribers, regardless
// of the reference count. Used on process teardown only.
func (p *Poller) forceShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sched != nil {
		if err := p.sched.Shutdown(); err != nil {
			p.logger.Warn("poller shutdown error", zap.Error(err))
		}
		p.sched = nil
	}
	p.subscribers = make(map[PollHandle]struct{})
}

// runTick executes one refresh pass with a deadline just under two intervals
// so a stalled daemon cannot pile up passes indefinitely.
func (p *Poller) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*p.interval)
	defer cancel()

	p.tick(ctx)
	p.metrics.IncPollTick(p.name)
}
