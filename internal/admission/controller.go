package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/obslog"
	"github.com/vashgg/refbot/internal/store"
)

// StartFunc runs a match's reconciliation loop and blocks until it stops.
// keepAlive should be invoked from the loop's tick to hold the lease.
type StartFunc func(ctx context.Context, matchID int64, keepAlive func(ctx context.Context)) error

// Controller enforces the admission cap: at most Cap matches run at once,
// and only the queue entry at position 1 can be promoted. A background
// poller re-checks for promotable entries and also retries matches whose
// startup failed.
type Controller struct {
	st     store.Store
	leases *Leases
	start  StartFunc
	log    *zap.Logger

	cap      int
	interval time.Duration

	rootCtx context.Context
	sched   gocron.Scheduler

	mu      sync.Mutex
	running map[int64]bool
}

func NewController(st store.Store, leases *Leases, cap int, interval time.Duration, start StartFunc) *Controller {
	if cap <= 0 {
		cap = 4
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Controller{
		st:       st,
		leases:   leases,
		start:    start,
		log:      obslog.L().Named("admission"),
		cap:      cap,
		interval: interval,
		running:  make(map[int64]bool),
	}
}

// Start resumes loops for matches already ongoing, then begins polling the
// queue on a fixed schedule.
func (c *Controller) Start(ctx context.Context) error {
	c.rootCtx = ctx

	if err := c.Resume(ctx); err != nil {
		c.log.Warn("resume pass failed", zap.Error(err))
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	c.sched = sched
	if _, err := sched.NewJob(
		gocron.DurationJob(c.interval),
		// Resume before polling: a match whose startup failed is already
		// ongoing and holds a cap slot, so only a resume pass can relaunch
		// it. The running set and the lease keep live loops untouched.
		gocron.NewTask(func() {
			if err := c.Resume(c.rootCtx); err != nil {
				c.log.Warn("resume pass failed", zap.Error(err))
			}
			c.Poll(c.rootCtx)
		}),
	); err != nil {
		return fmt.Errorf("queue poll job: %w", err)
	}
	sched.Start()

	c.Poll(ctx)
	return nil
}

func (c *Controller) Stop() error {
	if c.sched == nil {
		return nil
	}
	return c.sched.Shutdown()
}

// Resume restarts a loop for every match the store marks ongoing but no
// loop in this process owns: after a process restart, or after a startup
// failure left the match ongoing without a runner.
func (c *Controller) Resume(ctx context.Context) error {
	ids, err := c.st.OngoingMatchIDs(ctx)
	if err != nil {
		return fmt.Errorf("list ongoing: %w", err)
	}
	for _, id := range ids {
		c.launch(ctx, id)
	}
	return nil
}

// StartMatch admits one specific match, bypassing the queue position check
// but not the lease. Used by the create/resume control endpoint.
func (c *Controller) StartMatch(ctx context.Context, matchID int64) error {
	snap, err := c.st.Snapshot(ctx, matchID)
	if err != nil {
		return err
	}
	if !snap.Ongoing {
		if err := c.st.SetMatchOngoing(ctx, matchID); err != nil {
			return err
		}
	}
	// Drop a still-pending queue ticket so the poller does not double-start.
	if _, err := c.st.ConsumeQueuePosition(ctx, matchID); err != nil {
		c.log.Warn("queue consume failed", zap.Int64("match_id", matchID), zap.Error(err))
	}
	c.launch(ctx, matchID)
	return nil
}

// Poll promotes queued matches while the cap allows. Each promotion consumes
// the head ticket and shifts the rest up, so the queue stays gapless.
func (c *Controller) Poll(ctx context.Context) {
	for {
		n, err := c.st.CountOngoing(ctx)
		if err != nil {
			c.log.Warn("count ongoing failed", zap.Error(err))
			return
		}
		if n >= c.cap {
			return
		}

		matchID, err := c.st.HeadOfQueue(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		if err != nil {
			c.log.Warn("read queue head failed", zap.Error(err))
			return
		}

		ok, err := c.st.ConsumeQueuePosition(ctx, matchID)
		if err != nil {
			c.log.Warn("consume queue position failed", zap.Int64("match_id", matchID), zap.Error(err))
			return
		}
		if !ok {
			return // someone else took the head between reads
		}
		if err := c.st.CompactQueue(ctx); err != nil {
			c.log.Warn("queue compaction failed", zap.Error(err))
		}
		if err := c.st.SetMatchOngoing(ctx, matchID); err != nil {
			c.log.Warn("promote failed", zap.Int64("match_id", matchID), zap.Error(err))
			return
		}

		c.log.Info("match promoted from queue", zap.Int64("match_id", matchID))
		c.launch(ctx, matchID)
	}
}

// launch starts one loop goroutine, guarded by the in-process running set
// and the cross-process lease.
func (c *Controller) launch(ctx context.Context, matchID int64) {
	c.mu.Lock()
	if c.running[matchID] {
		c.mu.Unlock()
		return
	}
	c.running[matchID] = true
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.running, matchID)
		c.mu.Unlock()
	}

	ok, err := c.leases.Acquire(ctx, matchID)
	if err != nil {
		c.log.Warn("lease acquire failed", zap.Int64("match_id", matchID), zap.Error(err))
		release()
		return
	}
	if !ok {
		c.log.Info("match leased elsewhere", zap.Int64("match_id", matchID))
		release()
		return
	}

	go func() {
		defer func() {
			release()
			if err := c.leases.Release(context.Background(), matchID); err != nil {
				c.log.Warn("lease release failed", zap.Int64("match_id", matchID), zap.Error(err))
			}
			// A freed slot may unblock the queue right away.
			if c.rootCtx != nil && c.rootCtx.Err() == nil {
				c.Poll(c.rootCtx)
			}
		}()

		keep := func(kctx context.Context) {
			if err := c.leases.Refresh(kctx, matchID); err != nil {
				c.log.Warn("lease refresh failed", zap.Int64("match_id", matchID), zap.Error(err))
			}
		}
		if err := c.start(ctx, matchID, keep); err != nil {
			// Startup or loop failure for one match never takes down the
			// others; the next poll may retry it.
			c.log.Error("match loop ended with error", zap.Int64("match_id", matchID), zap.Error(err))
		}
	}()
}

// RunningCount reports how many loops this process currently owns.
func (c *Controller) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}
