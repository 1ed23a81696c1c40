package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/open-builders/giveaway-engine/internal/common/logger"
)

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("async: pool closed")

// Pool runs submitted tasks on a bounded conc pool. Submit never blocks the
// caller: a task waits for a free worker on its own goroutine.
type Pool struct {
	name    string
	workers *pool.Pool
	pending sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  zerolog.Logger
}

func NewPool(name string, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		name:    name,
		workers: pool.New().WithMaxGoroutines(workers),
		logger:  logger.Component("pool").With().Str("pool", name).Logger(),
	}
}

func (p *Pool) Name() string {
	return p.name
}

// Submit schedules task for execution. A panicking task is logged and
// does not take the pool down.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		p.workers.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().Interface("panic", r).Msg("Task panicked")
				}
			}()
			task()
		})
	}()
	return nil
}

// Close rejects new tasks and waits for the queued ones to finish or for ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// every accepted task reaches the conc pool before it is waited on
		p.pending.Wait()
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close pool %s: %w", p.name, ctx.Err())
	}
}

// Pools groups the executors the engine runs on.
type Pools struct {
	Storage   *Pool
	Platform  *Pool
	Scheduler *Pool
}

func NewPools(storage, platform, scheduler int) *Pools {
	return &Pools{
		Storage:   NewPool("storage", storage),
		Platform:  NewPool("platform", platform),
		Scheduler: NewPool("scheduler", scheduler),
	}
}

// Close shuts the pools down in dependency order: work scheduled by timers
// first, then platform calls, then storage writes.
func (p *Pools) Close(ctx context.Context) error {
	return errors.Join(
		p.Scheduler.Close(ctx),
		p.Platform.Close(ctx),
		p.Storage.Close(ctx),
	)
}
