// Package worker runs background work on a bounded goroutine pool.
//
// Handlers never start naked goroutines for after-commit side effects such as
// notification fan-out; they submit to the Pool instead.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverloaded is returned when every worker is busy. Submission
	// never waits for a worker to free up.
	ErrPoolOverloaded = errors.New("worker pool is overloaded")
)

const shutdownTimeout = 30 * time.Second

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	log  *zap.Logger

	// serviceCtx outlives any single request and is cancelled on Shutdown
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// NewPool creates a pool of at most size workers bound to ctx.
func NewPool(ctx context.Context, size int, log *zap.Logger) (*Pool, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		log.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	antsPool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	return &Pool{
		pool:          antsPool,
		log:           log,
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// SubmitDetached runs task with the service context instead of a request
// context, so it survives the request but still stops on Shutdown.
func (p *Pool) SubmitDetached(task Task) error {
	return p.submit(func() {
		select {
		case <-p.serviceCtx.Done():
			p.log.Debug("Detached task skipped: service shutting down")
			return
		default:
		}
		task(p.serviceCtx)
	})
}

func (p *Pool) submit(fn func()) error {
	err := p.pool.Submit(fn)
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverloaded
	}
	return err
}

// Shutdown cancels detached work and waits for running tasks.
func (p *Pool) Shutdown() {
	p.serviceCancel()
	if err := p.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		p.log.Warn("Worker pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool occupancy. It feeds the worker pool gauges.
func (p *Pool) Metrics() map[string]int {
	return map[string]int{
		"running": p.pool.Running(),
		"free":    p.pool.Free(),
		"cap":     p.pool.Cap(),
	}
}
