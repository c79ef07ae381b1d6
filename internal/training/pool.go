package training

import (
	"context"
	"sync"
)

// pool runs queued jobs on a fixed set of worker goroutines.
type pool struct {
	o     *Orchestrator
	queue chan string
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	draining bool
}

func newPool(o *Orchestrator, workers, depth int) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{o: o, queue: make(chan string, depth), ctx: ctx, cancel: cancel}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for id := range p.queue {
		queueDepth.Set(float64(len(p.queue)))
		p.mu.RLock()
		draining := p.draining
		p.mu.RUnlock()
		if draining {
			if p.o.CancelJob(id) {
				p.o.log.Info().Str("job_id", id).Msg("cancelled queued job during shutdown")
			}
			continue
		}
		p.o.Run(p.ctx, id)
	}
}

func (p *pool) submit(id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return &CapacityError{Limit: cap(p.queue), Reason: "training workers are shutting down"}
	}
	select {
	case p.queue <- id:
		queueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return &CapacityError{Limit: cap(p.queue), Reason: "training queue is full"}
	}
}

func (p *pool) shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.draining = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
