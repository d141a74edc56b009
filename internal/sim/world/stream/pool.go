// Package stream runs chunk generation on a bounded worker pool so request
// handlers never generate on their own goroutine.
package stream

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

var (
	ErrBusy   = errors.New("stream: generation queue full")
	ErrClosed = errors.New("stream: pool closed")
)

// Generator is satisfied by *world.World.
type Generator interface {
	GenerateChunk(k chunk.Key) *chunk.Chunk
}

type Result struct {
	Key     chunk.Key
	Chunk   *chunk.Chunk
	Err     error
	Elapsed time.Duration
}

type job struct {
	ctx context.Context
	key chunk.Key
	out chan Result
}

type Stats struct {
	Workers       int
	QueueDepth    int
	QueueCapacity int
	Submitted     uint64
	Rejected      uint64
	Generated     uint64
	Cancelled     uint64
	GenNanosTotal uint64
}

type Pool struct {
	gen     Generator
	workers int

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup

	submitted atomic.Uint64
	rejected  atomic.Uint64
	generated atomic.Uint64
	cancelled atomic.Uint64
	genNanos  atomic.Uint64
}

// NewPool starts workers goroutines (GOMAXPROCS when <= 0) behind a queue of
// the given capacity.
func NewPool(gen Generator, workers, queue int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queue <= 0 {
		queue = workers * 4
	}
	p := &Pool{
		gen:     gen,
		workers: workers,
		jobs:    make(chan job, queue),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run()
		}()
	}
	return p
}

// Submit queues generation of k. The returned channel receives exactly one
// Result unless ctx ends first, in which case the request may be dropped
// without generating.
func (p *Pool) Submit(ctx context.Context, k chunk.Key) (<-chan Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	out := make(chan Result, 1)
	select {
	case p.jobs <- job{ctx: ctx, key: k, out: out}:
		p.submitted.Add(1)
		return out, nil
	default:
		p.rejected.Add(1)
		return nil, ErrBusy
	}
}

// Generate submits k and waits for the result.
func (p *Pool) Generate(ctx context.Context, k chunk.Key) (*chunk.Chunk, error) {
	ch, err := p.Submit(ctx, k)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Chunk, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) run() {
	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			p.cancelled.Add(1)
			j.out <- Result{Key: j.key, Err: err}
			continue
		}
		start := time.Now()
		c := p.gen.GenerateChunk(j.key)
		el := time.Since(start)
		p.generated.Add(1)
		p.genNanos.Add(uint64(el.Nanoseconds()))
		j.out <- Result{Key: j.key, Chunk: c, Elapsed: el}
	}
}

// Close stops accepting work, finishes queued jobs and waits for workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:       p.workers,
		QueueDepth:    len(p.jobs),
		QueueCapacity: cap(p.jobs),
		Submitted:     p.submitted.Load(),
		Rejected:      p.rejected.Load(),
		Generated:     p.generated.Load(),
		Cancelled:     p.cancelled.Load(),
		GenNanosTotal: p.genNanos.Load(),
	}
}
