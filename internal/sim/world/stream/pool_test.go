package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	cfg := world.DefaultConfig("test", 42)
	cfg.Macro.WorldW, cfg.Macro.WorldH = 6, 6
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

// blockingGen parks every call until release is closed.
type blockingGen struct {
	release chan struct{}
	calls   sync.Map
}

func (g *blockingGen) GenerateChunk(k chunk.Key) *chunk.Chunk {
	g.calls.Store(k, true)
	<-g.release
	return chunk.Void(k)
}

func TestPool_MatchesSequentialGeneration(t *testing.T) {
	w := testWorld(t)
	p := NewPool(w, 4, 64)
	defer p.Close()

	var keys []chunk.Key
	for y := int32(-1); y < 5; y++ {
		for x := int32(-1); x < 5; x++ {
			keys = append(keys, chunk.Key{X: x, Y: y})
		}
	}

	chans := make([]<-chan Result, len(keys))
	for i, k := range keys {
		ch, err := p.Submit(context.Background(), k)
		if err != nil {
			t.Fatalf("Submit(%s): %v", k, err)
		}
		chans[i] = ch
	}
	for i, k := range keys {
		r := <-chans[i]
		if r.Err != nil || r.Key != k {
			t.Fatalf("result for %s: key=%s err=%v", k, r.Key, r.Err)
		}
		if r.Chunk.Digest() != w.GenerateChunk(k).Digest() {
			t.Fatalf("pooled chunk %s differs from direct generation", k)
		}
	}
	if st := p.Stats(); st.Generated != uint64(len(keys)) || st.Submitted != uint64(len(keys)) {
		t.Fatalf("stats mismatch: %+v", st)
	}
}

func TestPool_BusyWhenQueueFull(t *testing.T) {
	g := &blockingGen{release: make(chan struct{})}
	p := NewPool(g, 1, 1)

	// One job occupies the worker, one fills the queue.
	first, err := p.Submit(context.Background(), chunk.Key{X: 1})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := g.calls.Load(chunk.Key{X: 1}); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never picked up the first job")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := p.Submit(context.Background(), chunk.Key{X: 2}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if _, err := p.Submit(context.Background(), chunk.Key{X: 3}); !errors.Is(err, ErrBusy) {
		t.Fatalf("third Submit: got %v want ErrBusy", err)
	}
	if st := p.Stats(); st.Rejected != 1 {
		t.Fatalf("Rejected=%d want 1", st.Rejected)
	}

	close(g.release)
	if r := <-first; r.Err != nil {
		t.Fatalf("first result: %v", r.Err)
	}
	p.Close()
	if _, err := p.Submit(context.Background(), chunk.Key{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Close: got %v want ErrClosed", err)
	}
	p.Close()
}

func TestPool_CancelledRequestsAreNotGenerated(t *testing.T) {
	g := &blockingGen{release: make(chan struct{})}
	p := NewPool(g, 1, 8)
	defer p.Close()

	busy, err := p.Submit(context.Background(), chunk.Key{X: 100})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	queued, err := p.Submit(ctx, chunk.Key{X: 7})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()
	close(g.release)

	<-busy
	r := <-queued
	if !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("cancelled job result: %v", r.Err)
	}
	if _, ok := g.calls.Load(chunk.Key{X: 7}); ok {
		t.Fatalf("cancelled key was generated")
	}
	if st := p.Stats(); st.Cancelled != 1 {
		t.Fatalf("Cancelled=%d want 1", st.Cancelled)
	}

	if _, err := p.Submit(ctx, chunk.Key{X: 8}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Submit with done ctx: %v", err)
	}
}

func TestPool_GenerateWaits(t *testing.T) {
	w := testWorld(t)
	p := NewPool(w, 2, 4)
	defer p.Close()

	c, err := p.Generate(context.Background(), chunk.Key{X: 2, Y: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Digest() != w.GenerateChunk(chunk.Key{X: 2, Y: 3}).Digest() {
		t.Fatalf("Generate result differs")
	}
}
