package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxelterra.ai/internal/sim/world"
)

// D1Config points the index at an HTTP ingest endpoint that accepts
// batched JSON events (for example a worker in front of Cloudflare D1).
type D1Config struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained caps events kept in memory while the endpoint is failing.
	MaxRetained int
	Logger      *log.Logger
}

type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	sentTotal         atomic.Uint64
	flushFailTotal    atomic.Uint64
	queueDroppedTotal atomic.Uint64
	retainDropTotal   atomic.Uint64
}

type D1Stats struct {
	QueueDepth        int
	QueueCapacity     int
	SentTotal         uint64
	FlushFailTotal    uint64
	QueueDroppedTotal uint64
	RetainDropTotal   uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) RecordWorld(rec world.WorldRecord) error {
	if d == nil {
		return nil
	}
	d.enqueue(d1Event{Kind: "world", WorldID: d.cfg.WorldID, Payload: rec})
	return nil
}

func (d *D1Index) RecordChunkServed(rec world.ChunkServed) {
	if d == nil {
		return
	}
	d.enqueue(d1Event{Kind: "chunk_serve", WorldID: d.cfg.WorldID, Payload: rec})
}

func (d *D1Index) Stats() D1Stats {
	if d == nil {
		return D1Stats{}
	}
	return D1Stats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		SentTotal:         d.sentTotal.Load(),
		FlushFailTotal:    d.flushFailTotal.Load(),
		QueueDroppedTotal: d.queueDroppedTotal.Load(),
		RetainDropTotal:   d.retainDropTotal.Load(),
	}
}

func (d *D1Index) enqueue(ev d1Event) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.queueDroppedTotal.Add(1)
		d.printf("d1 index queue full; drop kind=%s world=%s", ev.Kind, ev.WorldID)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	// A failed batch stays queued and is retried on the next flush.
	flush := func() {
		if len(batch) == 0 {
			return
		}
		n := len(batch)
		if n > d.cfg.BatchSize {
			n = d.cfg.BatchSize
		}
		if err := d.sendBatch(batch[:n]); err != nil {
			d.flushFailTotal.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", n, err)
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDropTotal.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.sentTotal.Add(uint64(n))
		batch = append(batch[:0], batch[n:]...)
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				for len(batch) > 0 {
					before := len(batch)
					flush()
					if len(batch) == before {
						break
					}
				}
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-vt-index-token", d.cfg.Token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
