package world

import (
	"encoding/hex"
	"time"
)

// ChunkServed records one chunk result delivered to a client.
type ChunkServed struct {
	WorldID   string   `json:"world_id"`
	SessionID string   `json:"session_id,omitempty"`
	Key       [2]int32 `json:"key"`
	OK        bool     `json:"ok"`
	Code      string   `json:"code,omitempty"`
	BaseZ     int32    `json:"base_z"`
	Layers    int      `json:"layers"`
	Digest    string   `json:"digest,omitempty"`
	Bytes     int      `json:"bytes"`
	GenMicros int64    `json:"gen_us"`
	ServedAt  string   `json:"served_at"`
}

// ChunkSink receives served-chunk records. Implementations must not block.
type ChunkSink interface {
	RecordChunkServed(rec ChunkServed)
}

// Sinks fans a record out to every non-nil sink.
type Sinks []ChunkSink

func (s Sinks) RecordChunkServed(rec ChunkServed) {
	for _, sink := range s {
		if sink != nil {
			sink.RecordChunkServed(rec)
		}
	}
}

// WorldRecord describes one world build.
type WorldRecord struct {
	ID           string  `json:"id"`
	Seed         uint32  `json:"seed"`
	WorldW       int     `json:"world_w"`
	WorldH       int     `json:"world_h"`
	SeaLevel     float32 `json:"sea_level"`
	TuningDigest string  `json:"tuning_digest"`
	GridDigest   string  `json:"grid_digest"`
	BuildMillis  int64   `json:"build_ms"`
	CreatedAt    string  `json:"created_at"`
}

func (w *World) Record() WorldRecord {
	gw, gh := w.grid.Size()
	d := w.grid.Digest()
	return WorldRecord{
		ID:           w.cfg.ID,
		Seed:         w.cfg.Seed,
		WorldW:       gw,
		WorldH:       gh,
		SeaLevel:     w.cfg.Macro.SeaLevel,
		TuningDigest: w.cfg.TuningDigest,
		GridDigest:   hex.EncodeToString(d[:]),
		BuildMillis:  w.buildDur.Milliseconds(),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
}
