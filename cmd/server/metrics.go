package main

import (
	"fmt"
	"io"
	"time"

	"voxelterra.ai/internal/sim/world/stream"
	"voxelterra.ai/internal/transport/ws"
)

type chunkLogErrors interface {
	Errors() (uint64, error)
}

type metricsSource struct {
	WorldID  string
	BuildDur time.Duration
	Pool     stream.Stats
	WS       ws.Stats
	ChunkLog chunkLogErrors
	Index    runtimeIndex
}

// writeMetrics renders the Prometheus text exposition format by hand.
func writeMetrics(w io.Writer, m metricsSource) {
	id := m.WorldID

	fmt.Fprintf(w, "# HELP voxelterra_world_build_seconds Macro grid build duration.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_world_build_seconds gauge\n")
	fmt.Fprintf(w, "voxelterra_world_build_seconds{world=%q} %.3f\n", id, m.BuildDur.Seconds())

	fmt.Fprintf(w, "# HELP voxelterra_gen_workers Chunk generation workers.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_gen_workers gauge\n")
	fmt.Fprintf(w, "voxelterra_gen_workers{world=%q} %d\n", id, m.Pool.Workers)

	fmt.Fprintf(w, "# HELP voxelterra_gen_queue_depth Pending chunk generation jobs.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_gen_queue_depth gauge\n")
	fmt.Fprintf(w, "voxelterra_gen_queue_depth{world=%q} %d\n", id, m.Pool.QueueDepth)
	fmt.Fprintf(w, "voxelterra_gen_queue_capacity{world=%q} %d\n", id, m.Pool.QueueCapacity)

	fmt.Fprintf(w, "# HELP voxelterra_gen_jobs_total Chunk generation jobs by outcome.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_gen_jobs_total counter\n")
	fmt.Fprintf(w, "voxelterra_gen_jobs_total{world=%q,outcome=%q} %d\n", id, "submitted", m.Pool.Submitted)
	fmt.Fprintf(w, "voxelterra_gen_jobs_total{world=%q,outcome=%q} %d\n", id, "rejected", m.Pool.Rejected)
	fmt.Fprintf(w, "voxelterra_gen_jobs_total{world=%q,outcome=%q} %d\n", id, "generated", m.Pool.Generated)
	fmt.Fprintf(w, "voxelterra_gen_jobs_total{world=%q,outcome=%q} %d\n", id, "cancelled", m.Pool.Cancelled)

	fmt.Fprintf(w, "# HELP voxelterra_gen_seconds_total Time spent generating chunks.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_gen_seconds_total counter\n")
	fmt.Fprintf(w, "voxelterra_gen_seconds_total{world=%q} %.6f\n", id, float64(m.Pool.GenNanosTotal)/1e9)

	fmt.Fprintf(w, "# HELP voxelterra_ws_sessions Connected websocket sessions.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_ws_sessions gauge\n")
	fmt.Fprintf(w, "voxelterra_ws_sessions{world=%q} %d\n", id, m.WS.ActiveSessions)
	fmt.Fprintf(w, "voxelterra_ws_sessions_total{world=%q} %d\n", id, m.WS.SessionsTotal)

	fmt.Fprintf(w, "# HELP voxelterra_ws_chunks_total Chunks streamed over websocket by result.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_ws_chunks_total counter\n")
	fmt.Fprintf(w, "voxelterra_ws_chunks_total{world=%q,ok=%q} %d\n", id, "true", m.WS.ChunksOK)
	fmt.Fprintf(w, "voxelterra_ws_chunks_total{world=%q,ok=%q} %d\n", id, "false", m.WS.ChunksFailed)
	fmt.Fprintf(w, "voxelterra_ws_rate_limited_total{world=%q} %d\n", id, m.WS.RateLimited)
	fmt.Fprintf(w, "voxelterra_ws_requests_rejected_total{world=%q} %d\n", id, m.WS.Rejected)

	if m.ChunkLog != nil {
		n, _ := m.ChunkLog.Errors()
		fmt.Fprintf(w, "# HELP voxelterra_chunk_log_errors_total Failed chunk log writes.\n")
		fmt.Fprintf(w, "# TYPE voxelterra_chunk_log_errors_total counter\n")
		fmt.Fprintf(w, "voxelterra_chunk_log_errors_total{world=%q} %d\n", id, n)
	}
	if m.Index != nil {
		m.Index.WriteMetrics(w, id)
	}
}
