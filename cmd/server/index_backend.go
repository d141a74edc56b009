package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelterra.ai/internal/persistence/indexdb"
	"voxelterra.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.ChunkSink
	RecordWorld(rec world.WorldRecord) error
	Close() error
	// WriteMetrics appends backend queue gauges in Prometheus text format.
	WriteMetrics(w io.Writer, worldID string)
}

func openRuntimeIndex(worldDir, worldID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			return nil, err
		}
		return sqliteBackend{idx}, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("VT_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("VT_INDEX_BACKEND=d1 but VT_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("VT_INDEX_D1_TOKEN")),
			WorldID:       worldID,
			BatchSize:     envInt("VT_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("VT_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return d1Backend{idx}, nil
	default:
		return nil, fmt.Errorf("unsupported VT_INDEX_BACKEND: %s", backend)
	}
}

type sqliteBackend struct{ *indexdb.SQLiteIndex }

func (b sqliteBackend) WriteMetrics(w io.Writer, worldID string) {
	s := b.Stats()
	fmt.Fprintf(w, "# HELP voxelterra_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_queue_depth gauge\n")
	fmt.Fprintf(w, "voxelterra_index_queue_depth{world=%q,backend=%q} %d\n", worldID, "sqlite", s.QueueDepth)
	fmt.Fprintf(w, "# HELP voxelterra_index_dropped_total Index records dropped on a full queue.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_dropped_total counter\n")
	fmt.Fprintf(w, "voxelterra_index_dropped_total{world=%q,backend=%q} %d\n", worldID, "sqlite", s.DropTotal)
	fmt.Fprintf(w, "# HELP voxelterra_index_write_fail_total Failed index transactions.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_write_fail_total counter\n")
	fmt.Fprintf(w, "voxelterra_index_write_fail_total{world=%q,backend=%q} %d\n", worldID, "sqlite", s.WriteFailTotal)
}

type d1Backend struct{ *indexdb.D1Index }

func (b d1Backend) WriteMetrics(w io.Writer, worldID string) {
	s := b.Stats()
	fmt.Fprintf(w, "# HELP voxelterra_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_queue_depth gauge\n")
	fmt.Fprintf(w, "voxelterra_index_queue_depth{world=%q,backend=%q} %d\n", worldID, "d1", s.QueueDepth)
	fmt.Fprintf(w, "# HELP voxelterra_index_dropped_total Index records dropped on a full queue.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_dropped_total counter\n")
	fmt.Fprintf(w, "voxelterra_index_dropped_total{world=%q,backend=%q} %d\n", worldID, "d1", s.QueueDroppedTotal+s.RetainDropTotal)
	fmt.Fprintf(w, "# HELP voxelterra_index_d1_sent_total Events accepted by the ingest endpoint.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_d1_sent_total counter\n")
	fmt.Fprintf(w, "voxelterra_index_d1_sent_total{world=%q} %d\n", worldID, s.SentTotal)
	fmt.Fprintf(w, "# HELP voxelterra_index_d1_flush_fail_total Failed ingest batches.\n")
	fmt.Fprintf(w, "# TYPE voxelterra_index_d1_flush_fail_total counter\n")
	fmt.Fprintf(w, "voxelterra_index_d1_flush_fail_total{world=%q} %d\n", worldID, s.FlushFailTotal)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
