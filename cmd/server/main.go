package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "voxelterra.ai/internal/persistence/log"
	"voxelterra.ai/internal/persistence/snapshot"
	"voxelterra.ai/internal/protocol"
	"voxelterra.ai/internal/sim/tuning"
	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/stream"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
	"voxelterra.ai/internal/transport/observer"
	"voxelterra.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing of world builds and chunk serves")
		dumpGrid   = flag.Bool("dump_grid", true, "write (or check) the macro grid dump under <data>/worlds/<id>/grids")
	)
	seed := world.SeedFlag(1337)
	flag.Var(&seed, "seed", "world seed (uint32)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	cfg, err := world.ConfigFromTuning(*worldID, uint32(seed), tune)
	if err != nil {
		logger.Fatalf("world config: %v", err)
	}
	w, err := world.New(cfg)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	gw, gh := w.Sim().Size()
	logger.Printf("world %s seed=%d size=%dx%d built in %s", w.ID(), w.Seed(), gw, gh, w.BuildDuration())

	rec := w.Record()
	if *dumpGrid {
		if err := syncGridDump(worldDir, w, rec.GridDigest, logger); err != nil {
			logger.Printf("grid dump: %v", err)
		}
	}

	// Optional: read-model index backend (does not affect generation).
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.RecordWorld(rec); err != nil {
			logger.Printf("index world: %v", err)
		}
	}

	buildLog := persistlog.NewWorldLogger(worldDir)
	if err := buildLog.RecordWorld(rec); err != nil {
		logger.Printf("build log: %v", err)
	}
	_ = buildLog.Close()

	chunkLog := persistlog.NewChunkLogger(worldDir)
	defer chunkLog.Close()
	sinks := world.Sinks{chunkLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	pool := stream.NewPool(w, tune.Stream.Workers, tune.Stream.Queue)
	defer pool.Close()

	params := worldParams(w, rec.GridDigest)
	wsSrv := ws.NewServer(pool, ws.Options{
		WorldID:             w.ID(),
		Params:              params,
		MaxChunksPerRequest: tune.Stream.MaxChunksPerRequest,
		MaxQueuePerClient:   tune.Stream.MaxQueuePerClient,
		RequestsPerSecond:   tune.Stream.RequestsPerSecond,
		MaxRequestsInFlight: tune.Stream.MaxRequestsInFlight,
	}, sinks, logger)
	obs := observer.NewServer(w, pool, params, sinks, logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, metricsSource{
			WorldID:  w.ID(),
			BuildDur: w.BuildDuration(),
			Pool:     pool.Stats(),
			WS:       wsSrv.Stats(),
			ChunkLog: chunkLog,
			Index:    idx,
		})
	})
	mux.HandleFunc("/v1/world", obs.BootstrapHandler())
	mux.HandleFunc("/v1/chunk", obs.ChunkHandler())
	mux.HandleFunc("/v1/column", obs.ColumnHandler())
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	if envBool("VT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				World world.WorldRecord `json:"world"`
				Pool  stream.Stats      `json:"pool"`
				WS    ws.Stats          `json:"ws"`
			}{
				World: rec,
				Pool:  pool.Stats(),
				WS:    wsSrv.Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	}
	if envBool("VT_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (world=%s)", *addr, *worldID)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("listen: %v", err)
	}
	if n, err := chunkLog.Errors(); n > 0 {
		logger.Printf("chunk log: %d write errors (last: %v)", n, err)
	}
	logger.Printf("shutdown complete")
}

func worldParams(w *world.World, gridDigest string) protocol.WorldParams {
	gw, gh := w.Sim().Size()
	cfg := w.Config()
	return protocol.WorldParams{
		Seed:         w.Seed(),
		ChunkSize:    [3]int{chunk.SizeX, chunk.SizeY, chunk.MaxLayers},
		WorldSize:    [2]int{gw, gh},
		SeaLevel:     cfg.Macro.SeaLevel,
		TuningDigest: cfg.TuningDigest,
		GridDigest:   gridDigest,
	}
}

func gridDumpPath(worldDir string, seed uint32) string {
	return filepath.Join(worldDir, "grids", fmt.Sprintf("%d.grid.zst", seed))
}

// syncGridDump writes the grid dump for a fresh seed. When one already exists
// its digest must match the grid just built.
func syncGridDump(worldDir string, w *world.World, gridDigest string, logger *log.Logger) error {
	path := gridDumpPath(worldDir, w.Seed())
	hdr, err := snapshot.ReadGridHeader(path)
	switch {
	case err == nil:
		if hdr.GridDigest != gridDigest || hdr.TuningDigest != w.Config().TuningDigest {
			return fmt.Errorf("%s: digest mismatch (dump grid=%s tuning=%s, built grid=%s tuning=%s)",
				path, short(hdr.GridDigest), short(hdr.TuningDigest), short(gridDigest), short(w.Config().TuningDigest))
		}
		logger.Printf("grid dump %s matches", path)
		return nil
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	dump := snapshot.FromGrid(w.ID(), w.Sim(), w.Config().TuningDigest)
	if err := snapshot.WriteGridDump(path, dump); err != nil {
		return err
	}
	logger.Printf("grid dump written: %s", path)
	return nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
