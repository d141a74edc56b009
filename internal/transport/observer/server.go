// Package observer serves read-only HTTP views of a world: bootstrap
// parameters, single chunks and (loopback only) raw macro columns.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voxelterra.ai/internal/protocol"
	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/io/chunkcodec"
	"voxelterra.ai/internal/sim/world/stream"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

type Server struct {
	world  *world.World
	pool   *stream.Pool
	params protocol.WorldParams
	sink   world.ChunkSink
	log    *log.Logger

	// Timeout bounds a single /v1/chunk generation.
	Timeout time.Duration
}

func NewServer(w *world.World, pool *stream.Pool, params protocol.WorldParams, sink world.ChunkSink, logger *log.Logger) *Server {
	return &Server{
		world:   w,
		pool:    pool,
		params:  params,
		sink:    sink,
		log:     logger,
		Timeout: 10 * time.Second,
	}
}

type BootstrapResponse struct {
	ProtocolVersion string               `json:"protocol_version"`
	WorldID         string               `json:"world_id"`
	WorldParams     protocol.WorldParams `json:"world_params"`
	BuildMillis     int64                `json:"build_ms"`
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(rw, http.StatusOK, BootstrapResponse{
			ProtocolVersion: protocol.Version,
			WorldID:         s.world.ID(),
			WorldParams:     s.params,
			BuildMillis:     s.world.BuildDuration().Milliseconds(),
		})
	}
}

// ChunkHandler serves GET /v1/chunk?x=&y= as a CHUNK message.
func (s *Server) ChunkHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		x, errX := parseInt32(r.URL.Query().Get("x"))
		y, errY := parseInt32(r.URL.Query().Get("y"))
		if errX != nil || errY != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrProtoBadRequest, "x and y must be int32"))
			return
		}
		key := chunk.Key{X: x, Y: y}
		wire := [2]int32{x, y}

		ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
		defer cancel()

		start := time.Now()
		c, err := s.pool.Generate(ctx, key)
		if err != nil {
			code, status := protocol.ErrInternal, http.StatusInternalServerError
			switch {
			case errors.Is(err, stream.ErrBusy):
				code, status = protocol.ErrBusy, http.StatusServiceUnavailable
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				code, status = protocol.ErrCanceled, http.StatusGatewayTimeout
			}
			s.record(world.ChunkServed{Key: wire, Code: code})
			writeJSON(rw, status, protocol.ChunkFailure("", wire, code, err.Error()))
			return
		}
		payload, err := chunkcodec.Encode(c)
		if err != nil {
			s.record(world.ChunkServed{Key: wire, Code: protocol.ErrInternal})
			writeJSON(rw, http.StatusInternalServerError, protocol.ChunkFailure("", wire, protocol.ErrInternal, err.Error()))
			return
		}
		n := writeJSON(rw, http.StatusOK, protocol.ChunkSuccess("", payload))
		s.record(world.ChunkServed{
			Key:       wire,
			OK:        true,
			BaseZ:     payload.BaseZ,
			Layers:    payload.Layers,
			Digest:    payload.Digest,
			Bytes:     n,
			GenMicros: time.Since(start).Microseconds(),
		})
	}
}

type ColumnResponse struct {
	CX     int       `json:"cx"`
	CY     int       `json:"cy"`
	BaseZ  int32     `json:"base_z"`
	Alt    float32   `json:"alt"`
	Chaos  float32   `json:"chaos"`
	Temp   float32   `json:"temp"`
	MaxZ   float32   `json:"max_z"`
	Color  []float32 `json:"color"`
	ChunkZ int32     `json:"chunk_base_z"`
}

// ColumnHandler exposes raw macro columns for debugging. Loopback only.
func (s *Server) ColumnHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cx, errX := strconv.Atoi(r.URL.Query().Get("cx"))
		cy, errY := strconv.Atoi(r.URL.Query().Get("cy"))
		if errX != nil || errY != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrProtoBadRequest, "cx and cy must be ints"))
			return
		}
		g := s.world.Sim()
		col, ok := g.Get(cx, cy)
		if !ok {
			writeJSON(rw, http.StatusNotFound, protocol.NewError(protocol.ErrProtoBadRequest, "column outside world"))
			return
		}
		baseZ, _ := g.GetBaseZ(cx, cy)
		writeJSON(rw, http.StatusOK, ColumnResponse{
			CX:     cx,
			CY:     cy,
			BaseZ:  col.BaseZ,
			Alt:    col.Alt,
			Chaos:  col.Chaos,
			Temp:   col.Temp,
			MaxZ:   col.MaxZ,
			Color:  []float32{col.SurfaceColor[0], col.SurfaceColor[1], col.SurfaceColor[2]},
			ChunkZ: baseZ,
		})
	}
}

func (s *Server) record(rec world.ChunkServed) {
	if s.sink == nil {
		return
	}
	rec.WorldID = s.world.ID()
	rec.SessionID = "http"
	rec.ServedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.sink.RecordChunkServed(rec)
}

func parseInt32(v string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	return int32(n), err
}

func writeJSON(rw http.ResponseWriter, status int, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return 0
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	n, _ := rw.Write(b)
	return n
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
