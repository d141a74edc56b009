package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelterra.ai/internal/protocol"
	"voxelterra.ai/internal/sim/world"
	"voxelterra.ai/internal/sim/world/io/chunkcodec"
	"voxelterra.ai/internal/sim/world/logic/rates"
	"voxelterra.ai/internal/sim/world/stream"
	"voxelterra.ai/internal/sim/world/terrain/chunk"
)

type Options struct {
	WorldID             string
	Params              protocol.WorldParams
	MaxChunksPerRequest int
	MaxQueuePerClient   int

	// RequestsPerSecond caps CHUNK_REQ messages per session; 0 disables the cap.
	RequestsPerSecond int

	// MaxRequestsInFlight caps undelivered CHUNK_REQs per session.
	MaxRequestsInFlight int
}

type Stats struct {
	ActiveSessions int64
	SessionsTotal  uint64
	ChunksOK       uint64
	ChunksFailed   uint64
	RateLimited    uint64
	Rejected       uint64 // whole requests answered with ERROR
}

type Server struct {
	pool *stream.Pool
	opts Options
	sink world.ChunkSink
	log  *log.Logger

	upgrader websocket.Upgrader

	active   atomic.Int64
	sessions atomic.Uint64
	okTotal  atomic.Uint64
	errTotal atomic.Uint64
	limited  atomic.Uint64
	rejected atomic.Uint64
}

func NewServer(pool *stream.Pool, opts Options, sink world.ChunkSink, logger *log.Logger) *Server {
	if opts.MaxChunksPerRequest <= 0 {
		opts.MaxChunksPerRequest = 64
	}
	if opts.MaxChunksPerRequest > protocol.MaxKeysPerRequest {
		opts.MaxChunksPerRequest = protocol.MaxKeysPerRequest
	}
	if opts.MaxRequestsInFlight <= 0 {
		opts.MaxRequestsInFlight = 8
	}
	if opts.MaxQueuePerClient <= 0 {
		opts.MaxQueuePerClient = 128
	}
	return &Server{
		pool: pool,
		opts: opts,
		sink: sink,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		ActiveSessions: s.active.Load(),
		SessionsTotal:  s.sessions.Load(),
		ChunksOK:       s.okTotal.Load(),
		ChunksFailed:   s.errTotal.Load(),
		RateLimited:    s.limited.Load(),
		Rejected:       s.rejected.Load(),
	}
}

type session struct {
	id       string
	out      chan []byte
	inflight chan struct{}

	reqs rates.Window // reader goroutine only
}

// readLimit bounds one client frame: a CHUNK_REQ at the key limit with
// worst-case coordinates plus its envelope.
func (s *Server) readLimit() int64 {
	return 1024 + int64(s.opts.MaxChunksPerRequest)*int64(len("[-2147483648,-2147483648],"))
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.readLimit())

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.sessions.Add(1)
		s.active.Add(1)
		defer s.active.Add(-1)

		// Cancelling ctx abandons every outstanding request of this connection.
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		var reqs sync.WaitGroup

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.sendJSON(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "bad json"))
				continue
			}
			if base.Type != protocol.TypeChunkReq {
				s.sendJSON(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type))
				continue
			}
			var req protocol.ChunkReqMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				s.sendJSON(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "bad CHUNK_REQ"))
				continue
			}
			if req.ProtocolVersion != protocol.Version {
				s.sendJSON(ctx, sess, protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version"))
				continue
			}

			if len(req.Keys) > s.opts.MaxChunksPerRequest {
				s.reject(ctx, sess, req, protocol.ErrDenied, fmt.Sprintf("request has %d keys; limit is %d", len(req.Keys), s.opts.MaxChunksPerRequest))
				continue
			}
			if ok, retry := sess.reqs.Allow(time.Now(), time.Second, s.opts.RequestsPerSecond); !ok {
				s.limited.Add(1)
				s.reject(ctx, sess, req, protocol.ErrBusy, fmt.Sprintf("rate limited; retry in %dms", retry.Milliseconds()))
				continue
			}
			select {
			case sess.inflight <- struct{}{}:
			default:
				s.reject(ctx, sess, req, protocol.ErrBusy, fmt.Sprintf("%d requests already in flight", s.opts.MaxRequestsInFlight))
				continue
			}

			pending := s.submit(ctx, req)
			reqs.Add(1)
			go func() {
				defer reqs.Done()
				defer func() { <-sess.inflight }()
				s.deliver(ctx, sess, req.ReqID, pending)
			}()
		}

		cancel()
		reqs.Wait()
		<-writerDone
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}
}

// pendingKey is either a queued generation or an immediate failure.
type pendingKey struct {
	key  chunk.Key
	ch   <-chan stream.Result
	code string
	msg  string
}

func (s *Server) submit(ctx context.Context, req protocol.ChunkReqMsg) []pendingKey {
	out := make([]pendingKey, 0, len(req.Keys))
	for _, k := range req.Keys {
		key := chunk.Key{X: k[0], Y: k[1]}
		ch, err := s.pool.Submit(ctx, key)
		switch {
		case err == nil:
			out = append(out, pendingKey{key: key, ch: ch})
		case errors.Is(err, stream.ErrBusy):
			out = append(out, pendingKey{key: key, code: protocol.ErrBusy, msg: "generation queue full"})
		case errors.Is(err, context.Canceled):
			out = append(out, pendingKey{key: key, code: protocol.ErrCanceled, msg: "connection closed"})
		default:
			out = append(out, pendingKey{key: key, code: protocol.ErrInternal, msg: err.Error()})
		}
	}
	return out
}

// reject answers a whole request with a single ERROR; none of its keys
// reach the pool or the sink.
func (s *Server) reject(ctx context.Context, sess *session, req protocol.ChunkReqMsg, code, msg string) {
	s.rejected.Add(1)
	s.sendJSON(ctx, sess, protocol.RequestError(req.ReqID, code, msg))
}

// deliver writes one CHUNK message per key, in request order.
func (s *Server) deliver(ctx context.Context, sess *session, reqID string, pending []pendingKey) {
	for _, p := range pending {
		wire := [2]int32{p.key.X, p.key.Y}
		if p.ch == nil {
			s.finish(ctx, sess, protocol.ChunkFailure(reqID, wire, p.code, p.msg), world.ChunkServed{Key: wire, Code: p.code})
			continue
		}

		var res stream.Result
		select {
		case res = <-p.ch:
		case <-ctx.Done():
			return
		}
		if res.Err != nil {
			s.finish(ctx, sess, protocol.ChunkFailure(reqID, wire, protocol.ErrCanceled, res.Err.Error()), world.ChunkServed{Key: wire, Code: protocol.ErrCanceled})
			continue
		}
		payload, err := chunkcodec.Encode(res.Chunk)
		if err != nil {
			s.finish(ctx, sess, protocol.ChunkFailure(reqID, wire, protocol.ErrInternal, err.Error()), world.ChunkServed{Key: wire, Code: protocol.ErrInternal})
			continue
		}
		s.finish(ctx, sess, protocol.ChunkSuccess(reqID, payload), world.ChunkServed{
			Key:       wire,
			OK:        true,
			BaseZ:     payload.BaseZ,
			Layers:    payload.Layers,
			Digest:    payload.Digest,
			GenMicros: res.Elapsed.Microseconds(),
		})
	}
}

func (s *Server) finish(ctx context.Context, sess *session, msg protocol.ChunkMsg, rec world.ChunkServed) {
	n := s.sendJSON(ctx, sess, msg)
	if n < 0 {
		return
	}
	if msg.OK {
		s.okTotal.Add(1)
	} else {
		s.errTotal.Add(1)
	}
	if s.sink == nil {
		return
	}
	rec.WorldID = s.opts.WorldID
	rec.SessionID = sess.id
	rec.Bytes = n
	rec.ServedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.sink.RecordChunkServed(rec)
}

// sendJSON queues v for the writer. It returns the encoded size, or -1 when
// the connection is gone.
func (s *Server) sendJSON(ctx context.Context, sess *session, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		s.printf("ws marshal session=%s err=%v", sess.id, err)
		return -1
	}
	select {
	case sess.out <- b:
		return len(b)
	case <-ctx.Done():
		return -1
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "expected HELLO"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "bad HELLO"))
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 || maxQ > s.opts.MaxQueuePerClient {
		maxQ = s.opts.MaxQueuePerClient
	}

	sess := &session{
		id:       "sess_" + uuid.NewString(),
		out:      make(chan []byte, maxQ),
		inflight: make(chan struct{}, s.opts.MaxRequestsInFlight),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		WorldID:         s.opts.WorldID,
		WorldParams:     s.opts.Params,
		MaxChunksPerReq: s.opts.MaxChunksPerRequest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	s.printf("ws session=%s client=%s queue=%d", sess.id, hello.ClientName, maxQ)
	return sess
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
