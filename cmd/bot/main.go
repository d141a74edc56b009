package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"voxelterra.ai/internal/protocol"
	"voxelterra.ai/internal/sim/world/io/chunkcodec"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		cx      = flag.Int("cx", 0, "centre chunk x")
		cy      = flag.Int("cy", 0, "centre chunk y")
		radius  = flag.Int("r", 2, "square radius in chunks")
		timeout = flag.Duration("timeout", 60*time.Second, "overall deadline")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(*timeout))

	sum, err := run(conn, *name, [2]int32{int32(*cx), int32(*cy)}, *radius, os.Stdout, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("done: ok=%d failed=%d void=%d bytes=%d in %s", sum.OK, sum.Failed, sum.Void, sum.Bytes, sum.Elapsed)
}

type summary struct {
	OK      int
	Failed  int
	Void    int
	Bytes   int
	Elapsed time.Duration
}

// squareKeys lists the chunk keys within radius of centre, row by row.
func squareKeys(centre [2]int32, radius int) [][2]int32 {
	if radius < 0 {
		radius = 0
	}
	r := int32(radius)
	out := make([][2]int32, 0, (2*radius+1)*(2*radius+1))
	for y := centre[1] - r; y <= centre[1]+r; y++ {
		for x := centre[0] - r; x <= centre[0]+r; x++ {
			out = append(out, [2]int32{x, y})
		}
	}
	return out
}

// run performs the handshake, requests every key of the square in batches the
// server accepts and prints one line per CHUNK result.
func run(conn *websocket.Conn, name string, centre [2]int32, radius int, out io.Writer, logger *log.Logger) (summary, error) {
	start := time.Now()
	var sum summary

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 64},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return sum, fmt.Errorf("send HELLO: %w", err)
	}

	var welcome protocol.WelcomeMsg
	if err := readTyped(conn, protocol.TypeWelcome, &welcome); err != nil {
		return sum, err
	}
	logger.Printf("WELCOME session=%s world=%s seed=%d size=%v", welcome.SessionID, welcome.WorldID, welcome.WorldParams.Seed, welcome.WorldParams.WorldSize)

	batch := welcome.MaxChunksPerReq
	if batch <= 0 {
		batch = 16
	}
	keys := squareKeys(centre, radius)
	for i := 0; i < len(keys); i += batch {
		end := i + batch
		if end > len(keys) {
			end = len(keys)
		}
		req := protocol.ChunkReqMsg{
			Type:            protocol.TypeChunkReq,
			ProtocolVersion: protocol.Version,
			ReqID:           fmt.Sprintf("R%d", i/batch),
			Keys:            keys[i:end],
		}
		if err := conn.WriteJSON(req); err != nil {
			return sum, fmt.Errorf("send CHUNK_REQ: %w", err)
		}
		for n := i; n < end; n++ {
			var msg protocol.ChunkMsg
			if err := readTyped(conn, protocol.TypeChunk, &msg); err != nil {
				return sum, err
			}
			if !msg.OK || msg.Chunk == nil {
				sum.Failed++
				code := ""
				if msg.Error != nil {
					code = msg.Error.Code
				}
				fmt.Fprintf(out, "%d,%d\tFAIL\t%s\n", msg.Key[0], msg.Key[1], code)
				continue
			}
			c, err := chunkcodec.Decode(*msg.Chunk)
			if err != nil {
				return sum, fmt.Errorf("chunk %v: %w", msg.Key, err)
			}
			sum.OK++
			sum.Bytes += len(msg.Chunk.Data)
			if c.IsVoid() {
				sum.Void++
			}
			fmt.Fprintf(out, "%d,%d\tOK\tbase_z=%d layers=%d\t%s\n", msg.Key[0], msg.Key[1], c.BaseZ, c.Height(), msg.Chunk.Digest)
		}
	}
	sum.Elapsed = time.Since(start)
	return sum, nil
}

// readTyped reads the next message, which must be of type want. An ERROR
// message is returned as an error.
func readTyped(conn *websocket.Conn, want string, v any) error {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return err
	}
	switch base.Type {
	case want:
		return json.Unmarshal(raw, v)
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(raw, &e)
		return fmt.Errorf("server error %s: %s", e.Code, e.Message)
	default:
		return fmt.Errorf("unexpected %s (want %s)", base.Type, want)
	}
}
