package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// MaxQueue caps CHUNK messages buffered for this client; 0 means server default.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
	MaxChunksPerReq int         `json:"max_chunks_per_req"`
}

type WorldParams struct {
	Seed         uint32  `json:"seed"`
	ChunkSize    [3]int  `json:"chunk_size"` // x, y, max layers
	WorldSize    [2]int  `json:"world_size"` // columns
	SeaLevel     float32 `json:"sea_level"`
	TuningDigest string  `json:"tuning_digest"`
	GridDigest   string  `json:"grid_digest,omitempty"`
}

// CHUNK_REQ (client -> server)
type ChunkReqMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id"`
	Keys            [][2]int32 `json:"keys"`
}

// CHUNK (server -> client): one result per requested key.
type ChunkMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ReqID           string        `json:"req_id"`
	Key             [2]int32      `json:"key"`
	OK              bool          `json:"ok"`
	Chunk           *ChunkPayload `json:"chunk,omitempty"`
	Error           *ErrorInfo    `json:"error,omitempty"`
}

// ChunkPayload is the encoded voxel volume of one chunk.
type ChunkPayload struct {
	Key      [2]int32 `json:"key"`
	BaseZ    int32    `json:"base_z"`
	Layers   int      `json:"layers"`
	Below    uint32   `json:"below"`
	Above    uint32   `json:"above"`
	Encoding string   `json:"encoding"`
	Data     []byte   `json:"data"` // base64 in JSON
	Digest   string   `json:"digest"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ERROR (server -> client): connection-level failure, or rejection of a
// whole CHUNK_REQ when ReqID is set.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}

// RequestError rejects every key of request reqID at once.
func RequestError(reqID, code, msg string) ErrorMsg {
	e := NewError(code, msg)
	e.ReqID = reqID
	return e
}

func ChunkFailure(reqID string, key [2]int32, code, msg string) ChunkMsg {
	return ChunkMsg{
		Type:            TypeChunk,
		ProtocolVersion: Version,
		ReqID:           reqID,
		Key:             key,
		OK:              false,
		Error:           &ErrorInfo{Code: code, Message: msg},
	}
}

func ChunkSuccess(reqID string, p ChunkPayload) ChunkMsg {
	return ChunkMsg{
		Type:            TypeChunk,
		ProtocolVersion: Version,
		ReqID:           reqID,
		Key:             p.Key,
		OK:              true,
		Chunk:           &p,
	}
}
