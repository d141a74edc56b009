package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"voxelterra.ai/internal/protocol"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	WorldSize []int   `yaml:"world_size" json:"world_size"` // [w, h] in columns
	ChunkSize []int   `yaml:"chunk_size" json:"chunk_size"` // [x, y] in blocks
	SeaLevel  float32 `yaml:"sea_level" json:"sea_level"`

	Macro  Macro  `yaml:"macro" json:"macro"`
	Voxel  Voxel  `yaml:"voxel" json:"voxel"`
	Stream Stream `yaml:"stream" json:"stream"`
}

type Macro struct {
	MinAlt float32 `yaml:"min_alt" json:"min_alt"`
	MaxAlt float32 `yaml:"max_alt" json:"max_alt"`

	AltBaseScale   float64 `yaml:"alt_base_scale" json:"alt_base_scale"`
	AltDetailScale float64 `yaml:"alt_detail_scale" json:"alt_detail_scale"`
	ChaosScale     float64 `yaml:"chaos_scale" json:"chaos_scale"`
	TempScale      float64 `yaml:"temp_scale" json:"temp_scale"`

	AltBaseAmp  float32 `yaml:"alt_base_amp" json:"alt_base_amp"`
	AltChaosAmp float32 `yaml:"alt_chaos_amp" json:"alt_chaos_amp"`
	ChaosPower  float32 `yaml:"chaos_power" json:"chaos_power"`
	BeachBand   float32 `yaml:"beach_band" json:"beach_band"`

	AltOctaves    int `yaml:"alt_octaves" json:"alt_octaves"`
	DetailOctaves int `yaml:"detail_octaves" json:"detail_octaves"`
	ChaosOctaves  int `yaml:"chaos_octaves" json:"chaos_octaves"`
	TempOctaves   int `yaml:"temp_octaves" json:"temp_octaves"`

	// Build parallelism only; never part of the digest.
	Workers int `yaml:"workers" json:"-"`
}

type Voxel struct {
	SurfaceDepth   float32   `yaml:"surface_depth" json:"surface_depth"`
	WarpAmplitude  float32   `yaml:"warp_amplitude" json:"warp_amplitude"`
	WarpChaosFloor float32   `yaml:"warp_chaos_floor" json:"warp_chaos_floor"`
	WarpScale      []float64 `yaml:"warp_scale" json:"warp_scale"` // [x, y, z] wavelengths
	WarpOctaves    int       `yaml:"warp_octaves" json:"warp_octaves"`
}

// Stream limits are operational and excluded from the digest.
type Stream struct {
	Workers             int `yaml:"workers" json:"-"`
	Queue               int `yaml:"queue" json:"-"`
	MaxChunksPerRequest int `yaml:"max_chunks_per_request" json:"-"`
	MaxQueuePerClient   int `yaml:"max_queue_per_client" json:"-"`

	// RequestsPerSecond caps CHUNK_REQ messages per session; 0 disables the cap.
	RequestsPerSecond   int `yaml:"requests_per_second" json:"-"`
	MaxRequestsInFlight int `yaml:"max_requests_in_flight" json:"-"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		WorldSize:       []int{1024, 1024},
		ChunkSize:       []int{32, 32},
		SeaLevel:        64,
		Macro: Macro{
			MinAlt:         0,
			MaxAlt:         1000,
			AltBaseScale:   5000,
			AltDetailScale: 750,
			ChaosScale:     4000,
			TempScale:      8000,
			AltBaseAmp:     48,
			AltChaosAmp:    320,
			ChaosPower:     1.4,
			BeachBand:      6,
			AltOctaves:     7,
			DetailOctaves:  5,
			ChaosOctaves:   6,
			TempOctaves:    2,
		},
		Voxel: Voxel{
			SurfaceDepth:   4,
			WarpAmplitude:  90,
			WarpChaosFloor: 0.1,
			WarpScale:      []float64{120, 120, 150},
			WarpOctaves:    3,
		},
		Stream: Stream{
			Workers:             0,
			Queue:               256,
			MaxChunksPerRequest: 64,
			MaxQueuePerClient:   128,
			RequestsPerSecond:   20,
			MaxRequestsInFlight: 8,
		},
	}
}

// Load reads a tuning file. A missing file yields Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case len(t.WorldSize) != 2 || t.WorldSize[0] <= 0 || t.WorldSize[1] <= 0:
		return fmt.Errorf("tuning: world_size must be two positive ints, got %v", t.WorldSize)
	case len(t.ChunkSize) != 2 || t.ChunkSize[0] <= 0 || t.ChunkSize[1] <= 0:
		return fmt.Errorf("tuning: chunk_size must be two positive ints, got %v", t.ChunkSize)
	case t.Macro.MaxAlt <= t.Macro.MinAlt:
		return fmt.Errorf("tuning: macro.max_alt %.1f must exceed min_alt %.1f", t.Macro.MaxAlt, t.Macro.MinAlt)
	case t.SeaLevel < t.Macro.MinAlt || t.SeaLevel > t.Macro.MaxAlt:
		return fmt.Errorf("tuning: sea_level %.1f outside [%.1f, %.1f]", t.SeaLevel, t.Macro.MinAlt, t.Macro.MaxAlt)
	case t.Macro.AltBaseScale <= 0 || t.Macro.AltDetailScale <= 0 || t.Macro.ChaosScale <= 0 || t.Macro.TempScale <= 0:
		return fmt.Errorf("tuning: macro scales must be positive")
	case t.Macro.ChaosPower <= 0:
		return fmt.Errorf("tuning: macro.chaos_power must be positive")
	case t.Voxel.SurfaceDepth < 0:
		return fmt.Errorf("tuning: voxel.surface_depth must be non-negative")
	case t.Voxel.WarpAmplitude < 0:
		return fmt.Errorf("tuning: voxel.warp_amplitude must be non-negative")
	case t.Voxel.WarpChaosFloor < 0 || t.Voxel.WarpChaosFloor > 1:
		return fmt.Errorf("tuning: voxel.warp_chaos_floor must be in [0, 1], got %.3f", t.Voxel.WarpChaosFloor)
	case len(t.Voxel.WarpScale) != 3:
		return fmt.Errorf("tuning: voxel.warp_scale must have 3 entries, got %d", len(t.Voxel.WarpScale))
	case t.Stream.Queue < 0 || t.Stream.MaxChunksPerRequest < 0 || t.Stream.MaxQueuePerClient < 0 || t.Stream.RequestsPerSecond < 0 || t.Stream.MaxRequestsInFlight < 0:
		return fmt.Errorf("tuning: stream limits must be non-negative")
	case t.Stream.MaxChunksPerRequest > protocol.MaxKeysPerRequest:
		return fmt.Errorf("tuning: stream.max_chunks_per_request %d exceeds protocol limit %d", t.Stream.MaxChunksPerRequest, protocol.MaxKeysPerRequest)
	}
	for i, s := range t.Voxel.WarpScale {
		if s <= 0 {
			return fmt.Errorf("tuning: voxel.warp_scale[%d] must be positive", i)
		}
	}
	return nil
}

// Digest identifies the generation constants. Two processes with the same
// digest and seed produce the same terrain.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
