package indexdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"voxelterra.ai/internal/sim/world"
)

func TestD1Index_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	kinds := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount++
		thisReq := reqCount
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("x-vt-index-token") != "tok" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}

		var body struct {
			Events []d1Event `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		for _, ev := range body.Events {
			kinds[ev.Kind]++
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	idx, err := OpenD1(D1Config{
		Endpoint:      srv.URL,
		Token:         "tok",
		WorldID:       "world_1",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	defer func() { _ = idx.Close() }()

	if err := idx.RecordWorld(world.WorldRecord{ID: "world_1", Seed: 7}); err != nil {
		t.Fatalf("RecordWorld: %v", err)
	}
	idx.RecordChunkServed(world.ChunkServed{WorldID: "world_1", Key: [2]int32{1, 2}, OK: true})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := kinds["world"] >= 1 && kinds["chunk_serve"] >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	gotWorld, gotServe := kinds["world"], kinds["chunk_serve"]
	mu.Unlock()
	if gotWorld < 1 || gotServe < 1 {
		t.Fatalf("expected retained events to be delivered; world=%d chunk_serve=%d", gotWorld, gotServe)
	}

	st := idx.Stats()
	if st.FlushFailTotal == 0 {
		t.Fatalf("expected flush failures to be recorded, got 0")
	}
	if st.QueueDroppedTotal != 0 || st.RetainDropTotal != 0 {
		t.Fatalf("unexpected drops: queue=%d retain=%d", st.QueueDroppedTotal, st.RetainDropTotal)
	}
}

func TestOpenD1_RequiresEndpointAndWorld(t *testing.T) {
	if _, err := OpenD1(D1Config{WorldID: "w"}); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := OpenD1(D1Config{Endpoint: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected world id error")
	}
}
