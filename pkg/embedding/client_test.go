package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"carepulse-go/internal/config"
)

func newTestServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := embeddingResponse{}
		// 倒序返回，验证客户端按 index 归位
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), float32(len(req.Input[i]))}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedBatchPreservesInputOrder(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "bge-m3"})
	vectors, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != i {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestInitializationHappensExactlyOnce(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls)
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "bge-m3"})
	for i := 0; i < 3; i++ {
		if _, err := c.Embed(context.Background(), "hello"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	// 1 次预热探测 + 3 次正式调用
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 API calls (1 warm-up + 3 embeds), got %d", got)
	}
	if c.Dimensions() != 2 {
		t.Errorf("expected probed dimension 2, got %d", c.Dimensions())
	}
}

func TestModelNotReadyWhenInitFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "bge-m3"})
	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("expected ErrModelNotReady, got %v", err)
	}

	// 初始化失败后不会自动重载，后续调用同样被拒绝
	_, err = c.EmbedBatch(context.Background(), []string{"again"})
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("expected ErrModelNotReady on retry, got %v", err)
	}
}
