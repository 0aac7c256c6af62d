// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"carepulse-go/internal/config"
	"carepulse-go/pkg/log"
)

// ErrModelNotReady 表示模型初始化未完成或失败，本次调用被拒绝。
var ErrModelNotReady = errors.New("embedding model not ready")

// ErrEmbeddingFailed 表示模型调用本身出错。
var ErrEmbeddingFailed = errors.New("embedding request failed")

// Client defines the interface for an embedding client.
// 摄取路径和查询路径共用同一个实现，保证语料向量与查询向量可比。
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client

	// 模型加载（首次请求）代价高，惰性且只初始化一次，之后复用。
	initOnce sync.Once
	initErr  error
	dims     int
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// ensureReady 用一次探测请求预热模型并记录实际维度。
func (c *openAICompatibleClient) ensureReady(ctx context.Context) error {
	c.initOnce.Do(func() {
		log.Infof("[EmbeddingClient] 正在初始化 Embedding 模型, model: %s", c.cfg.Model)
		vectors, err := c.request(ctx, []string{"ping"})
		if err != nil {
			c.initErr = err
			log.Errorf("[EmbeddingClient] Embedding 模型初始化失败: %v", err)
			return
		}
		c.dims = len(vectors[0])
		log.Infof("[EmbeddingClient] Embedding 模型就绪, 维度: %d", c.dims)
	})
	if c.initErr != nil {
		return fmt.Errorf("%w: %v", ErrModelNotReady, c.initErr)
	}
	return nil
}

// Embed 返回单条文本的向量。
func (c *openAICompatibleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 返回每条输入对应的向量，顺序与输入一致。
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.request(ctx, texts)
}

// Dimensions 返回模型向量维度；模型未就绪时返回配置值。
func (c *openAICompatibleClient) Dimensions() int {
	if c.dims > 0 {
		return c.dims
	}
	return c.cfg.Dimensions
}

// request calls the OpenAI-compatible API to get vectors for the given texts.
func (c *openAICompatibleClient) request(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("%w: status %s", ErrEmbeddingFailed, resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(embeddingResp.Data))
	}

	// 按 index 归位，不依赖服务端返回顺序
	vectors := make([][]float32, len(texts))
	for _, item := range embeddingResp.Data {
		if item.Index < 0 || item.Index >= len(texts) || len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: invalid embedding at index %d", ErrEmbeddingFailed, item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}
