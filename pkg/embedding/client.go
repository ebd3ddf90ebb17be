// Package embedding provides an OpenAI-compatible embedding client.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/config"
)

// Embedder generates embedding vectors for input texts.
type Embedder interface {
	// EmbedBatch generates one embedding per input, in input order.
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)

	// BatchSize returns the per-call input limit of the backing API.
	BatchSize() int
}

// Client provides access to an OpenAI-compatible embedding endpoint.
type Client struct {
	client    *openai.Client
	model     string
	batchSize int
	logger    *zap.Logger
}

// NewClient creates a new embedding client from configuration.
func NewClient(cfg *config.EmbeddingConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		logger:    logger.Named("embedding"),
	}, nil
}

var _ Embedder = (*Client)(nil)

// EmbedBatch generates embeddings for multiple inputs in one API call.
// The caller is responsible for keeping len(inputs) within BatchSize.
func (c *Client) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	start := time.Now()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: inputs,
	})
	if err != nil {
		c.logger.Error("embedding request failed",
			zap.Int("inputs", len(inputs)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}

	c.logger.Debug("embedding request completed",
		zap.Int("inputs", len(inputs)),
		zap.Duration("elapsed", time.Since(start)))

	return embeddings, nil
}

// BatchSize returns the configured per-call input limit.
func (c *Client) BatchSize() int {
	if c.batchSize <= 0 {
		return 32
	}
	return c.batchSize
}
