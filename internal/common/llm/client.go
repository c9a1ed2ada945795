// Package llm wraps the OpenAI chat and embedding endpoints behind a shared
// rate limiter.
package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/errors"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	ServiceName = "openai"

	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	maxParallelBatches = 4
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Temperature float32
	Messages    []Message
}

type Client struct {
	api            *openai.Client
	limiter        *rate.Limiter
	embeddingModel string
	batchSize      int
	logger         logger.Logger
}

func NewClient(cfg config.OpenAIConfig, log logger.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: config.GetDuration(cfg.Timeout)}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	batch := cfg.EmbeddingBatchSize
	if batch <= 0 {
		batch = 64
	}

	return &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		embeddingModel: cfg.EmbeddingModel,
		batchSize:      batch,
		logger:         log.WithFields(map[string]interface{}{"component": "llm"}),
	}
}

// Chat returns the content of the first choice.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
	})
	metrics.ObserveUpstream(ServiceName, err)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.NewLLMResponseError("completion has no choices", nil)
	}

	c.logger.Debug("chat completion", map[string]interface{}{
		"model":            req.Model,
		"promptTokens":     resp.Usage.PromptTokens,
		"completionTokens": resp.Usage.CompletionTokens,
		"durationMs":       time.Since(start).Milliseconds(),
	})
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per text, in input order. Batches run
// concurrently, each waiting on the rate limiter.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBatches)

	for offset := 0; offset < len(texts); offset += c.batchSize {
		end := offset + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset, batch := offset, texts[offset:end]

		g.Go(func() error {
			if err := c.wait(gctx); err != nil {
				return err
			}
			resp, err := c.api.CreateEmbeddings(gctx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			metrics.ObserveUpstream(ServiceName, err)
			if err != nil {
				return classify(err)
			}
			if len(resp.Data) != len(batch) {
				return errors.NewLLMResponseError(
					fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(resp.Data)), nil)
			}
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(batch) {
					return errors.NewLLMResponseError(fmt.Sprintf("embedding index %d out of range", d.Index), nil)
				}
				out[offset+d.Index] = d.Embedding
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewUpstreamTimeoutError(ServiceName, fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewUpstreamError(ServiceName, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return errors.NewUpstreamError(ServiceName, reqErr.HTTPStatusCode, err)
	}
	if strings.Contains(err.Error(), "Client.Timeout") {
		return errors.NewUpstreamTimeoutError(ServiceName, err)
	}
	return errors.FromUpstream(ServiceName, err)
}
