package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/resilience"
)

// Config holds the settings for any OpenAI-compatible endpoint.
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbedModel         string
	Dimensions         int
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	dimensions int
	executor   *resilience.Executor
}

func New(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		chatModel:  cfg.ChatModel,
		embedModel: openai.EmbeddingModel(cfg.EmbedModel),
		dimensions: cfg.Dimensions,
		executor:   cfg.ResilienceExecutor,
	}
}

func (c *Client) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := c.executor.Execute(ctx, "openai."+operation, fn, classifyOpenAIError)
	return wrapTemporaryIfNeeded("openai "+operation, err)
}

// Oracle sends the system instruction and prompt as a two-message chat.
type Oracle struct {
	client *Client
}

func NewOracle(client *Client) *Oracle {
	return &Oracle{client: client}
}

func (o *Oracle) Generate(ctx context.Context, prompt, system string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	var out string
	err := o.client.run(ctx, "chat", func(callCtx context.Context) error {
		resp, err := o.client.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    o.client.chatModel,
			Messages: messages,
		})
		if err != nil {
			return fmt.Errorf("create chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("chat completion returned no choices")
		}
		out = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.client.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.client.dimensions > 0 {
		req.Dimensions = e.client.dimensions
	}

	var vectors [][]float32
	err := e.client.run(ctx, "embed", func(callCtx context.Context) error {
		resp, err := e.client.api.CreateEmbeddings(callCtx, req)
		if err != nil {
			return fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"create embeddings",
				fmt.Errorf("embeddings/texts mismatch: %d/%d", len(resp.Data), len(texts)),
			)
		}
		vectors = make([][]float32, len(resp.Data))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(vectors) {
				return fmt.Errorf("embedding index out of range: %d", item.Index)
			}
			vectors[item.Index] = item.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}
