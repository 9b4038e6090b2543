package narrative

import (
	"context"
	"log/slog"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	"github.com/yanqian/cycleroute/internal/infra/llm/chatgpt"
	"github.com/yanqian/cycleroute/pkg/metrics"
	"github.com/yanqian/cycleroute/pkg/resilience"
)

// ChatStreamer starts a streaming chat completion.
type ChatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.Stream, error)
}

// Config selects the model used for route narration.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Engine adapts a chat completion stream to the planner's token iterator.
type Engine struct {
	client  ChatStreamer
	cfg     Config
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// NewEngine builds the narrative engine. breaker may be nil.
func NewEngine(client ChatStreamer, cfg Config, breaker *resilience.Breaker, logger *slog.Logger) *Engine {
	return &Engine{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger.With("component", "narrative.engine"),
	}
}

// Stream starts narration. The returned stream must be closed by the caller.
func (e *Engine) Stream(ctx context.Context, prompt planner.Prompt) (planner.TokenStream, error) {
	messages := make([]chatgpt.Message, 0, 2)
	if prompt.System != "" {
		messages = append(messages, chatgpt.Message{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatgpt.Message{Role: "user", Content: prompt.User})

	stream, err := resilience.Call(ctx, e.breaker, func(ctx context.Context) (chatgpt.Stream, error) {
		return e.client.CreateChatCompletionStream(ctx, chatgpt.ChatCompletionRequest{
			Model:       e.cfg.Model,
			Messages:    messages,
			Temperature: e.cfg.Temperature,
			MaxTokens:   e.cfg.MaxTokens,
		})
	})
	metrics.RecordUpstream("llm", err)
	if err != nil {
		e.logger.Warn("narration stream failed to start", "model", e.cfg.Model, "error", err)
		return nil, err
	}
	return &tokenStream{stream: stream}, nil
}

type tokenStream struct {
	stream chatgpt.Stream
}

// Next skips frames without content such as the role preamble and the
// finish frame.
func (t *tokenStream) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := t.stream.Recv()
		if err != nil {
			return "", err
		}
		if content := chunk.Content(); content != "" {
			return content, nil
		}
	}
}

func (t *tokenStream) Close() error {
	return t.stream.Close()
}

var _ planner.NarrativeEngine = (*Engine)(nil)
