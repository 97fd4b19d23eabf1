// Package openai streams completions from the OpenAI API (or a compatible proxy).
package openai

import (
	"context"
	"errors"
	"strings"

	"gpt-relay/internal/completion"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// Wire APIs supported by the client.
const (
	WireCompletions = "completions"
	WireChat        = "chat"
)

type Options struct {
	APIKey  string
	BaseURL string
	WireAPI string
}

type completionStream interface {
	Next() bool
	Current() openai.Completion
	Err() error
	Close() error
}

type chatStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type Client struct {
	api  *openai.Client
	wire string

	newCompletionStream func(ctx context.Context, params openai.CompletionNewParams) completionStream
	newChatStream       func(ctx context.Context, params openai.ChatCompletionNewParams) chatStream
}

// 确保 Client 实现了 completion 的接口
var (
	_ completion.Client      = (*Client)(nil)
	_ completion.ModelLister = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	cfg := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(opts.APIKey)),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		cfg = append(cfg, option.WithBaseURL(base))
	}
	client := openai.NewClient(cfg...)

	c := &Client{
		api:  &client,
		wire: normalizeWire(opts.WireAPI),
	}
	c.newCompletionStream = func(ctx context.Context, params openai.CompletionNewParams) completionStream {
		return c.api.Completions.NewStreaming(ctx, params)
	}
	c.newChatStream = func(ctx context.Context, params openai.ChatCompletionNewParams) chatStream {
		return c.api.Chat.Completions.NewStreaming(ctx, params)
	}
	return c, nil
}

func normalizeWire(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case WireChat, "chat_completions", "chat-completions":
		return WireChat
	default:
		return WireCompletions
	}
}

// Stream opens a streaming completion. Request failures surface through the
// returned stream's Err as *completion.Error.
func (c *Client) Stream(ctx context.Context, req completion.Request) (completion.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, &completion.Error{Kind: completion.KindInvalidRequest, Message: err.Error(), Err: err}
	}
	if c.wire == WireChat {
		return &chatTextStream{inner: c.newChatStream(ctx, buildChatParams(req))}, nil
	}
	return &completionTextStream{inner: c.newCompletionStream(ctx, buildCompletionParams(req))}, nil
}

// ListModels returns the model ids visible to the API key.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	iter := c.api.Models.ListAutoPaging(ctx)
	var ids []string
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, wrapAPIError(err)
	}
	return ids, nil
}

func buildCompletionParams(req completion.Request) openai.CompletionNewParams {
	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(req.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(req.Prompt),
		},
		Temperature:      openai.Float(req.Temperature),
		TopP:             openai.Float(req.TopP),
		FrequencyPenalty: openai.Float(req.FrequencyPenalty),
		PresencePenalty:  openai.Float(req.PresencePenalty),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	return params
}

func buildChatParams(req completion.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature:      openai.Float(req.Temperature),
		TopP:             openai.Float(req.TopP),
		FrequencyPenalty: openai.Float(req.FrequencyPenalty),
		PresencePenalty:  openai.Float(req.PresencePenalty),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	return params
}

type completionTextStream struct {
	inner completionStream
	cur   string
}

func (s *completionTextStream) Next() bool {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
			continue
		}
		s.cur = chunk.Choices[0].Text
		return true
	}
	return false
}

func (s *completionTextStream) Current() string { return s.cur }
func (s *completionTextStream) Err() error      { return wrapAPIError(s.inner.Err()) }
func (s *completionTextStream) Close() error    { return s.inner.Close() }

type chatTextStream struct {
	inner chatStream
	cur   string
}

func (s *chatTextStream) Next() bool {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.cur = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *chatTextStream) Current() string { return s.cur }
func (s *chatTextStream) Err() error      { return wrapAPIError(s.inner.Err()) }
func (s *chatTextStream) Close() error    { return s.inner.Close() }

// wrapAPIError converts SDK errors into *completion.Error. Context errors pass
// through untouched so callers can tell cancellation from rejection.
func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = strings.TrimSpace(apiErr.RawJSON())
		}
		return completion.NewStatusError(apiErr.StatusCode, msg, err)
	}
	return completion.NewStatusError(0, err.Error(), err)
}
