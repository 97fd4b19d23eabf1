// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gpt-relay/internal/completion"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens is used when the request leaves max_tokens unset; the
// Messages API requires one.
const defaultMaxTokens = 1024

type Options struct {
	Token   string
	BaseURL string
}

type messageStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

type Client struct {
	api       *anthropic.Client
	newStream func(ctx context.Context, params anthropic.MessageNewParams) messageStream
}

var (
	_ completion.Client      = (*Client)(nil)
	_ completion.ModelLister = (*Client)(nil)
)

func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("missing token")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(token),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(reqOpts...)
	c := &Client{api: &client}
	c.newStream = func(ctx context.Context, params anthropic.MessageNewParams) messageStream {
		return c.api.Messages.NewStreaming(ctx, params)
	}
	return c, nil
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimRight(strings.TrimSuffix(base, "/v1"), "/")
	}
	return base
}

// Stream opens a Messages stream for the prompt. Frequency and presence
// penalties have no Messages API counterpart and are not sent.
func (c *Client) Stream(ctx context.Context, req completion.Request) (completion.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, &completion.Error{Kind: completion.KindInvalidRequest, Message: err.Error(), Err: err}
	}
	return &textStream{inner: c.newStream(ctx, buildMessageParams(req))}, nil
}

// ListModels 返回可用的 Claude 模型 id。
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	iter := c.api.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	var ids []string
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, wrapAPIError(err)
	}
	return ids, nil
}

func buildMessageParams(req completion.Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(clamp(req.Temperature, 0, 1)),
	}
	if req.TopP > 0 && req.TopP < 1 {
		params.TopP = anthropic.Float(req.TopP)
	}
	return params
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type textStream struct {
	inner messageStream
	cur   string
}

func (s *textStream) Next() bool {
	for s.inner.Next() {
		event := s.inner.Current()
		switch v := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := v.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				s.cur = d.Text
				return true
			}
		case anthropic.MessageStopEvent:
			return false
		}
	}
	return false
}

func (s *textStream) Current() string { return s.cur }
func (s *textStream) Err() error      { return wrapAPIError(s.inner.Err()) }
func (s *textStream) Close() error    { return s.inner.Close() }

func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return completion.NewStatusError(apiErr.StatusCode, errorMessage(apiErr.RawJSON()), err)
	}
	return completion.NewStatusError(0, err.Error(), err)
}

// errorMessage extracts error.message from an API error body.
func errorMessage(raw string) string {
	var decoded struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return strings.TrimSpace(raw)
	}
	if msg := strings.TrimSpace(decoded.Error.Message); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(decoded.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(raw)
}
