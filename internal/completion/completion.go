// Package completion defines the text-completion stream consumed by the relay.
package completion

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyPrompt is returned when a request carries no prompt text.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Request 描述一次补全请求。参数由上层命令解析并补全默认值，这里只做透传。
type Request struct {
	SessionID        string
	Model            string
	Prompt           string
	Temperature      float64
	TopP             float64
	MaxTokens        int64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Validate 检查请求中必须存在的字段。
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model not specified")
	}
	return nil
}

// Stream is an ordered source of generated text fragments.
//
// Next advances to the next fragment and returns false once the stream is
// exhausted or failed; Err reports the failure, if any.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Client opens completion streams.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ModelLister 列出服务端可用的模型（engine）。
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// SliceStream replays a fixed list of fragments and then the given error.
type SliceStream struct {
	Fragments []string
	Failure   error

	idx       int
	closed    bool
	exhausted bool
}

// NewSliceStream 返回依次产出 fragments 的流。
func NewSliceStream(fragments ...string) *SliceStream {
	return &SliceStream{Fragments: fragments}
}

func (s *SliceStream) Next() bool {
	if s.closed || s.idx >= len(s.Fragments) {
		s.exhausted = true
		return false
	}
	s.idx++
	return true
}

func (s *SliceStream) Current() string {
	if s.idx == 0 || s.idx > len(s.Fragments) {
		return ""
	}
	return s.Fragments[s.idx-1]
}

// Err reports Failure only after Next has returned false.
func (s *SliceStream) Err() error {
	if !s.exhausted {
		return nil
	}
	return s.Failure
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
