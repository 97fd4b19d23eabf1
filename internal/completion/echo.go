package completion

import (
	"context"
	"strings"
	"time"
)

// EchoClient is a fallback when no API key is available: it streams the prompt
// back word by word.
type EchoClient struct {
	Prefix string
	Delay  time.Duration
}

var _ Client = EchoClient{}

func (c EchoClient) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: err.Error(), Err: err}
	}
	text := c.Prefix + req.Prompt
	return &echoStream{ctx: ctx, words: splitKeepSpace(text), delay: c.Delay}, nil
}

func (c EchoClient) ListModels(context.Context) ([]string, error) {
	return []string{"echo"}, nil
}

type echoStream struct {
	ctx   context.Context
	words []string
	delay time.Duration
	idx   int
	err   error
}

func (s *echoStream) Next() bool {
	if s.err != nil || s.idx >= len(s.words) {
		return false
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.err = s.ctx.Err()
			return false
		case <-timer.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.idx++
	return true
}

func (s *echoStream) Current() string {
	if s.idx == 0 {
		return ""
	}
	return s.words[s.idx-1]
}

func (s *echoStream) Err() error   { return s.err }
func (s *echoStream) Close() error { return nil }

// splitKeepSpace splits text after every space so the pieces concatenate back
// to the original.
func splitKeepSpace(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for text != "" {
		idx := strings.IndexByte(text, ' ')
		if idx == -1 {
			out = append(out, text)
			break
		}
		out = append(out, text[:idx+1])
		text = text[idx+1:]
	}
	return out
}
