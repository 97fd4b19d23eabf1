package relay

import (
	"context"

	"gpt-relay/internal/logger"
)

// produce opens the completion stream and appends every fragment to the
// accumulator. It is the only writer of s.acc and reports exactly once on done:
// nil on exhaustion, the stream error otherwise.
func (s *Session) produce(ctx context.Context, done chan<- error) {
	llmLog := logger.LLMLog
	llmLog.Request(logger.LLMRequest{
		SessionID: s.id,
		Model:     s.req.Model,
		Prompt:    s.req.Prompt,
		MaxTokens: s.req.MaxTokens,
	})

	stream, err := s.client.Stream(ctx, s.req)
	if err != nil {
		llmLog.Error(s.id, err)
		done <- err
		return
	}
	defer stream.Close()

	s.setState(StateStreaming)
	chunks := 0
	for stream.Next() {
		fragment := stream.Current()
		if fragment == "" {
			continue
		}
		s.acc.Append(fragment)
		llmLog.StreamChunk(s.id, fragment, chunks)
		chunks++
	}
	if err := stream.Err(); err != nil {
		llmLog.Error(s.id, err)
		done <- err
		return
	}
	if err := ctx.Err(); err != nil {
		done <- err
		return
	}
	llmLog.StreamComplete(s.id, chunks, len(s.acc.Snapshot()))
	done <- nil
}
