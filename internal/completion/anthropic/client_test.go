package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gpt-relay/internal/completion"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

type fakeMessageStream struct {
	events []anthropic.MessageStreamEventUnion
	idx    int
	err    error
	closed bool
}

func (s *fakeMessageStream) Next() bool {
	if s.idx >= len(s.events) {
		return false
	}
	s.idx++
	return true
}

func (s *fakeMessageStream) Current() anthropic.MessageStreamEventUnion {
	return s.events[s.idx-1]
}

func (s *fakeMessageStream) Err() error {
	return s.err
}

func (s *fakeMessageStream) Close() error {
	s.closed = true
	return nil
}

func mustEvent(t *testing.T, raw string) anthropic.MessageStreamEventUnion {
	t.Helper()
	var event anthropic.MessageStreamEventUnion
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func TestStreamYieldsTextDeltas(t *testing.T) {
	events := []anthropic.MessageStreamEventUnion{
		mustEvent(t, `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":0,"output_tokens":0}}}`),
		mustEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
		mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`),
		mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`),
		mustEvent(t, `{"type":"content_block_stop","index":0}`),
		mustEvent(t, `{"type":"message_stop"}`),
	}
	var sent anthropic.MessageNewParams
	fake := &fakeMessageStream{events: events}
	client := &Client{
		newStream: func(ctx context.Context, params anthropic.MessageNewParams) messageStream {
			sent = params
			return fake
		},
	}

	stream, err := client.Stream(context.Background(), completion.Request{Model: "claude-test", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	var got []string
	for stream.Next() {
		got = append(got, stream.Current())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	_ = stream.Close()

	if strings.Join(got, "|") != "hello| world" {
		t.Fatalf("fragments = %q", got)
	}
	if !fake.closed {
		t.Fatalf("Close() did not reach the underlying stream")
	}
	if sent.MaxTokens != defaultMaxTokens {
		t.Fatalf("MaxTokens = %d, want default %d", sent.MaxTokens, defaultMaxTokens)
	}
	if string(sent.Model) != "claude-test" {
		t.Fatalf("Model = %q", sent.Model)
	}
}

func TestStreamRejectsEmptyPrompt(t *testing.T) {
	client := &Client{
		newStream: func(context.Context, anthropic.MessageNewParams) messageStream {
			t.Fatalf("stream must not be opened for an empty prompt")
			return nil
		},
	}
	_, err := client.Stream(context.Background(), completion.Request{Model: "claude-test"})
	got, ok := completion.AsError(err)
	if !ok || got.Kind != completion.KindInvalidRequest {
		t.Fatalf("Stream() error = %v, want InvalidRequestError", err)
	}
}

func TestStreamMapsAuthenticationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{Token: "bad", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stream, err := client.Stream(context.Background(), completion.Request{Model: "claude-test", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()
	for stream.Next() {
	}
	got, ok := completion.AsError(stream.Err())
	if !ok {
		t.Fatalf("Err() = %v, want *completion.Error", stream.Err())
	}
	if got.Kind != completion.KindAuthentication {
		t.Fatalf("Kind = %q, want %q", got.Kind, completion.KindAuthentication)
	}
	if got.Message != "invalid x-api-key" {
		t.Fatalf("Message = %q", got.Message)
	}
}

func TestErrorMessage(t *testing.T) {
	cases := map[string]string{
		`{"error":{"message":"overloaded"}}`: "overloaded",
		`{"message":"flat"}`:                 "flat",
		`not json`:                           "not json",
	}
	for in, want := range cases {
		if got := errorMessage(in); got != want {
			t.Fatalf("errorMessage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	if got := normalizeBaseURL(" https://proxy.test/v1/ "); got != "https://proxy.test" {
		t.Fatalf("normalizeBaseURL = %q", got)
	}
	if got := normalizeBaseURL(""); got != "" {
		t.Fatalf("normalizeBaseURL(empty) = %q", got)
	}
}
