package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{0, KindConnection},
		{http.StatusBadRequest, KindInvalidRequest},
		{http.StatusNotFound, KindInvalidRequest},
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusForbidden, KindPermission},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusServiceUnavailable, KindServiceUnavailable},
		{http.StatusInternalServerError, KindAPI},
	}
	for _, tc := range cases {
		if got := KindForStatus(tc.status); got != tc.want {
			t.Fatalf("KindForStatus(%d) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestAsErrorThroughWrapping(t *testing.T) {
	base := NewStatusError(http.StatusBadRequest, "max_tokens is too large", nil)
	wrapped := fmt.Errorf("open stream: %w", base)

	got, ok := AsError(wrapped)
	if !ok {
		t.Fatalf("AsError() did not find *Error")
	}
	if got.Kind != KindInvalidRequest || got.Message != "max_tokens is too large" {
		t.Fatalf("unexpected error: %+v", got)
	}
	if wrapped.Error() != "open stream: InvalidRequestError: max_tokens is too large" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatalf("AsError(plain) should be false")
	}
}

func TestRequestValidate(t *testing.T) {
	if err := (Request{Model: "m"}).Validate(); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Validate() = %v, want ErrEmptyPrompt", err)
	}
	if err := (Request{Prompt: "hi"}).Validate(); err == nil {
		t.Fatalf("Validate() without model expected error")
	}
	if err := (Request{Prompt: "hi", Model: "m"}).Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestSliceStreamReplaysThenFails(t *testing.T) {
	boom := errors.New("boom")
	s := &SliceStream{Fragments: []string{"a", "b"}, Failure: boom}

	var got []string
	for s.Next() {
		if err := s.Err(); err != nil {
			t.Fatalf("Err() before exhaustion = %v", err)
		}
		got = append(got, s.Current())
	}
	if strings.Join(got, "") != "ab" {
		t.Fatalf("fragments = %v", got)
	}
	if !errors.Is(s.Err(), boom) {
		t.Fatalf("Err() = %v, want boom", s.Err())
	}

	empty := &SliceStream{Failure: boom}
	if err := empty.Err(); err != nil {
		t.Fatalf("Err() before Next = %v", err)
	}
	if empty.Next() {
		t.Fatalf("empty stream yielded a fragment")
	}
	if !errors.Is(empty.Err(), boom) {
		t.Fatalf("Err() after exhaustion = %v, want boom", empty.Err())
	}
}

func TestEchoClientStreamsPromptBack(t *testing.T) {
	stream, err := EchoClient{Prefix: "echo: "}.Stream(context.Background(), Request{Model: "echo", Prompt: "hello relay world"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	var sb strings.Builder
	n := 0
	for stream.Next() {
		sb.WriteString(stream.Current())
		n++
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if sb.String() != "echo: hello relay world" {
		t.Fatalf("text = %q", sb.String())
	}
	if n != 4 {
		t.Fatalf("fragments = %d, want 4", n)
	}
}

func TestEchoClientRejectsEmptyPrompt(t *testing.T) {
	_, err := EchoClient{}.Stream(context.Background(), Request{Model: "echo"})
	got, ok := AsError(err)
	if !ok || got.Kind != KindInvalidRequest {
		t.Fatalf("Stream() error = %v, want InvalidRequestError", err)
	}
}

func TestEchoStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := EchoClient{}.Stream(ctx, Request{Model: "echo", Prompt: "a b c"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	cancel()
	if stream.Next() {
		t.Fatalf("Next() after cancel should be false")
	}
	if !errors.Is(stream.Err(), context.Canceled) {
		t.Fatalf("Err() = %v, want context.Canceled", stream.Err())
	}
}
