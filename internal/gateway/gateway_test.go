package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/events"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
	"gpt-relay/internal/session"
	wssurface "gpt-relay/internal/surface/websocket"

	gorilla "github.com/gorilla/websocket"
)

func silenceRootLogger(t *testing.T) {
	t.Helper()
	root := logger.Root()
	prev := root.Out
	root.SetOutput(io.Discard)
	logger.SetGlobalLLMLogger(logger.NoopLLMLogger{})
	t.Cleanup(func() {
		root.SetOutput(prev)
		logger.SetGlobalLLMLogger(nil)
	})
}

func testServer(t *testing.T, store *session.Store, bus *events.Bus) *Server {
	t.Helper()
	silenceRootLogger(t)
	cfg := config.Default()
	cfg.Provider = config.ProviderEcho
	cfg.OpenAI.Engine = "echo"
	cfg.Relay.PollIntervalMs = 5
	cfg.Relay.GraceDelayMs = 1
	cfg.Relay.MaxRenderRate = -1
	return New(Options{
		Config:   cfg,
		Client:   completion.EchoClient{},
		Registry: session.NewRegistry(store),
		Bus:      bus,
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndSessions(t *testing.T) {
	h := testServer(t, nil, nil).Routes()

	resp := get(t, h, "/healthz")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz = %d %s", resp.Code, resp.Body.String())
	}
	resp = get(t, h, "/api/sessions")
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "[]" {
		t.Fatalf("sessions = %d %s", resp.Code, resp.Body.String())
	}
	if resp := get(t, h, "/api/sessions/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown session = %d", resp.Code)
	}
	if resp := get(t, h, "/api/history"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("history without archive = %d", resp.Code)
	}
	if resp := get(t, h, "/api/events"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("events without bus = %d", resp.Code)
	}
}

func TestHistoryAndArchivedSession(t *testing.T) {
	store := session.NewStore(t.TempDir())
	now := time.Now()
	for i, id := range []string{"old", "new"} {
		rec := session.Record{ID: id, Model: "echo", Status: "done", Updated: now.Add(time.Duration(i) * time.Minute)}
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	h := testServer(t, store, nil).Routes()

	resp := get(t, h, "/api/history?limit=1")
	var records []session.Record
	if err := json.Unmarshal(resp.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v (%s)", err, resp.Body.String())
	}
	if len(records) != 1 || records[0].ID != "new" {
		t.Fatalf("history = %+v", records)
	}
	if resp := get(t, h, "/api/history?limit=x"); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", resp.Code)
	}
	resp = get(t, h, "/api/sessions/old")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"id":"old"`) {
		t.Fatalf("archived session = %d %s", resp.Code, resp.Body.String())
	}
}

func TestEventFeed(t *testing.T) {
	bus := events.NewBus(8)
	bus.SetLogger(logger.Named("test"))
	srv := httptest.NewServer(testServer(t, nil, bus).Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?session=s1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	for bus.SubscriberCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	_ = bus.Publish(ctx, events.Event{Type: events.EventSessionStarted, SessionID: "other"})
	_ = bus.Publish(ctx, events.Event{Type: events.EventSessionCompleted, SessionID: "s1"})

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		}
	}
	if eventLine != string(events.EventSessionCompleted) {
		t.Fatalf("event = %q, filtered event leaked", eventLine)
	}
	var ev events.Event
	if err := json.Unmarshal([]byte(dataLine), &ev); err != nil || ev.SessionID != "s1" {
		t.Fatalf("data = %q (%v)", dataLine, err)
	}
}

func dialRelay(t *testing.T, srv *httptest.Server) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/relay"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebsocketRelay(t *testing.T) {
	store := session.NewStore(t.TempDir())
	bus := events.NewBus(16)
	bus.SetLogger(logger.Named("test"))
	feed := bus.Subscribe()
	srv := httptest.NewServer(testServer(t, store, bus).Routes())
	defer srv.Close()

	conn := dialRelay(t, srv)
	if err := conn.WriteJSON(RelayRequest{Prompt: "hello over websocket", MaxTokens: 8}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	pages := map[string]string{}
	var result wssurface.Frame
	for result.Op == "" {
		var f wssurface.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		switch f.Op {
		case wssurface.OpSend, wssurface.OpEdit:
			pages[f.MessageID] = f.Page.Content
		case wssurface.OpResult:
			result = f
		default:
			t.Fatalf("unexpected frame %+v", f)
		}
	}
	if result.Info == nil || result.Info.State != relay.StateDone.String() || result.Info.Model != "echo" {
		t.Fatalf("result = %+v", result.Info)
	}
	if len(pages) != 1 || pages["1"] != "hello over websocket" {
		t.Fatalf("pages = %v", pages)
	}

	started := <-feed
	if started.Type != events.EventSessionStarted || started.SessionID != result.SessionID {
		t.Fatalf("first event = %+v", started)
	}
	if _, err := store.Load(result.SessionID); err != nil {
		t.Fatalf("relay not archived: %v", err)
	}
}

func TestWebsocketRelayRejectsEmptyPrompt(t *testing.T) {
	srv := httptest.NewServer(testServer(t, nil, nil).Routes())
	defer srv.Close()

	conn := dialRelay(t, srv)
	if err := conn.WriteJSON(RelayRequest{Prompt: "   "}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var f wssurface.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Op != wssurface.OpError || !strings.Contains(f.Error, completion.ErrEmptyPrompt.Error()) {
		t.Fatalf("frame = %+v", f)
	}
}

func TestCompletionRequestDefaults(t *testing.T) {
	s := testServer(t, nil, nil)
	temp := 0.1
	req := s.completionRequest(RelayRequest{Prompt: " hi ", Temperature: &temp})
	if req.Model != "echo" || req.Prompt != "hi" || req.Temperature != 0.1 || req.TopP != s.cfg.OpenAI.TopP || req.MaxTokens != s.cfg.OpenAI.MaxTokens {
		t.Fatalf("request = %+v", req)
	}
}

func TestCheckOrigin(t *testing.T) {
	if checkOrigin(nil) != nil {
		t.Fatalf("no allow-list should use the same-origin default")
	}
	check := checkOrigin([]string{"https://relay.example"})
	req := httptest.NewRequest(http.MethodGet, "/api/relay", nil)
	req.Header.Set("Origin", "https://relay.example")
	if !check(req) {
		t.Fatalf("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("foreign origin accepted")
	}
	if !checkOrigin([]string{"*"})(req) {
		t.Fatalf("wildcard should accept any origin")
	}
}
