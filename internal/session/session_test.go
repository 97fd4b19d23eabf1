package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
)

func silenceRootLogger(t *testing.T) {
	t.Helper()
	root := logger.Root()
	prev := root.Out
	root.SetOutput(io.Discard)
	t.Cleanup(func() {
		root.SetOutput(prev)
	})
}

type memorySurface struct {
	mu    sync.Mutex
	seq   int
	gate  chan struct{}
	calls int
}

func (m *memorySurface) next() relay.MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.calls++
	return relay.MessageRef{ID: string(rune('a' + m.seq))}
}

func (m *memorySurface) SendInitial(ctx context.Context, _ relay.Page) (relay.MessageRef, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return relay.MessageRef{}, ctx.Err()
		}
	}
	return m.next(), nil
}

func (m *memorySurface) EditInPlace(context.Context, relay.MessageRef, relay.Page) error {
	m.next()
	return nil
}

func (m *memorySurface) SendFollowup(context.Context, relay.Page) (relay.MessageRef, error) {
	return m.next(), nil
}

func fastRelay() relay.Config {
	return relay.Config{PollInterval: 5 * time.Millisecond, GraceDelay: time.Millisecond, MaxRenderRate: -1}
}

func TestStore_SaveLoadList(t *testing.T) {
	store := NewStore(t.TempDir())
	now := time.Now()
	for i, id := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": -2 * time.Hour, "mid": -time.Hour, "new": 0}[id]
		rec := Record{ID: id, Model: "m", Prompt: "p", Status: "done", Pages: i + 1, Text: id, Updated: now.Add(offset)}
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.Dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	records, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 || records[0].ID != "new" || records[2].ID != "old" {
		t.Fatalf("records = %+v", records)
	}
	limited, _ := store.List(2)
	if len(limited) != 2 {
		t.Fatalf("List(2) = %d records", len(limited))
	}
	last, err := store.Last()
	if err != nil || last.ID != "new" {
		t.Fatalf("Last() = %+v, %v", last, err)
	}
	loaded, err := store.Load("mid")
	if err != nil || loaded.Text != "mid" {
		t.Fatalf("Load(mid) = %+v, %v", loaded, err)
	}
}

func TestStore_EmptyDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))
	ids, err := store.ListIDs()
	if err != nil || len(ids) != 0 {
		t.Fatalf("ListIDs() = %v, %v", ids, err)
	}
	if _, err := store.Last(); err == nil {
		t.Fatalf("Last() on empty store should fail")
	}
	if err := store.Save(Record{}); err == nil {
		t.Fatalf("Save without id should fail")
	}
}

func TestRegistry_RunArchivesFinishedRelay(t *testing.T) {
	silenceRootLogger(t)

	store := NewStore(t.TempDir())
	reg := NewRegistry(store)
	surface := &memorySurface{gate: make(chan struct{})}
	client := completion.EchoClient{}
	s := relay.NewSession(client, surface, completion.Request{Model: "echo", Prompt: "hello archive"}, fastRelay(),
		relay.WithSurfaceName("memory"))

	errc := make(chan error, 1)
	go func() { errc <- reg.Run(context.Background(), s) }()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session never registered")
		}
		time.Sleep(time.Millisecond)
	}
	if got, ok := reg.Get(s.ID()); !ok || got != s {
		t.Fatalf("Get(%s) = %v, %v", s.ID(), got, ok)
	}
	active := reg.Active()
	if len(active) != 1 || active[0].Surface != "memory" {
		t.Fatalf("Active() = %+v", active)
	}
	close(surface.gate)

	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("finished session still registered")
	}
	rec, err := store.Load(s.ID())
	if err != nil {
		t.Fatalf("Load archived record: %v", err)
	}
	if rec.Text != "hello archive" || rec.Status != "done" || rec.Model != "echo" || rec.Pages != 1 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestRegistry_NoArchiveWithoutStore(t *testing.T) {
	silenceRootLogger(t)

	reg := NewRegistry(nil)
	s := relay.NewSession(completion.EchoClient{}, &memorySurface{}, completion.Request{Model: "echo", Prompt: "x"}, fastRelay())
	if err := reg.Run(context.Background(), s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != relay.StateDone {
		t.Fatalf("State() = %s", s.State())
	}
}
