// Package session tracks running relays and archives finished ones.
package session

import (
	"context"
	"sort"
	"sync"

	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
)

var log = logger.Named("session")

// Registry holds the relays that are currently running.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*relay.Session

	// Archive, when set, receives a Record for every finished relay.
	Archive *Store
}

func NewRegistry(archive *Store) *Registry {
	return &Registry{active: map[string]*relay.Session{}, Archive: archive}
}

func (r *Registry) add(s *relay.Session) {
	r.mu.Lock()
	r.active[s.ID()] = s
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Get returns the running session with id.
func (r *Registry) Get(id string) (*relay.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.active[id]
	return s, ok
}

// Active 返回运行中会话的概要，按开始时间排序。
func (r *Registry) Active() []relay.Info {
	r.mu.RLock()
	infos := make([]relay.Info, 0, len(r.active))
	for _, s := range r.active {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Len returns the number of running sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Run registers s, runs it and archives the result. The relay error is
// returned unchanged; archive failures are only logged.
func (r *Registry) Run(ctx context.Context, s *relay.Session) error {
	r.add(s)
	defer r.remove(s.ID())

	err := s.Run(ctx)
	if r.Archive != nil && s.State().Terminal() {
		if aerr := r.Archive.Save(RecordFrom(s)); aerr != nil {
			log.Warnf("archive session %s: %v", s.ID(), aerr)
		}
	}
	return err
}
