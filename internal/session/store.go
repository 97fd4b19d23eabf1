package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gpt-relay/internal/relay"
)

// Record 是一次已结束 relay 的归档。
type Record struct {
	ID       string    `json:"id"`
	Model    string    `json:"model"`
	Prompt   string    `json:"prompt"`
	Surface  string    `json:"surface,omitempty"`
	Status   string    `json:"status"`
	Failure  string    `json:"failure,omitempty"`
	Pages    int       `json:"pages"`
	Text     string    `json:"text"`
	Started  time.Time `json:"started"`
	Updated  time.Time `json:"updated"`
	Duration string    `json:"duration,omitempty"`
}

// RecordFrom builds the archive record of a finished session.
func RecordFrom(s *relay.Session) Record {
	info := s.Info()
	rec := Record{
		ID:      info.ID,
		Model:   info.Model,
		Prompt:  info.Prompt,
		Surface: info.Surface,
		Status:  info.State,
		Failure: info.Failure,
		Pages:   info.Pages,
		Text:    s.Snapshot(),
		Started: info.StartedAt,
		Updated: info.EndedAt,
	}
	if !info.EndedAt.IsZero() && !info.StartedAt.IsZero() {
		rec.Duration = info.EndedAt.Sub(info.StartedAt).Round(time.Millisecond).String()
	}
	if rec.Updated.IsZero() {
		rec.Updated = time.Now()
	}
	return rec
}

// Store 把 Record 以 JSON 文件形式保存在 Dir 下。
type Store struct {
	Dir string
}

// DefaultDir returns ~/.gpt-relay/transcripts.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gpt-relay", "transcripts")
}

// NewStore 返回使用 dir 的 Store；dir 为空时使用默认目录。
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{Dir: dir}
}

func (s *Store) ensureDir() (string, error) {
	if s.Dir == "" {
		return "", errors.New("transcript dir is empty and $HOME is not set")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	return s.Dir, nil
}

func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	d, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(d, rec.ID+".json")
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Load(id string) (Record, error) {
	var rec Record
	path := filepath.Join(s.Dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Store) Last() (Record, error) {
	records, err := s.List(1)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, fmt.Errorf("no transcripts found")
	}
	return records[0], nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func (s *Store) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, trimExt(e.Name()))
	}
	return ids, nil
}

// List returns records newest first; limit <= 0 returns all of them.
func (s *Store) List(limit int) ([]Record, error) {
	ids, err := s.ListIDs()
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, id := range ids {
		rec, err := s.Load(id)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Updated.After(records[j].Updated)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
