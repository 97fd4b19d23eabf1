package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// EngineCache 保存最近一次从 /v1/models 拉取到的模型列表。
type EngineCache struct {
	Models  []string  `json:"models"`
	Fetched time.Time `json:"fetched"`
}

// DefaultEnginesPath 返回模型缓存文件路径。
func DefaultEnginesPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "engines.json")
}

func SaveEngines(path string, models []string) error {
	if path == "" {
		path = DefaultEnginesPath()
	}
	if path == "" {
		return errors.New("engine cache path is empty and $HOME is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(EngineCache{Models: models, Fetched: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEngines reads the cache; a missing file yields an empty cache.
func LoadEngines(path string) (EngineCache, error) {
	var cache EngineCache
	if path == "" {
		path = DefaultEnginesPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cache, nil
		}
		return cache, err
	}
	err = json.Unmarshal(data, &cache)
	return cache, err
}
