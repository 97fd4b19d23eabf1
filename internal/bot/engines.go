package bot

import (
	"context"
	"strings"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"

	"github.com/sahilm/fuzzy"
)

// DiscoverEngines returns the engines offered by /chat.
//
// A configured list wins. Otherwise the models reported by lister are used,
// capped at 25; when listing fails the last cached list is used instead.
func DiscoverEngines(ctx context.Context, configured []string, lister completion.ModelLister, cachePath string) []string {
	if len(configured) > 0 {
		return dedupe(configured)
	}
	if lister == nil {
		return nil
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warnf("list engines failed, falling back to cache: %v", err)
		cache, cerr := config.LoadEngines(cachePath)
		if cerr != nil {
			log.Warnf("read engine cache: %v", cerr)
			return nil
		}
		models = cache.Models
	} else if err := config.SaveEngines(cachePath, models); err != nil {
		log.Warnf("write engine cache: %v", err)
	}

	models = dedupe(models)
	if len(models) > maxChoices {
		log.Warnf("There are more than %d engines available. Only the first %d will be used. Select the engines you want with openai.select_only_these_engines.", maxChoices, maxChoices)
		models = models[:maxChoices]
	}
	return models
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MatchEngines 返回与输入模糊匹配的引擎，按匹配度排序，最多 25 个。
func MatchEngines(input string, engines []string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		if len(engines) > maxChoices {
			return engines[:maxChoices]
		}
		return engines
	}
	matches := fuzzy.Find(input, engines)
	out := make([]string, 0, min(len(matches), maxChoices))
	for _, m := range matches {
		if len(out) == maxChoices {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
