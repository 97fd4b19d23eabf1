package features

import (
	"sort"
	"strings"
)

// Stage describes the lifecycle bucket of a feature flag.
type Stage string

const (
	StageStable       Stage = "stable"
	StageBeta         Stage = "beta"
	StageExperimental Stage = "experimental"
	StageDeprecated   Stage = "deprecated"
	StageRemoved      Stage = "removed"
)

// Feature keys.
const (
	EngineAutocomplete = "engine_autocomplete"
	TranscriptArchive  = "transcript_archive"
	VerboseEmbeds      = "verbose_embeds"
)

// Spec describes a feature flag exposed by the bot.
type Spec struct {
	Key            string
	Stage          Stage
	DefaultEnabled bool
}

// Specs lists every known feature flag.
var Specs = []Spec{
	{Key: EngineAutocomplete, Stage: StageStable, DefaultEnabled: true},
	{Key: TranscriptArchive, Stage: StageBeta, DefaultEnabled: true},
	{Key: VerboseEmbeds, Stage: StageStable, DefaultEnabled: false},
}

var known = func() map[string]Spec {
	m := make(map[string]Spec, len(Specs))
	for _, spec := range Specs {
		m[spec.Key] = spec
	}
	return m
}()

// IsKnown reports whether the feature key is recognized.
func IsKnown(key string) bool {
	_, ok := known[key]
	return ok
}

// StageFor returns the lifecycle stage for a feature, defaulting to experimental.
func StageFor(key string) Stage {
	if spec, ok := known[key]; ok {
		return spec.Stage
	}
	return StageExperimental
}

// DefaultEnabled reports the default value for the given feature key.
func DefaultEnabled(key string) bool {
	if spec, ok := known[key]; ok {
		return spec.DefaultEnabled
	}
	return false
}

// Set 是解析后的开关集合：配置覆盖默认值，未知 key 被忽略。
type Set struct {
	enabled map[string]bool
}

// Resolve 合并默认值与配置中的覆盖项。
func Resolve(overrides map[string]bool) Set {
	enabled := make(map[string]bool, len(Specs))
	for _, spec := range Specs {
		if spec.Stage == StageRemoved {
			continue
		}
		enabled[spec.Key] = spec.DefaultEnabled
	}
	for key, on := range overrides {
		key = strings.ToLower(strings.TrimSpace(key))
		if spec, ok := known[key]; ok && spec.Stage != StageRemoved {
			enabled[key] = on
		}
	}
	return Set{enabled: enabled}
}

// Enabled reports whether key is on. A zero Set falls back to the defaults.
func (s Set) Enabled(key string) bool {
	if s.enabled == nil {
		return DefaultEnabled(key)
	}
	return s.enabled[key]
}

// Unknown returns the override keys that match no feature, sorted.
func Unknown(overrides map[string]bool) []string {
	var out []string
	for key := range overrides {
		if !IsKnown(strings.ToLower(strings.TrimSpace(key))) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
