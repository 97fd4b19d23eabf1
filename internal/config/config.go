package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gpt-relay/internal/relay"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Providers selectable with the top-level provider key.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderEcho      = "echo"
)

// Config is the only persisted config file schema.
type Config struct {
	Provider string          `toml:"provider"`
	LogLevel string          `toml:"log_level"`
	LogFile  string          `toml:"log_file"`
	Features map[string]bool `toml:"features"`

	Discord   DiscordConfig   `toml:"discord"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Relay     RelayConfig     `toml:"relay"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Telemetry TelemetryConfig `toml:"telemetry"`

	Source string `toml:"-"`
}

type DiscordConfig struct {
	Token string `toml:"token"`
	// GuildID registers commands on one guild (instant) instead of globally.
	GuildID string `toml:"guild_id,omitempty"`
}

// OpenAIConfig 同时提供 /chat 选项的默认值。
type OpenAIConfig struct {
	Key                    string   `toml:"key"`
	BaseURL                string   `toml:"base_url,omitempty"`
	WireAPI                string   `toml:"wire_api,omitempty"`
	Engine                 string   `toml:"engine"`
	SelectOnlyTheseEngines []string `toml:"select_only_these_engines"`
	Temperature            float64  `toml:"temperature"`
	TopP                   float64  `toml:"top_p"`
	MaxTokens              int64    `toml:"max_tokens"`
	FrequencyPenalty       float64  `toml:"frequency_penalty"`
	PresencePenalty        float64  `toml:"presence_penalty"`
}

type AnthropicConfig struct {
	Key     string `toml:"key"`
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model,omitempty"`
}

// RelayConfig 中的时间均以毫秒为单位，0 表示使用默认值。
type RelayConfig struct {
	MaxPageSize      int     `toml:"max_page_size"`
	Placeholder      string  `toml:"placeholder"`
	PollIntervalMs   int     `toml:"poll_interval_ms"`
	GraceDelayMs     int     `toml:"grace_delay_ms"`
	MaxRenderRate    float64 `toml:"max_render_rate"`
	RenderBurst      int     `toml:"render_burst"`
	DeliveryRetries  int     `toml:"delivery_retries"`
	RetryBackoffMs   int     `toml:"retry_backoff_ms"`
	SessionTimeoutMs int     `toml:"session_timeout_ms"`
}

type GatewayConfig struct {
	Addr string `toml:"addr"`
	// AllowedOrigins restricts websocket upgrades; empty allows same-origin only.
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

type TelemetryConfig struct {
	// Exporter is one of "", "stdout" or "otlp".
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint,omitempty"`
	Insecure    bool    `toml:"insecure,omitempty"`
	ServiceName string  `toml:"service_name,omitempty"`
	SampleRatio float64 `toml:"sample_ratio,omitempty"`
}

func Default() Config {
	return Config{
		Provider: ProviderOpenAI,
		LogLevel: "info",
		OpenAI: OpenAIConfig{
			Engine:           "gpt-3.5-turbo-instruct",
			WireAPI:          "completions",
			Temperature:      0.9,
			TopP:             1,
			MaxTokens:        1024,
			FrequencyPenalty: 0,
			PresencePenalty:  0,
		},
		Anthropic: AnthropicConfig{
			Model: "claude-3-5-haiku-latest",
		},
		Relay: RelayConfig{
			MaxPageSize:    relay.DefaultMaxPageSize,
			Placeholder:    relay.DefaultPlaceholder,
			PollIntervalMs: int(relay.DefaultPollInterval / time.Millisecond),
			GraceDelayMs:   int(relay.DefaultGraceDelay / time.Millisecond),
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8787",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "gpt-relay",
			SampleRatio: 1,
		},
	}
}

// Dir returns the directory holding the config file, transcripts and caches.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gpt-relay")
}

func DefaultPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// LoadDotEnv 读取工作目录下的 .env（若存在），不覆盖已有环境变量。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv("DISCORD_TOKEN")); env != "" {
		cfg.Discord.Token = env
	}
	if env := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); env != "" {
		cfg.OpenAI.Key = env
	}
	if env := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); env != "" {
		cfg.OpenAI.BaseURL = env
	}
	if env := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); env != "" {
		cfg.Anthropic.Key = env
	}
	if env := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); env != "" {
		cfg.Anthropic.BaseURL = env
	}
}

// RelayOptions converts the [relay] section into relay.Config.
func (c Config) RelayOptions() relay.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return relay.Config{
		MaxPageSize:     c.Relay.MaxPageSize,
		Placeholder:     c.Relay.Placeholder,
		PollInterval:    ms(c.Relay.PollIntervalMs),
		GraceDelay:      ms(c.Relay.GraceDelayMs),
		MaxRenderRate:   c.Relay.MaxRenderRate,
		RenderBurst:     c.Relay.RenderBurst,
		DeliveryRetries: c.Relay.DeliveryRetries,
		RetryBackoff:    ms(c.Relay.RetryBackoffMs),
		SessionTimeout:  ms(c.Relay.SessionTimeoutMs),
	}
}

// DefaultModel returns the model used when a request names none.
func (c Config) DefaultModel() string {
	if c.Provider == ProviderAnthropic {
		return c.Anthropic.Model
	}
	return c.OpenAI.Engine
}
