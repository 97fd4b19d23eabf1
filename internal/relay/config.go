package relay

import "time"

const (
	// DefaultMaxPageSize is the embed description limit of the chat surface.
	DefaultMaxPageSize = 4096
	DefaultPlaceholder = "I'm thinking..."

	DefaultPollInterval    = time.Second
	DefaultGraceDelay      = time.Second
	DefaultMaxRenderRate   = 2.0
	DefaultRenderBurst     = 2
	DefaultDeliveryRetries = 2
	DefaultRetryBackoff    = 500 * time.Millisecond
)

// Config 控制一次 relay 的分页与节奏。零值字段使用默认值。
type Config struct {
	MaxPageSize int
	Placeholder string

	// PollInterval is the tick between renders while the producer runs.
	PollInterval time.Duration
	// GraceDelay is waited after the producer finishes, before the final render.
	GraceDelay time.Duration

	// MaxRenderRate caps surface calls per second; negative disables the cap.
	MaxRenderRate float64
	RenderBurst   int

	// DeliveryRetries is the number of retries after a failed surface call;
	// negative disables retrying.
	DeliveryRetries int
	RetryBackoff    time.Duration

	// SessionTimeout bounds the generation; zero disables it.
	SessionTimeout time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = DefaultPlaceholder
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.GraceDelay == 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.GraceDelay < 0 {
		cfg.GraceDelay = 0
	}
	if cfg.MaxRenderRate == 0 {
		cfg.MaxRenderRate = DefaultMaxRenderRate
	}
	if cfg.RenderBurst <= 0 {
		cfg.RenderBurst = DefaultRenderBurst
	}
	if cfg.DeliveryRetries == 0 {
		cfg.DeliveryRetries = DefaultDeliveryRetries
	}
	if cfg.DeliveryRetries < 0 {
		cfg.DeliveryRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.SessionTimeout < 0 {
		cfg.SessionTimeout = 0
	}
	return cfg
}
