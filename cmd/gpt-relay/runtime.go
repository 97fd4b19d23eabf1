package main

import (
	"context"
	"io"
	"strings"
	"time"

	"gpt-relay/internal/completion"
	anthropicclient "gpt-relay/internal/completion/anthropic"
	openaiclient "gpt-relay/internal/completion/openai"
	"gpt-relay/internal/config"
	"gpt-relay/internal/events"
	"gpt-relay/internal/features"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/session"
	"gpt-relay/internal/telemetry"
)

// echoDelay paces the echo provider so previews show incremental rendering.
const echoDelay = 40 * time.Millisecond

// app bundles what every long-running command needs.
type app struct {
	cfg      config.Config
	client   completion.Client
	models   completion.ModelLister
	features features.Set
	bus      *events.Bus
	registry *session.Registry

	closers []func()
}

func loadConfig(root rootArgs, extra []string) (config.Config, error) {
	cfg, err := config.Load(root.cfgPath)
	if err != nil {
		return cfg, err
	}
	cfg, errs := config.ApplyKVOverrides(cfg, prependOverrides(root.overrides, extra))
	for _, e := range errs {
		log.Warnf("ignoring override: %v", e)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warnf("%v", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, root rootArgs, extra []string) (*app, error) {
	cfg, err := loadConfig(root, extra)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if path := strings.TrimSpace(cfg.LogFile); path != "" && path != logger.DefaultLogPath {
		if closer, resolved, err := logger.SetupFile(path); err != nil {
			log.Warnf("failed to open log file %s: %v", path, err)
		} else {
			log.Infof("logging to %s", resolved)
			a.closeWith(closer)
			if w, ok := closer.(io.Writer); ok {
				logSink = w
			}
		}
	}

	a.client, a.models = buildClient(cfg)

	a.features = features.Resolve(cfg.Features)
	if unknown := features.Unknown(cfg.Features); len(unknown) > 0 {
		log.Warnf("unknown feature flags ignored: %s", strings.Join(unknown, ", "))
	}

	eventsLog, eventsCloser := events.NewFileLogger(events.DefaultLogPath)
	if eventsCloser != nil {
		a.closeWith(eventsCloser)
	}
	a.bus = events.NewBus(0)
	a.bus.SetLogger(eventsLog)
	a.closers = append(a.closers, a.bus.Close)

	var archive *session.Store
	if a.features.Enabled(features.TranscriptArchive) {
		archive = session.NewStore(session.DefaultDir())
	}
	a.registry = session.NewRegistry(archive)

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warnf("telemetry shutdown: %v", err)
		}
	})
	return a, nil
}

func (a *app) closeWith(c io.Closer) {
	a.closers = append(a.closers, func() { _ = c.Close() })
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildClient picks the completion provider. A missing API key falls back to
// the echo provider.
func buildClient(cfg config.Config) (completion.Client, completion.ModelLister) {
	echo := completion.EchoClient{Delay: echoDelay}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderEcho:
		return echo, echo
	case config.ProviderAnthropic:
		if strings.TrimSpace(cfg.Anthropic.Key) == "" {
			log.Warnf("ANTHROPIC_API_KEY is not set; falling back to echo mode")
			return echo, echo
		}
		client, err := anthropicclient.New(anthropicclient.Options{
			Token:   cfg.Anthropic.Key,
			BaseURL: cfg.Anthropic.BaseURL,
		})
		if err != nil {
			log.Fatalf("failed to init anthropic client: %v", err)
		}
		return client, client
	default:
		if strings.TrimSpace(cfg.OpenAI.Key) == "" {
			log.Warnf("OPENAI_API_KEY is not set; falling back to echo mode")
			return echo, echo
		}
		client, err := openaiclient.New(openaiclient.Options{
			APIKey:  cfg.OpenAI.Key,
			BaseURL: cfg.OpenAI.BaseURL,
			WireAPI: cfg.OpenAI.WireAPI,
		})
		if err != nil {
			log.Fatalf("failed to init openai client: %v", err)
		}
		return client, client
	}
}

// providerName is the name shown for the configured provider.
func providerName(cfg config.Config) string {
	if p := strings.TrimSpace(cfg.Provider); p != "" {
		return strings.ToLower(p)
	}
	return config.ProviderOpenAI
}
