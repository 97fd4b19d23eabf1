package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
//
// Keys use the TOML dotted form (openai.engine, relay.max_page_size,
// features.verbose_embeds=true). Unknown keys and unparsable values are
// reported but do not stop the remaining overrides.
func ApplyKVOverrides(cfg Config, overrides []string) (Config, []error) {
	var errs []error
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			errs = append(errs, fmt.Errorf("override %q: want key=value", raw))
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		if err := applyKV(&cfg, key, val); err != nil {
			errs = append(errs, fmt.Errorf("override %q: %w", key, err))
		}
	}
	return cfg, errs
}

func applyKV(cfg *Config, key, val string) error {
	if name, ok := strings.CutPrefix(key, "features."); ok {
		on, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		if cfg.Features == nil {
			cfg.Features = map[string]bool{}
		}
		cfg.Features[name] = on
		return nil
	}

	var err error
	switch key {
	case "provider":
		cfg.Provider = val
	case "log_level":
		cfg.LogLevel = val
	case "log_file":
		cfg.LogFile = val
	case "discord.token":
		cfg.Discord.Token = val
	case "discord.guild_id":
		cfg.Discord.GuildID = val
	case "openai.key":
		cfg.OpenAI.Key = val
	case "openai.base_url":
		cfg.OpenAI.BaseURL = val
	case "openai.wire_api":
		cfg.OpenAI.WireAPI = val
	case "openai.engine", "model":
		cfg.OpenAI.Engine = val
	case "openai.select_only_these_engines":
		cfg.OpenAI.SelectOnlyTheseEngines = splitList(val)
	case "openai.temperature":
		cfg.OpenAI.Temperature, err = strconv.ParseFloat(val, 64)
	case "openai.top_p":
		cfg.OpenAI.TopP, err = strconv.ParseFloat(val, 64)
	case "openai.max_tokens":
		cfg.OpenAI.MaxTokens, err = strconv.ParseInt(val, 10, 64)
	case "openai.frequency_penalty":
		cfg.OpenAI.FrequencyPenalty, err = strconv.ParseFloat(val, 64)
	case "openai.presence_penalty":
		cfg.OpenAI.PresencePenalty, err = strconv.ParseFloat(val, 64)
	case "anthropic.key":
		cfg.Anthropic.Key = val
	case "anthropic.base_url":
		cfg.Anthropic.BaseURL = val
	case "anthropic.model":
		cfg.Anthropic.Model = val
	case "relay.max_page_size":
		cfg.Relay.MaxPageSize, err = strconv.Atoi(val)
	case "relay.placeholder":
		cfg.Relay.Placeholder = val
	case "relay.poll_interval_ms":
		cfg.Relay.PollIntervalMs, err = strconv.Atoi(val)
	case "relay.grace_delay_ms":
		cfg.Relay.GraceDelayMs, err = strconv.Atoi(val)
	case "relay.max_render_rate":
		cfg.Relay.MaxRenderRate, err = strconv.ParseFloat(val, 64)
	case "relay.render_burst":
		cfg.Relay.RenderBurst, err = strconv.Atoi(val)
	case "relay.delivery_retries":
		cfg.Relay.DeliveryRetries, err = strconv.Atoi(val)
	case "relay.retry_backoff_ms":
		cfg.Relay.RetryBackoffMs, err = strconv.Atoi(val)
	case "relay.session_timeout_ms":
		cfg.Relay.SessionTimeoutMs, err = strconv.Atoi(val)
	case "gateway.addr":
		cfg.Gateway.Addr = val
	case "gateway.allowed_origins":
		cfg.Gateway.AllowedOrigins = splitList(val)
	case "telemetry.exporter":
		cfg.Telemetry.Exporter = val
	case "telemetry.endpoint":
		cfg.Telemetry.Endpoint = val
	case "telemetry.insecure":
		cfg.Telemetry.Insecure, err = strconv.ParseBool(val)
	case "telemetry.service_name":
		cfg.Telemetry.ServiceName = val
	case "telemetry.sample_ratio":
		cfg.Telemetry.SampleRatio, err = strconv.ParseFloat(val, 64)
	default:
		return fmt.Errorf("unknown key")
	}
	return err
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
