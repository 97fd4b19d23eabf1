package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/features"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
	"gpt-relay/internal/session"

	"github.com/bwmarrin/discordgo"
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

// isolate points $HOME and the provider env at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	silenceRootLogger(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"DISCORD_TOKEN", "OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"} {
		t.Setenv(key, "")
	}
	return home
}

func TestBuildClientFallsBackToEcho(t *testing.T) {
	silenceRootLogger(t)
	cfg := config.Default()
	cfg.OpenAI.Key = ""
	client, lister := buildClient(cfg)
	if _, ok := client.(completion.EchoClient); !ok {
		t.Fatalf("expected echo fallback, got %T", client)
	}
	if _, ok := lister.(completion.EchoClient); !ok {
		t.Fatalf("expected echo lister, got %T", lister)
	}

	cfg.Provider = config.ProviderAnthropic
	if c, _ := buildClient(cfg); c == nil {
		t.Fatalf("anthropic without key should still return a client")
	}
}

func TestGatewayAddr(t *testing.T) {
	cases := []struct{ configured, flag, want string }{
		{"", "", "127.0.0.1:8787"},
		{"0.0.0.0:9000", "", "0.0.0.0:9000"},
		{"0.0.0.0:9000", ":7000", ":7000"},
	}
	for _, tc := range cases {
		if got := gatewayAddr(tc.configured, tc.flag); got != tc.want {
			t.Fatalf("gatewayAddr(%q, %q) = %q, want %q", tc.configured, tc.flag, got, tc.want)
		}
	}
}

func TestParsePreviewArgs(t *testing.T) {
	p, err := parsePreviewArgs([]string{"-max-tokens", "32", "-page-size", "10", "tell", "me", "a", "story"})
	if err != nil {
		t.Fatalf("parsePreviewArgs: %v", err)
	}
	if p.prompt != "tell me a story" || p.maxTokens != 32 || p.pageSize != 10 {
		t.Fatalf("args = %+v", p)
	}
	if _, err := parsePreviewArgs(nil); err == nil {
		t.Fatalf("missing prompt should fail")
	}

	cfg := config.Default()
	req := previewRequest(cfg, p)
	if req.Model != cfg.OpenAI.Engine || req.MaxTokens != 32 || req.Temperature != cfg.OpenAI.Temperature {
		t.Fatalf("request = %+v", req)
	}
	p.model = "gpt-4o-mini"
	if req := previewRequest(cfg, p); req.Model != "gpt-4o-mini" {
		t.Fatalf("model flag ignored: %+v", req)
	}
}

func TestPrintSummary(t *testing.T) {
	var b strings.Builder
	printSummary(&b, relay.Info{ID: "abc", State: "failed", Pages: 1, Runes: 0, Failure: "Canceled: relay canceled"})
	if got := b.String(); got != "session abc: failed, 1 page(s), 0 rune(s) (Canceled: relay canceled)\n" {
		t.Fatalf("summary = %q", got)
	}
	b.Reset()
	printSummary(&b, relay.Info{})
	if b.Len() != 0 {
		t.Fatalf("empty info should print nothing")
	}
}

func TestRunCheck(t *testing.T) {
	home := isolate(t)
	prev := verifyDiscord
	t.Cleanup(func() { verifyDiscord = prev })
	var gotToken string
	verifyDiscord = func(_ context.Context, token string) (*discordgo.User, error) {
		gotToken = token
		if token == "" {
			return nil, errors.New("missing DISCORD_TOKEN")
		}
		return &discordgo.User{ID: "1", Username: "relay-bot"}, nil
	}

	cfgPath := filepath.Join(home, "config.toml")
	root := rootArgs{cfgPath: cfgPath, overrides: []string{"provider=echo"}}
	var out strings.Builder
	err := runCheck(root, []string{"-ask", "-save", "-engines", "echo, text-davinci-003"}, strings.NewReader("bot-token\n"), &out)
	if err != nil {
		t.Fatalf("runCheck: %v\n%s", err, out.String())
	}
	if gotToken != "bot-token" {
		t.Fatalf("prompted token not used: %q", gotToken)
	}
	for _, want := range []string{"Discord bot token: ", "discord: ok (relay-bot - 1)", "echo: ok (1 model(s))", "saved " + cfgPath} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Discord.Token != "bot-token" || len(saved.OpenAI.SelectOnlyTheseEngines) != 2 {
		t.Fatalf("saved config = %+v", saved)
	}
	cache, err := config.LoadEngines(config.DefaultEnginesPath())
	if err != nil || len(cache.Models) != 1 || cache.Models[0] != "echo" {
		t.Fatalf("engine cache = %+v, %v", cache, err)
	}
}

func TestRunCheckReportsDiscordFailure(t *testing.T) {
	isolate(t)
	prev := verifyDiscord
	t.Cleanup(func() { verifyDiscord = prev })
	verifyDiscord = func(context.Context, string) (*discordgo.User, error) {
		return nil, errors.New("401: Unauthorized")
	}
	var out strings.Builder
	err := runCheck(rootArgs{overrides: []string{"provider=echo"}}, nil, strings.NewReader(""), &out)
	if err == nil || !strings.Contains(err.Error(), "discord") {
		t.Fatalf("expected discord failure, got %v", err)
	}
	if !strings.Contains(out.String(), "discord: FAILED") || !strings.Contains(out.String(), "echo: ok") {
		t.Fatalf("output = %s", out.String())
	}
}

func TestRunHistory(t *testing.T) {
	silenceRootLogger(t)
	dir := t.TempDir()
	store := session.NewStore(dir)
	now := time.Now()
	records := []session.Record{
		{ID: "first", Model: "echo", Status: "done", Pages: 1, Prompt: "hello", Text: "hello", Updated: now.Add(-time.Hour)},
		{ID: "second", Model: "echo", Status: "failed", Pages: 2, Prompt: strings.Repeat("long prompt ", 10), Failure: "RateLimitError: slow down", Updated: now},
	}
	for _, rec := range records {
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	var out strings.Builder
	if err := runHistory([]string{"-dir", dir}, &out); err != nil {
		t.Fatalf("runHistory: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "second") || !strings.HasPrefix(lines[2], "first") {
		t.Fatalf("history table:\n%s", out.String())
	}
	if !strings.Contains(lines[1], "…") {
		t.Fatalf("long prompt should be truncated: %q", lines[1])
	}

	out.Reset()
	if err := runHistory([]string{"-dir", dir, "show", "second"}, &out); err != nil {
		t.Fatalf("history show: %v", err)
	}
	if !strings.Contains(out.String(), "failure: RateLimitError: slow down") {
		t.Fatalf("show output:\n%s", out.String())
	}

	out.Reset()
	if err := runHistory([]string{"-dir", t.TempDir()}, &out); err != nil || !strings.Contains(out.String(), "no archived relays") {
		t.Fatalf("empty history = %q, %v", out.String(), err)
	}
	if err := runHistory([]string{"-dir", dir, "show"}, &out); err == nil {
		t.Fatalf("show without id should fail")
	}
}

func TestRunModelsAndFeatures(t *testing.T) {
	silenceRootLogger(t)
	cfg := config.Default()
	cfg.Provider = config.ProviderEcho
	cfg.OpenAI.Engine = "echo"

	var out strings.Builder
	runModels(context.Background(), cfg, completion.EchoClient{}, filepath.Join(t.TempDir(), "engines.json"), &out)
	if out.String() != "* echo\n" {
		t.Fatalf("models output = %q", out.String())
	}

	out.Reset()
	printFeatures(&out, features.Resolve(map[string]bool{features.VerboseEmbeds: true}))
	if !strings.Contains(out.String(), "verbose_embeds\tstable\ttrue") {
		t.Fatalf("features output = %q", out.String())
	}
}
