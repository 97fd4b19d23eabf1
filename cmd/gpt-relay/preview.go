package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
	"gpt-relay/internal/surface/console"
)

type previewArgs struct {
	prompt    string
	model     string
	maxTokens int64
	pageSize  int
	keepOpen  bool
	altScreen bool
	overrides stringSlice
}

func parsePreviewArgs(args []string) (previewArgs, error) {
	var p previewArgs
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&p.prompt, "prompt", "", "Prompt to relay (default: remaining arguments)")
	fs.StringVar(&p.model, "model", "", "Engine to use (default from config)")
	fs.Int64Var(&p.maxTokens, "max-tokens", 0, "Maximum tokens to generate (default from config)")
	fs.IntVar(&p.pageSize, "page-size", 0, "Page size in characters (default relay.max_page_size)")
	fs.BoolVar(&p.keepOpen, "keep-open", false, "Keep the preview open after the relay ends")
	fs.BoolVar(&p.altScreen, "alt-screen", false, "Use the alternate screen")
	fs.Var(&p.overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.prompt) == "" {
		p.prompt = strings.Join(fs.Args(), " ")
	}
	p.prompt = strings.TrimSpace(p.prompt)
	if p.prompt == "" {
		return p, errors.New("a prompt is required: gpt-relay preview <prompt>")
	}
	return p, nil
}

// previewRequest builds the completion request from config defaults and flags.
func previewRequest(cfg config.Config, p previewArgs) completion.Request {
	req := completion.Request{
		Model:            cfg.DefaultModel(),
		Prompt:           p.prompt,
		Temperature:      cfg.OpenAI.Temperature,
		TopP:             cfg.OpenAI.TopP,
		MaxTokens:        cfg.OpenAI.MaxTokens,
		FrequencyPenalty: cfg.OpenAI.FrequencyPenalty,
		PresencePenalty:  cfg.OpenAI.PresencePenalty,
	}
	if m := strings.TrimSpace(p.model); m != "" {
		req.Model = m
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	return req
}

func previewMain(root rootArgs, args []string) {
	p, err := parsePreviewArgs(args)
	if err != nil {
		log.Fatalf("parse preview args: %v", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, root, p.overrides)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	// 预览期间日志只写文件，避免打乱终端界面。
	prevOut := logger.Root().Out
	if logSink != nil {
		logger.Root().SetOutput(logSink)
	} else {
		logger.Root().SetOutput(io.Discard)
	}
	info, err := runPreview(ctx, a, p)
	logger.Root().SetOutput(prevOut)

	printSummary(os.Stdout, info)
	if err != nil {
		log.Errorf("preview: %v", err)
	}
}

func runPreview(ctx context.Context, a *app, p previewArgs) (relay.Info, error) {
	req := previewRequest(a.cfg, p)
	relayCfg := a.cfg.RelayOptions()
	if p.pageSize > 0 {
		relayCfg.MaxPageSize = p.pageSize
	}
	opts := console.Options{
		Title:     fmt.Sprintf("%s · %s", req.Model, req.Prompt),
		KeepOpen:  p.keepOpen,
		AltScreen: p.altScreen,
	}
	return console.Run(ctx, opts, func(ctx context.Context, surface relay.Surface) (relay.Info, error) {
		s := relay.NewSession(a.client, surface, req, relayCfg,
			relay.WithEvents(a.bus),
			relay.WithSurfaceName("console"),
		)
		err := a.registry.Run(ctx, s)
		return s.Info(), err
	})
}

func printSummary(w io.Writer, info relay.Info) {
	if info.ID == "" {
		return
	}
	line := fmt.Sprintf("session %s: %s, %d page(s), %d rune(s)", info.ID, info.State, info.Pages, info.Runes)
	if info.Failure != "" {
		line += " (" + info.Failure + ")"
	}
	fmt.Fprintln(w, line)
}
