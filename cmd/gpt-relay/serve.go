package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gpt-relay/internal/bot"
	"gpt-relay/internal/gateway"

	"golang.org/x/sync/errgroup"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveMain(root rootArgs, args []string) {
	var overrides stringSlice
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	withGateway := fs.Bool("gateway", false, "Also serve the HTTP gateway")
	addr := fs.String("addr", "", "Gateway listen address (default gateway.addr)")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse serve args: %v", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, root, overrides)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	b, err := bot.New(bot.Options{
		Config:   a.cfg,
		Client:   a.client,
		Models:   a.models,
		Registry: a.registry,
		Events:   a.bus,
		Features: a.features,
	})
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx)
	})
	if *withGateway {
		srv := gateway.New(gateway.Options{
			Config:   a.cfg,
			Client:   a.client,
			Registry: a.registry,
			Bus:      a.bus,
		})
		listen := gatewayAddr(a.cfg.Gateway.Addr, *addr)
		g.Go(func() error {
			return srv.Run(gctx, listen)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("serve: %v", err)
		a.Close()
		os.Exit(1)
	}
}

func gatewayMain(root rootArgs, args []string) {
	var overrides stringSlice
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (default gateway.addr)")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse gateway args: %v", err)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, root, overrides)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	srv := gateway.New(gateway.Options{
		Config:   a.cfg,
		Client:   a.client,
		Registry: a.registry,
		Bus:      a.bus,
	})
	if err := srv.Run(ctx, gatewayAddr(a.cfg.Gateway.Addr, *addr)); err != nil {
		log.Errorf("gateway: %v", err)
		a.Close()
		os.Exit(1)
	}
}

func gatewayAddr(configured, flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	return "127.0.0.1:8787"
}
