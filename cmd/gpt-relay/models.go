package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gpt-relay/internal/bot"
	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/features"
)

func modelsMain(root rootArgs, args []string) {
	var overrides stringSlice
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse models args: %v", err)
	}
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	_, lister := buildClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runModels(ctx, cfg, lister, config.DefaultEnginesPath(), os.Stdout)
}

// runModels prints the engines /chat would offer, marking the default.
func runModels(ctx context.Context, cfg config.Config, lister completion.ModelLister, cachePath string, out io.Writer) {
	engines := bot.DiscoverEngines(ctx, cfg.OpenAI.SelectOnlyTheseEngines, lister, cachePath)
	def := cfg.DefaultModel()
	for _, id := range engines {
		mark := " "
		if id == def {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s\n", mark, id)
	}
	if len(engines) == 0 {
		fmt.Fprintln(out, "no engines available")
	}
}

func featuresMain(root rootArgs, args []string) {
	var overrides stringSlice
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse features args: %v", err)
	}
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	printFeatures(os.Stdout, features.Resolve(cfg.Features))
}

func printFeatures(out io.Writer, set features.Set) {
	for _, spec := range features.Specs {
		fmt.Fprintf(out, "%s\t%s\t%t\n", spec.Key, spec.Stage, set.Enabled(spec.Key))
	}
}
