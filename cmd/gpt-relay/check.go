package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gpt-relay/internal/bot"
	"gpt-relay/internal/config"

	"github.com/bwmarrin/discordgo"
)

// verifyDiscord is replaced in tests.
var verifyDiscord = func(ctx context.Context, token string) (*discordgo.User, error) {
	return bot.VerifyToken(ctx, token)
}

func checkMain(root rootArgs, args []string) {
	if err := runCheck(root, args, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("check failed: %v", err)
	}
}

// runCheck verifies the Discord token and provider credentials, refreshes the
// engine cache and optionally saves the config. With -ask, missing tokens are
// read from in.
func runCheck(root rootArgs, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		overrides      stringSlice
		engines        csvSlice
		ask            bool
		save           bool
		timeoutSeconds int
		skipDiscord    bool
	)
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	fs.Var(&engines, "engines", "Comma separated engines to save as openai.select_only_these_engines")
	fs.BoolVar(&ask, "ask", false, "Prompt for missing tokens")
	fs.BoolVar(&save, "save", false, "Write the checked config back to the config file")
	fs.IntVar(&timeoutSeconds, "timeout", 30, "Timeout seconds")
	fs.BoolVar(&skipDiscord, "skip-discord", false, "Only check the completion provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return err
	}
	reader := bufio.NewReader(in)
	if ask {
		if !skipDiscord && strings.TrimSpace(cfg.Discord.Token) == "" {
			cfg.Discord.Token = promptLine(reader, out, "Discord bot token: ")
		}
		switch providerName(cfg) {
		case config.ProviderOpenAI:
			if strings.TrimSpace(cfg.OpenAI.Key) == "" {
				cfg.OpenAI.Key = promptLine(reader, out, "OpenAI API key: ")
			}
		case config.ProviderAnthropic:
			if strings.TrimSpace(cfg.Anthropic.Key) == "" {
				cfg.Anthropic.Key = promptLine(reader, out, "Anthropic API key: ")
			}
		}
	}
	if len(engines) > 0 {
		cfg.OpenAI.SelectOnlyTheseEngines = []string(engines)
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	var failures []error
	if !skipDiscord {
		user, err := verifyDiscord(ctx, cfg.Discord.Token)
		if err != nil {
			failures = append(failures, fmt.Errorf("discord: %w", err))
			fmt.Fprintf(out, "discord: FAILED (%v)\n", err)
		} else {
			fmt.Fprintf(out, "discord: ok (%s - %s)\n", user.Username, user.ID)
		}
	}

	name := providerName(cfg)
	_, lister := buildClient(cfg)
	models, err := lister.ListModels(ctx)
	if err != nil {
		failures = append(failures, fmt.Errorf("%s: %w", name, err))
		fmt.Fprintf(out, "%s: FAILED (%v)\n", name, err)
	} else {
		fmt.Fprintf(out, "%s: ok (%d model(s))\n", name, len(models))
		if err := config.SaveEngines(config.DefaultEnginesPath(), models); err != nil {
			log.Warnf("write engine cache: %v", err)
		}
	}

	if save {
		if err := config.Save(root.cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		path := root.cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		fmt.Fprintf(out, "saved %s\n", path)
	}
	return errors.Join(failures...)
}

func promptLine(r *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
