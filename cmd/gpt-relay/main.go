package main

import (
	"fmt"
	"io"
	"os"

	"gpt-relay/internal/config"
	"gpt-relay/internal/logger"
)

var log = logger.Named("cli")

// version is set with -ldflags "-X main.version=...".
var version = "dev"

// logSink is the log file opened at startup; the preview UI writes logs only
// there so they do not tear the terminal.
var logSink io.Writer

func main() {
	logger.Configure()
	if err := config.LoadDotEnv(); err != nil {
		log.Warnf("failed to load .env: %v", err)
	}
	if logFile, _, err := logger.SetupFile(logger.DefaultLogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
		if w, ok := logFile.(io.Writer); ok {
			logSink = w
		}
	}
	if llmCloser, _, err := logger.SetupLLMLog(logger.DefaultLLMLogPath); err != nil {
		log.Warnf("failed to initialize llm log (%s): %v", logger.DefaultLLMLogPath, err)
	} else if llmCloser != nil {
		defer llmCloser.Close()
	}

	root, rest, err := parseRootArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("parse args: %v", err)
	}
	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	switch cmd {
	case "serve":
		serveMain(root, rest)
	case "gateway":
		gatewayMain(root, rest)
	case "preview":
		previewMain(root, rest)
	case "check":
		checkMain(root, rest)
	case "models":
		modelsMain(root, rest)
	case "history":
		historyMain(root, rest)
	case "features":
		featuresMain(root, rest)
	case "completion":
		completionMain(rest)
	case "version":
		fmt.Println("gpt-relay", version)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		printUsage(os.Stderr)
		log.Fatalf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: gpt-relay [-config path] [-c key=value]... [-enable feature] [-disable feature] <command> [flags]

Commands:
  serve       run the Discord bot (default); -gateway also serves HTTP
  gateway     serve only the HTTP gateway
  preview     relay one prompt into the terminal
  check       verify the Discord token and provider credentials
  models      list the engines offered by /chat
  history     list archived relays; history show <id> prints one
  features    list feature flags
  completion  print a bash or zsh completion script
  version     print the version
`)
}
