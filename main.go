package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/chatdeck/internal/config"
	"github.com/briangreenhill/chatdeck/internal/dashboard"
	"github.com/briangreenhill/chatdeck/internal/loader"
	"github.com/briangreenhill/chatdeck/internal/platform"
)

const version = "v0.1.0"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := runCLI(context.Background(), os.Args[1:], os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("chatdeck")
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: chatdeck [command]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  overview            Print every dashboard section (default)")
	fmt.Fprintln(out, "  section <name>      Print one section")
	fmt.Fprintln(out, "  sections            List section names")
	fmt.Fprintln(out, "  help, -h            Show this help message")
	fmt.Fprintln(out, "  version, -v         Print the version")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  CHATDECK_TOKEN      Platform access token (required)")
	fmt.Fprintln(out, "  PLATFORM_API_URL    Platform API base URL (optional)")
}

func runCLI(ctx context.Context, args []string, out io.Writer, logger zerolog.Logger) error {
	cmd := "overview"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "help", "--help", "-h":
		usage(out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintf(out, "chatdeck %s\n", version)
		return nil
	case "sections":
		for _, name := range dashboard.DefaultRegistry().List() {
			fmt.Fprintln(out, name)
		}
		return nil
	case "overview", "section":
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}

	svc, user, err := setupService(logger)
	if err != nil {
		return err
	}
	defer svc.Forget(user.ID)

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if cmd == "section" {
		if len(args) < 2 {
			return errors.New("section name required, see 'chatdeck sections'")
		}
		data, err := svc.Section(ctx, user, args[1])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[1], err)
		}
		return printJSON(out, data)
	}

	ov, err := svc.Overview(ctx, user)
	if err != nil {
		return err
	}
	if failed := ov.Failed(); len(failed) > 0 {
		logger.Warn().Strs("sections", failed).Msg("some sections failed to load")
	}
	return printJSON(out, ov)
}

// setupService wires a single-user dashboard from the environment
func setupService(logger zerolog.Logger) (*dashboard.Service, dashboard.User, error) {
	token := os.Getenv("CHATDECK_TOKEN")
	if token == "" {
		return nil, dashboard.User{}, errors.New("CHATDECK_TOKEN is not set")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, dashboard.User{}, err
	}
	logger = logger.Level(cfg.Level())

	loaders := dashboard.NewLoaders(cfg.Loader.IdleTimeout, func() *loader.Loader {
		return loader.New(
			loader.WithTTL(cfg.Loader.TTL),
			loader.WithBatchConcurrency(cfg.Loader.BatchConcurrency),
			loader.WithLogger(logger),
		)
	})

	svc := dashboard.NewService(dashboard.Options{
		Loaders: loaders,
		Clients: func(tokens oauth2.TokenSource) (*platform.Client, error) {
			return platform.New(tokens, platform.WithBaseURL(cfg.PlatformAPIURL))
		},
		Logger: logger,
	})
	user := dashboard.User{ID: "cli", Token: &oauth2.Token{AccessToken: token, TokenType: "Bearer"}}
	return svc, user, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
