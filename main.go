package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type options struct {
	configPath    string
	selectorsPath string
	logLevel      string
	chromePath    string
	now           bool
	dryRun        bool
}

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "tiktok-automessage",
		Short:         "Send a daily direct message to a list of TikTok users",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), opts)
			if err != nil {
				Logf("critical", "%v", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", envOr("TIKTOK_BOT_CONFIG", "config.json"), "Path to configuration file")
	flags.StringVar(&opts.selectorsPath, "selectors", os.Getenv("TIKTOK_BOT_SELECTORS"), "Optional YAML file overriding page selectors")
	flags.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.chromePath, "chrome-path", os.Getenv("CHROME_PATH"), "Path to the Chrome/Chromium executable")
	flags.BoolVar(&opts.now, "now", false, "Run once immediately instead of waiting for the scheduled time")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Find conversations but do not send messages")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	Logf("info", "Loading configuration from %s", opts.configPath)
	config, err := LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := InitLogger(config.LogFilePath, opts.logLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer CloseLogger()

	selectors, err := LoadSelectors(opts.selectorsPath)
	if err != nil {
		return err
	}

	execPath, err := ResolveBrowserPath(opts.chromePath)
	if err != nil {
		return err
	}
	if execPath != "" {
		Logf("info", "Using browser executable: %s", execPath)
	}

	bot, err := NewBot(config, selectors, NewChromeLauncher(config, execPath))
	if err != nil {
		return err
	}
	bot.dryRun = opts.dryRun

	Log("info", "TikTok Automation started")

	if config.TestMode || opts.now {
		Log("info", "Immediate mode: running the bot once.")
		if _, err := bot.Run(ctx); err != nil {
			if errors.Is(err, ErrIncompatibleArch) {
				return err
			}
			Logf("error", "Bot run failed: %v", err)
		}
		Log("info", "TikTok Automation completed")
		return nil
	}

	scheduler, err := NewScheduler(config.TargetTime, func(ctx context.Context) error {
		_, err := bot.Run(ctx)
		return err
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return scheduler.Loop(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
