package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamagate/internal/config"
	"llamagate/internal/gateway"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root := buildRootCmd(os.LookupEnv, run)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "llamagate:", err)
		stop()
		os.Exit(1)
	}
}

// runFunc starts the gateway; swapped out in tests.
type runFunc func(ctx context.Context, cfg config.Config, log zerolog.Logger) error

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	g, err := gateway.New(cfg, log)
	if err != nil {
		return err
	}
	return g.Run(ctx)
}

// buildRootCmd constructs the command tree. Precedence for every setting:
// defaults < --config file < environment < flags.
func buildRootCmd(lookup config.LookupFunc, runner runFunc) *cobra.Command {
	var (
		cfgPath  string
		port     int
		model    string
		logLevel string
	)
	root := &cobra.Command{
		Use:           "llamagate",
		Short:         "Supervise llama-server and proxy OpenAI-compatible /v1 calls to it",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, lookup, cfgPath, port, model, logLevel)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log, os.Stderr)
			log.Info().Str("version", version).Int("port", cfg.Gateway.Port).Msg("llamagate starting")
			return runner(cmd.Context(), cfg, log)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "Path to a YAML, JSON or TOML config file")
	root.Flags().IntVar(&port, "port", 0, "Gateway listen port (defaults PORT or 5000)")
	root.Flags().StringVar(&model, "model", "", "Hugging Face model repo (defaults MODEL_NAME)")
	root.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults LOG_LEVEL or info)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func resolveConfig(cmd *cobra.Command, lookup config.LookupFunc, path string, port int, model, level string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Gateway.Port = port
	}
	if cmd.Flags().Changed("model") {
		cfg.Llama.Model = model
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = level
	}
	return cfg, cfg.Validate()
}

// newLogger builds the root zerolog logger: JSON by default, console when
// format is "console".
func newLogger(lc config.LogConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(lc.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(lc.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "llamagate").Logger()
}
