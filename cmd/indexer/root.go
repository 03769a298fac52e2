package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/logger"
)

// app carries what every subcommand needs after flag parsing.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	// logOut is where structured logs go; stdout is reserved for results.
	logOut io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{logOut: os.Stderr}
	cmd := &cobra.Command{
		Use:           "indexer",
		Short:         "Concurrent file indexer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json (default: text on a terminal)")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newLoadtestCmd())
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat(a.logOut)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	slog.SetDefault(logger.New(a.logOut, cfg.Logging.Level, cfg.Logging.Format))
	return nil
}

// defaultLogFormat picks text for an interactive terminal and JSON otherwise.
func defaultLogFormat(w io.Writer) string {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "json"
}
