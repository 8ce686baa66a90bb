package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/gex-live/internal/config"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

// newLogger builds the CLI logger. Verbose runs log at debug level in the
// console format; otherwise the configured level applies to JSON output.
// Output goes to stderr, plus a per-run file named after the command when
// file logging is enabled.
func newLogger(verbose bool, logCfg *config.LoggingConfig, command string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.DisableStacktrace = true
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch {
	case verbose:
		zapConfig = zap.NewDevelopmentConfig()
	case logCfg != nil && logCfg.Level != "":
		level, err := zapcore.ParseLevel(logCfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	zapConfig.OutputPaths = []string{"stderr"}
	if logCfg != nil && logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("creating logs directory: %w", err)
		}
		name := fmt.Sprintf("gex-%s_%s.log", command, time.Now().Format("2006-01-02_15-04-05"))
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, filepath.Join(logCfg.Directory, name))
	}

	return zapConfig.Build()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gex",
		Short:        "Live gamma exposure from the dxLink options feed",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				logger, err = newLogger(verbose, nil, cmd.Name())
				return err
			}

			if cfg, err = config.Load(cfgFile); err != nil {
				return err
			}
			logger, err = newLogger(verbose, &cfg.Logging, cmd.Name())
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("GEX_CONFIG"), "config file path (or set GEX_CONFIG)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(fetchCmd(), watchCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
