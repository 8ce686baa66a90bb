package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/cycle"
	"github.com/dgnsrekt/gex-live/internal/export"
	"github.com/dgnsrekt/gex-live/internal/notify"
	"github.com/dgnsrekt/gex-live/internal/report"
)

func fetchCmd() *cobra.Command {
	var (
		o       overrides
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [UNDERLYING...]",
		Short: "Run one fetch cycle and print the GEX report",
		Long: `Connect to the dxLink feed, resolve the spot price, collect Greeks,
open interest and volume for the option chain around spot, and print the
gamma exposure report.

Examples:
  # Fetch the configured underlying
  gex fetch

  # Fetch NDX with 10 strikes each side of spot
  gex fetch NDX --strikes 10

  # Fetch a specific expiration and print JSON
  gex fetch SPY --expiration 251114 --json

  # Fetch several underlyings concurrently (fetch.workers at a time)
  gex fetch SPX NDX SPY`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now := time.Now()

			underlyings := args
			if len(underlyings) == 0 {
				underlyings = []string{cfg.Underlying}
			}

			var reqs []cycle.Request
			for _, u := range underlyings {
				uo := o
				uo.underlying = u
				req, err := buildRequest(cfg, uo, now)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}

			exporter, err := newExporter()
			if err != nil {
				return err
			}
			if exporter != nil {
				defer exporter.Close()
			}

			fetcher := cycle.NewFetcher(newTokenProvider(cfg, logger), nil, logger)
			dst := cycleOutput{
				out:      os.Stdout,
				json:     jsonOut,
				exporter: exporter,
				notifier: notify.New(&cfg.Notify, logger),
			}

			if len(reqs) == 1 {
				_, err = runCycle(ctx, fetcher, reqs[0], dst)
				return err
			}
			return runBatch(ctx, fetcher, reqs, cfg.Fetch.Workers, dst)
		},
	}

	cmd.Flags().StringVar(&o.expiration, "expiration", "", "expiration as YYMMDD (default: nearest trading day)")
	cmd.Flags().IntVar(&o.strikes, "strikes", 0, "strikes above and below spot (overrides config)")
	cmd.Flags().DurationVar(&o.duration, "duration", 0, "collection window, 5s..30s (overrides config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the snapshot as JSON instead of tables")

	return cmd
}

// cycleOutput is where a finished cycle goes. Any field may be nil.
type cycleOutput struct {
	out      io.Writer
	json     bool
	exporter *export.Writer
	notifier notify.Notifier
}

// runCycle runs one cycle and hands the result to deliver.
func runCycle(ctx context.Context, fetcher *cycle.Fetcher, req cycle.Request, dst cycleOutput) (*cycle.Result, error) {
	start := time.Now()

	res, err := fetcher.Run(ctx, req)
	if err != nil {
		notifyFailure(ctx, dst, req.Underlying, time.Since(start), err)
		return nil, err
	}

	return res, deliver(ctx, res, dst)
}

// runBatch runs several cycles concurrently and delivers them in request order.
func runBatch(ctx context.Context, fetcher *cycle.Fetcher, reqs []cycle.Request, workers int, dst cycleOutput) error {
	start := time.Now()
	batch := fetcher.RunBatch(ctx, reqs, workers)

	for _, o := range batch.Outcomes {
		switch {
		case o.Err != nil:
			notifyFailure(ctx, dst, o.Request.Underlying, time.Since(start), o.Err)
		case o.Result != nil:
			if err := deliver(ctx, o.Result, dst); err != nil {
				return err
			}
		}
	}

	logger.Info("batch complete",
		zap.Int("total", batch.Total),
		zap.Int("success", batch.Success),
		zap.Int("failed", batch.Failed),
		zap.Duration("duration", time.Since(start)),
	)

	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d cycles failed: %s", batch.Failed, batch.Total, strings.Join(batch.Errors, "; "))
	}
	return ctx.Err()
}

// deliver hands a result to the report, export and notifier. Export and
// notification failures are logged, not returned.
func deliver(ctx context.Context, res *cycle.Result, dst cycleOutput) error {
	if dst.out != nil {
		if dst.json {
			enc := json.NewEncoder(dst.out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(export.NewSnapshot(res)); err != nil {
				return fmt.Errorf("encoding snapshot: %w", err)
			}
		} else {
			report.Render(dst.out, res)
			fmt.Fprintln(dst.out)
		}
	}

	if dst.exporter != nil {
		path, err := dst.exporter.Write(res)
		if err != nil {
			logger.Error("snapshot export failed", zap.Error(err))
		} else {
			logger.Info("snapshot exported", zap.String("path", path))
		}
	}

	if dst.notifier != nil {
		if err := dst.notifier.SendSuccess(ctx, res); err != nil {
			logger.Warn("success notification not sent", zap.Error(err))
		}
	}

	return nil
}

func notifyFailure(ctx context.Context, dst cycleOutput, underlying string, elapsed time.Duration, err error) {
	if dst.notifier == nil {
		return
	}
	if nerr := dst.notifier.SendFailure(ctx, underlying, elapsed, err); nerr != nil {
		logger.Warn("failure notification not sent", zap.Error(nerr))
	}
}

func newExporter() (*export.Writer, error) {
	if !cfg.Export.Enabled {
		return nil, nil
	}
	w, err := export.NewWriter(cfg.Export.Directory)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}
	return w, nil
}
