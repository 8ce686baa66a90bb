package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/cycle"
	"github.com/dgnsrekt/gex-live/internal/instrumentation"
	"github.com/dgnsrekt/gex-live/internal/notify"
	"github.com/dgnsrekt/gex-live/internal/option"
)

func watchCmd() *cobra.Command {
	var (
		o        overrides
		interval time.Duration
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "watch [UNDERLYING]",
		Short: "Run fetch cycles on an interval",
		Long: `Run fetch cycles back to back, waiting the watch interval between the
end of one cycle and the start of the next. A failed cycle is logged and
reported; the last good result stays available on /healthz.

Examples:
  # Watch the configured underlying every minute
  gex watch

  # Watch SPX every 30 seconds and serve metrics on :9090
  GEX_METRICS_ADDR=:9090 gex watch SPX --interval 30s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(args) == 1 {
				o.underlying = args[0]
			}
			if interval <= 0 {
				interval = cfg.Watch.Interval
			}

			exporter, err := newExporter()
			if err != nil {
				return err
			}
			if exporter != nil {
				defer exporter.Close()
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := instrumentation.NewMetrics(reg)

			fetcher := cycle.NewFetcher(newTokenProvider(cfg, logger), metrics, logger)

			if cfg.Metrics.Addr != "" {
				srv := &http.Server{
					Addr:         cfg.Metrics.Addr,
					Handler:      newMetricsRouter(reg, fetcher, logger),
					ReadTimeout:  30 * time.Second,
					WriteTimeout: 30 * time.Second,
				}
				go func() {
					logger.Info("starting metrics server", zap.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			var out io.Writer = os.Stdout
			if quiet {
				out = nil
			}

			w := &watcher{
				fetcher:        fetcher,
				interval:       interval,
				marketDaysOnly: cfg.Watch.MarketDaysOnly,
				request: func(now time.Time) (cycle.Request, error) {
					return buildRequest(cfg, o, now)
				},
				output: cycleOutput{
					out:      out,
					exporter: exporter,
					notifier: notify.New(&cfg.Notify, logger),
				},
				logger: logger,
			}
			w.run(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.expiration, "expiration", "", "expiration as YYMMDD (default: nearest trading day, re-evaluated each cycle)")
	cmd.Flags().IntVar(&o.strikes, "strikes", 0, "strikes above and below spot (overrides config)")
	cmd.Flags().DurationVar(&o.duration, "duration", 0, "collection window, 5s..30s (overrides config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between cycles (overrides config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print reports")

	return cmd
}

// watcher runs cycles until its context is cancelled.
type watcher struct {
	fetcher        *cycle.Fetcher
	interval       time.Duration
	marketDaysOnly bool
	request        func(now time.Time) (cycle.Request, error)
	output         cycleOutput
	logger         *zap.Logger
	now            func() time.Time
}

func (w *watcher) run(ctx context.Context) {
	if w.now == nil {
		w.now = time.Now
	}

	w.logger.Info("watch started", zap.Duration("interval", w.interval), zap.Bool("marketDaysOnly", w.marketDaysOnly))

	for {
		w.tick(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("context cancelled, shutting down")
			return
		case <-time.After(w.interval):
		}
	}
}

// tick runs at most one cycle and reports whether it ran.
func (w *watcher) tick(ctx context.Context) bool {
	now := w.now()

	if w.marketDaysOnly && !option.IsMarketDay(now) {
		w.logger.Debug("not a market day", zap.String("date", now.Format("2006-01-02")))
		return false
	}

	req, err := w.request(now)
	if err != nil {
		w.logger.Error("invalid cycle request", zap.Error(err))
		return false
	}

	if _, err := runCycle(ctx, w.fetcher, req, w.output); err != nil && ctx.Err() == nil {
		w.logger.Warn("cycle failed, keeping last result", zap.Error(err))
	}
	return true
}

type healthResponse struct {
	Status     string    `json:"status"`
	LastCycle  string    `json:"last_cycle,omitempty"`
	Underlying string    `json:"underlying,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Spot       float64   `json:"spot,omitempty"`
	NetGEX     float64   `json:"net_gex,omitempty"`
	ZeroGamma  *float64  `json:"zero_gamma,omitempty"`
}

func newMetricsRouter(reg *prometheus.Registry, fetcher *cycle.Fetcher, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "waiting"}
		if res := fetcher.Latest(); res != nil {
			resp = healthResponse{
				Status:     "ok",
				LastCycle:  res.ID,
				Underlying: res.Underlying,
				FinishedAt: res.FinishedAt,
				Spot:       res.Spot.Value,
				NetGEX:     res.Metrics.NetGEX,
				ZeroGamma:  res.Metrics.ZeroGamma,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("writing health response", zap.Error(err))
		}
	})

	return r
}
