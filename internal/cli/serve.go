package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storyflow/internal/api"
	"storyflow/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run the refresh loop",
		Long: `Serve computed stage views and operator actions over HTTP, expose
Prometheus metrics on /metrics, and run the refresh loop in the background.

Example:
  storyflow serve --addr :8088`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = app.Config.Server.ListenAddr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			rec := metrics.NewRecorder(reg)

			sched, err := app.Scheduler(nil, rec)
			if err != nil {
				return fail(app, err)
			}
			projector, err := app.Projector()
			if err != nil {
				return fail(app, err)
			}
			dispatcher, err := app.Dispatcher()
			if err != nil {
				return fail(app, err)
			}

			srv := api.NewServer(projector, dispatcher, app.Snapshots())
			srv.SetMetrics(reg, rec)
			srv.SetLogger(app.Logger)
			httpSrv := srv.HTTPServer(addr)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return sched.Run(ctx)
			})
			g.Go(func() error {
				app.Logger.Info("api listening",
					zap.String("addr", addr),
					zap.Duration("refresh_interval", sched.Interval()))
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return fail(app, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.listen_addr)")
	return cmd
}
