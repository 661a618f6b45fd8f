package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storyflow/internal/refresh"
)

func newWatchCommand(app *App) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch [story-id...]",
		Short: "Refresh stage status on a fixed cadence",
		Long: `Recompute stage status every refresh.interval (default 15s) and print
stage transitions as they are observed. Transitions into the configured
notify.statuses are also posted to notify.webhook_url when set.

Example:
  storyflow watch
  storyflow watch S-101 S-102`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := app.Scheduler(args, nil)
			if err != nil {
				return fail(app, err)
			}

			first := true
			sched.OnRefresh(func(r refresh.Report) {
				if first {
					app.Printer.Summary(sched.All())
					first = false
				}
				for _, t := range r.Transitions {
					app.Printer.Transition(t)
				}
			})

			if once {
				if _, err := sched.RunOnce(cmd.Context()); err != nil {
					return fail(app, err)
				}
				sched.Wait()
				return nil
			}
			app.Logger.Info("watching stories",
				zap.Strings("stories", args),
				zap.Duration("interval", sched.Interval()))
			return sched.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "refresh once and exit")
	return cmd
}
