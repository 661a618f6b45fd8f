package cli

import (
	"github.com/spf13/cobra"

	"storyflow/internal/lifecycle"
)

func newActCommand(app *App) *cobra.Command {
	var actor, detail string

	cmd := &cobra.Command{
		Use:   "act <story-id> <stage> <action>",
		Short: "Dispatch an operator action",
		Long: `Dispatch an operator action against a stage. The action is recorded as a
stage event or applied to the story snapshot; run status again to see its effect.

Actions: approve-triage, reject-triage, defer-triage, start-deliberation,
start-implementation, merge-pr, request-changes, approve-deploy,
retry-step, skip-step, cancel-step

Example:
  storyflow act S-101 implement retry-step
  storyflow act S-101 review merge-pr --actor alice`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := app.Dispatcher()
			if err != nil {
				return fail(app, err)
			}

			res, err := d.Dispatch(cmd.Context(), lifecycle.Request{
				StoryID: args[0],
				Stage:   args[1],
				Action:  args[2],
				Actor:   actor,
				Detail:  detail,
			})
			if err != nil {
				return fail(app, err)
			}

			app.Printer.ActionResult(args[0], res)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "actor recorded on the event (default \"operator\")")
	cmd.Flags().StringVar(&detail, "detail", "", "detail recorded on the event")
	return cmd
}
