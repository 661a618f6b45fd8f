package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"storyflow/internal/api"
	"storyflow/internal/lifecycle"
)

func newStatusCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [story-id...]",
		Short: "Show computed stage status",
		Long: `Show the computed status of every stage of the given stories.
Without arguments, prints a one-line summary for every story in the stories file.

Example:
  storyflow status
  storyflow status S-101 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Projector()
			if err != nil {
				return fail(app, err)
			}

			detailed := len(args) > 0
			ids := args
			if !detailed {
				ids, err = app.Snapshots().List()
				if err != nil {
					return fail(app, err)
				}
			}

			projs := make([]lifecycle.Projection, 0, len(ids))
			for _, id := range ids {
				proj, err := p.Project(cmd.Context(), id)
				if err != nil {
					return fail(app, err)
				}
				projs = append(projs, proj)
			}

			if asJSON {
				out := make([]api.StoryResponse, len(projs))
				for i, proj := range projs {
					out[i] = api.NewStoryResponse(proj, detailed)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			if !detailed {
				app.Printer.Summary(projs)
				return nil
			}
			for _, proj := range projs {
				app.Printer.Projection(proj)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}
