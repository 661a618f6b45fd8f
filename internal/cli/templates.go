package cli

import (
	"github.com/spf13/cobra"
)

func newTemplatesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List pipeline templates and stages",
		Long: `List every pipeline template, including templates from
pipeline.manifest_path, followed by each stage's actor and timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Catalog()
			if err != nil {
				return fail(app, err)
			}
			app.Printer.Templates(c)
			app.Printer.Stages(c)
			return nil
		},
	}
}
