package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storyflow/internal/engine"
	"storyflow/internal/eventlog"
)

func newEventsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and import stage events",
	}
	cmd.AddCommand(newEventsListCommand(app), newEventsImportCommand(app))
	return cmd
}

func newEventsListCommand(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list [story-id]",
		Short: "List a story's recent events, or the stories that have events",
		Long: `List a story's most recent events, oldest first.

Without a story id, list every story that has at least one stored event.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.Events()
			if err != nil {
				return fail(app, err)
			}

			if len(args) == 0 {
				ids, err := repo.Stories(cmd.Context())
				if err != nil {
					return fail(app, err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Stories with events (%d)\n", len(ids))
				for _, id := range ids {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			}

			events, err := repo.ListByStory(cmd.Context(), args[0], limit)
			if err != nil {
				return fail(app, err)
			}
			app.Printer.Events(args[0], events)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "most recent events to show (0 for all)")
	return cmd
}

func newEventsImportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import events from a JSON-lines file",
		Long: `Import stage events from a JSON-lines file, one event per line:

  {"id":"e1","story_id":"S-101","stage":"implement","kind":"failed","detail":"lint errors","created_at":"2026-03-01T12:00:00Z"}

Malformed and oversized lines are skipped and counted. A read error aborts
the import before anything is stored. Events whose id is already stored are ignored,
so a file can be imported more than once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.Events()
			if err != nil {
				return fail(app, err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fail(app, fmt.Errorf("failed to open event log: %w", err))
			}
			defer f.Close()

			parser := eventlog.NewParser()
			byStory := make(map[string][]engine.Event)
			var order []string
			for entry := range parser.Parse(f) {
				if _, ok := byStory[entry.StoryID]; !ok {
					order = append(order, entry.StoryID)
				}
				byStory[entry.StoryID] = append(byStory[entry.StoryID], entry.Event)
			}
			if err := parser.Err(); err != nil {
				return fail(app, err)
			}

			total := 0
			for _, id := range order {
				n, err := repo.AppendBatch(cmd.Context(), id, byStory[id])
				if err != nil {
					return fail(app, err)
				}
				total += n
			}

			app.Logger.Info("events imported",
				zap.String("file", args[0]),
				zap.Int("imported", total),
				zap.Int("skipped", parser.Skipped))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events for %d stories (%d lines skipped)\n",
				total, len(order), parser.Skipped)
			return nil
		},
	}
}
