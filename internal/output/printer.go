// Package output renders stage views and related results for the terminal.
//
// Styling goes through a lipgloss renderer bound to the destination writer,
// so colors are dropped automatically when the writer is not a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"storyflow/internal/engine"
	"storyflow/internal/lifecycle"
	"storyflow/internal/notify"
	"storyflow/internal/pipeline"
	"storyflow/internal/status"
)

// Options toggles optional sections.
type Options struct {
	ShowActions  bool
	ShowSubsteps bool
}

// Printer writes human-readable output.
type Printer struct {
	out  io.Writer
	r    *lipgloss.Renderer
	opts Options

	header  lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
	actions lipgloss.Style
	styles  map[status.Status]lipgloss.Style
}

// NewPrinter creates a [Printer] writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a [Printer] writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		out:     w,
		r:       r,
		opts:    Options{ShowActions: true, ShowSubsteps: true},
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		bold:    r.NewStyle().Bold(true),
		actions: r.NewStyle().Foreground(lipgloss.Color("14")),
		styles: map[status.Status]lipgloss.Style{
			status.StatusPending:          r.NewStyle().Foreground(lipgloss.Color("8")),
			status.StatusActive:           r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
			status.StatusPassed:           r.NewStyle().Foreground(lipgloss.Color("10")),
			status.StatusFailed:           r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			status.StatusSkipped:          r.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
			status.StatusAwaitingApproval: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
			status.StatusTimedOut:         r.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		},
	}
}

// SetOptions replaces the section toggles.
func (p *Printer) SetOptions(o Options) {
	p.opts = o
}

var icons = map[status.Status]string{
	status.StatusPending:          "○",
	status.StatusActive:           "●",
	status.StatusPassed:           "✓",
	status.StatusFailed:           "✗",
	status.StatusSkipped:          "»",
	status.StatusAwaitingApproval: "?",
	status.StatusTimedOut:         "!",
}

// Icon returns the one-character marker for a status.
func Icon(st status.Status) string {
	if i, ok := icons[st]; ok {
		return i
	}
	return " "
}

func (p *Printer) styled(st status.Status, s string) string {
	if style, ok := p.styles[st]; ok {
		return style.Render(s)
	}
	return s
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Projection prints one story's stages.
func (p *Printer) Projection(proj lifecycle.Projection) {
	pr := proj.Progress
	p.printf("%s  %s\n",
		p.header.Render("Story "+proj.StoryID),
		p.muted.Render(fmt.Sprintf("template %s · %d%% complete · %s",
			proj.Template, pr.Percent(), proj.ComputedAt.Format(time.RFC3339))))
	p.printf("%s\n", p.muted.Render(strings.Repeat("─", 60)))

	for _, v := range proj.Views {
		p.stage(v)
	}

	p.printf("%s\n", p.muted.Render(strings.Repeat("─", 60)))
	p.printf("%s\n", ProgressLine(pr))
}

func (p *Printer) stage(v engine.StageView) {
	line := fmt.Sprintf("%s %-13s %-18s", Icon(v.Status), v.Label, v.Status)
	p.printf("  %s", p.styled(v.Status, line))
	if v.Detail != "" {
		p.printf(" %s", v.Detail)
	}
	if v.Status.IsRunning() && !v.StartedAt.IsZero() {
		timing := FormatDuration(v.Elapsed)
		if v.Timeout > 0 {
			timing += " / " + FormatDuration(v.Timeout)
		}
		p.printf(" %s", p.muted.Render("("+timing+")"))
	}
	p.printf("\n")

	if p.opts.ShowSubsteps {
		for _, s := range v.Substeps {
			p.printf("      %s\n", p.styled(s.Status, Icon(s.Status)+" "+s.Label))
		}
	}
	if p.opts.ShowActions && len(v.Actions) > 0 {
		ids := make([]string, len(v.Actions))
		for i, a := range v.Actions {
			ids[i] = string(a.ID)
		}
		p.printf("      %s %s\n", p.muted.Render("actions:"), p.actions.Render(strings.Join(ids, ", ")))
	}
}

// ProgressLine summarizes a rollup in one line.
func ProgressLine(pr engine.Progress) string {
	parts := []string{
		fmt.Sprintf("%d/%d settled", pr.Passed+pr.Skipped, pr.Total),
	}
	if pr.Active > 0 {
		parts = append(parts, fmt.Sprintf("%d active", pr.Active))
	}
	if pr.TimedOut > 0 {
		parts = append(parts, fmt.Sprintf("%d timed out", pr.TimedOut))
	}
	if pr.Awaiting > 0 {
		parts = append(parts, fmt.Sprintf("%d awaiting approval", pr.Awaiting))
	}
	if pr.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", pr.Failed))
	}
	switch {
	case pr.Complete():
		parts = append(parts, "complete")
	case pr.Current != "":
		parts = append(parts, "current: "+string(pr.Current))
	}
	return strings.Join(parts, " · ")
}

// Summary prints one line per story.
func (p *Printer) Summary(projs []lifecycle.Projection) {
	if len(projs) == 0 {
		p.printf("%s\n", p.muted.Render("No stories."))
		return
	}
	for _, proj := range projs {
		st := status.StatusPending
		switch {
		case proj.Progress.Complete():
			st = status.StatusPassed
		case proj.Progress.Failed > 0:
			st = status.StatusFailed
		case proj.Progress.TimedOut > 0:
			st = status.StatusTimedOut
		case proj.Progress.Awaiting > 0:
			st = status.StatusAwaitingApproval
		case proj.Progress.Active > 0:
			st = status.StatusActive
		}
		p.printf("%s %-20s %3d%%  %s\n",
			p.styled(st, Icon(st)),
			proj.StoryID,
			proj.Progress.Percent(),
			p.muted.Render(ProgressLine(proj.Progress)))
	}
}

// Transition prints a stage status change.
func (p *Printer) Transition(t notify.Transition) {
	p.printf("%s %s %s: %s → %s\n",
		p.muted.Render(t.At.Format("15:04:05")),
		p.bold.Render(t.StoryID),
		t.Label,
		p.styled(t.From, string(t.From)),
		p.styled(t.To, string(t.To)))
}

// Events prints an event log oldest first.
func (p *Printer) Events(storyID string, events []engine.Event) {
	p.printf("%s\n", p.header.Render(fmt.Sprintf("Events for %s (%d)", storyID, len(events))))
	for _, ev := range events {
		p.printf("  %s  %-13s %-10s %s",
			p.muted.Render(ev.CreatedAt.UTC().Format(time.RFC3339)),
			ev.StageID, ev.Kind, engine.DetailText(ev.Detail))
		if ev.Actor != "" {
			p.printf(" %s", p.muted.Render("by "+ev.Actor))
		}
		p.printf("\n")
	}
}

// Templates prints every template of a catalog with its stages.
func (p *Printer) Templates(c *pipeline.Catalog) {
	for _, name := range c.Templates() {
		stages := c.Template(name)
		ids := make([]string, len(stages))
		for i, s := range stages {
			ids[i] = string(s.ID)
		}
		p.printf("%s %s\n", p.bold.Render(fmt.Sprintf("%-12s", name)), strings.Join(ids, " → "))
	}
}

// Stages prints the catalog's stages with actor and timeout.
func (p *Printer) Stages(c *pipeline.Catalog) {
	for _, s := range c.Stages() {
		timeout := "none"
		if s.Timeout > 0 {
			timeout = FormatDuration(s.Timeout)
		}
		p.printf("  %-13s %-7s timeout %s\n", s.ID, s.Actor, timeout)
	}
}

// ActionResult prints a dispatched action.
func (p *Printer) ActionResult(storyID string, res lifecycle.Result) {
	m := res.Mutation
	p.printf("%s %s on %s/%s (%s)\n",
		p.styled(status.StatusPassed, "✓"), m.Action, storyID, m.Stage, m.Kind)
	if res.Event != nil {
		p.printf("  %s\n", p.muted.Render("event "+res.Event.ID))
	}
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	p.printf("%s %v\n", p.styled(status.StatusFailed, "✗"), err)
}

// FormatDuration renders d compactly, rounded to seconds.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh%02dm", h, m)
}
