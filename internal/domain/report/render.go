package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/hostprep/internal/domain/execution"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Styles decorates the parts of a rendered report. Styles only wrap single
// line segments, so layout is identical with or without them.
type Styles struct {
	Heading    lipgloss.Style
	Applied    lipgloss.Style
	Skipped    lipgloss.Style
	Failed     lipgloss.Style
	WouldApply lipgloss.Style
	Detail     lipgloss.Style
	Notice     lipgloss.Style
}

// PlainStyles returns styles that add no decoration.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Heading: s, Applied: s, Skipped: s, Failed: s, WouldApply: s, Detail: s, Notice: s}
}

// TerminalStyles returns colored styles for r. Color is dropped
// automatically when r's output is not a terminal.
func TerminalStyles(r *lipgloss.Renderer) Styles {
	base := r.NewStyle()
	return Styles{
		Heading:    base.Bold(true),
		Applied:    base.Foreground(lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}),
		Skipped:    base.Foreground(lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}),
		Failed:     base.Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}),
		WouldApply: base.Foreground(lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}),
		Detail:     base.Foreground(lipgloss.AdaptiveColor{Light: "#9ca0b0", Dark: "#a6adc8"}),
		Notice:     base.Foreground(lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}),
	}
}

// Renderer formats run reports.
type Renderer struct {
	styles Styles
}

// NewRenderer creates a Renderer with styles.
func NewRenderer(styles Styles) *Renderer {
	return &Renderer{styles: styles}
}

// Render formats the report without decoration and returns it together
// with the matching exit code. It has no side effects.
func Render(r *execution.RunReport) (string, int) {
	return NewRenderer(PlainStyles()).Render(r)
}

// Render formats the report and returns it with the matching exit code.
func (rn *Renderer) Render(r *execution.RunReport) (string, int) {
	code := ExitCode(r.Status())
	outcomes := r.Outcomes()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", rn.styles.Heading.Render("Plan:"), r.Plan())
	fmt.Fprintf(&b, "%s %s\n", rn.styles.Heading.Render("Run: "), r.RunID())
	if r.DryRun() {
		fmt.Fprintf(&b, "%s %s\n", rn.styles.Heading.Render("Mode:"), "dry run, nothing applied")
	}
	b.WriteString("\n")

	width := 0
	for _, o := range outcomes {
		width = max(width, len(o.StepName))
	}
	for _, o := range outcomes {
		symbol, style := rn.mark(o.Status)
		fmt.Fprintf(&b, "  %s %-*s  %s\n", style.Render(symbol), width, o.StepName, style.Render(Label(string(o.Status))))
		if o.Failed() {
			if detail := failureDetail(o); detail != "" {
				fmt.Fprintf(&b, "      %s\n", rn.styles.Detail.Render(detail))
			}
		}
	}
	if len(outcomes) == 0 {
		fmt.Fprintf(&b, "  %s\n", rn.styles.Detail.Render("no steps ran"))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %s\n", rn.styles.Heading.Render("Summary:"), summaryLine(r.Summary(), r.DryRun()))
	fmt.Fprintf(&b, "%s %s (exit %d)\n", rn.styles.Heading.Render("Status: "), Label(string(r.Status())), code)
	if err := r.Err(); err != nil {
		fmt.Fprintf(&b, "%s %s\n", rn.styles.Heading.Render("Error:  "), err)
	}

	if notice := strings.TrimSpace(r.Notice()); notice != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(notice, "\n") {
			b.WriteString(rn.styles.Notice.Render(line))
			b.WriteString("\n")
		}
	}

	return b.String(), code
}

func (rn *Renderer) mark(status execution.Status) (string, lipgloss.Style) {
	switch status {
	case execution.StatusApplied:
		return "✓", rn.styles.Applied
	case execution.StatusSkipped:
		return "-", rn.styles.Skipped
	case execution.StatusWouldApply:
		return "~", rn.styles.WouldApply
	case execution.StatusFailed:
		return "✗", rn.styles.Failed
	}
	return "?", rn.styles.Failed
}

// Label title-cases a hyphenated status ("partial-failure" -> "Partial Failure").
func Label(status string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(status, "-", " "))
}

func summaryLine(s execution.Summary, dryRun bool) string {
	noun := "steps"
	if s.Total == 1 {
		noun = "step"
	}
	line := fmt.Sprintf("%d %s, %d applied, %d skipped, %d failed", s.Total, noun, s.Applied, s.Skipped, s.Failed)
	if dryRun {
		line += fmt.Sprintf(", %d would apply", s.WouldApply)
	}
	return line
}

// failureDetail explains a failed outcome in one line.
func failureDetail(o execution.StepOutcome) string {
	var parts []string
	switch {
	case o.TimedOut() && errors.Is(o.Err, context.Canceled):
		parts = append(parts, fmt.Sprintf("cancelled (exit code %d)", o.ExitCode()))
	case o.TimedOut():
		parts = append(parts, fmt.Sprintf("timed out (exit code %d)", o.ExitCode()))
	case o.Result != nil && o.Result.ExitCode != 0:
		parts = append(parts, fmt.Sprintf("exit code %d", o.Result.ExitCode))
	case o.Err != nil:
		parts = append(parts, o.Err.Error())
	}
	if o.Result != nil {
		if line := o.Result.FirstStderrLine(); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ": ")
}
