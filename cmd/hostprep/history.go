package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/hostprep/internal/adapters/auditlog"
	"github.com/felixgeelhaar/hostprep/internal/domain/report"
	"github.com/spf13/cobra"
)

type historyOptions struct {
	auditLog string
	runID    string
	limit    int
	json     bool
}

func newHistoryCmd(_ *cli) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show runs recorded in the audit log",
		Long: `History reads the audit log written by provision and lists the recorded
runs, newest last. Pass --run with a run ID (or a unique prefix) to show
the full report of one run.

Only the active log file is read. When the log grows past 10 MiB it is
rotated to audit-<timestamp>.jsonl next to it; point --audit-log at a
rotated file to inspect it. A run whose records straddle a rotation is
listed as interrupted.

Examples:
  hostprep history
  hostprep history --limit 50
  hostprep history --run 3f2a
  hostprep history --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.auditLog, "audit-log", defaultAuditLog(), "audit log to read")
	cmd.Flags().StringVar(&opts.runID, "run", "", "show the report of one run")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output the raw records as JSON")
	return cmd
}

func runHistory(w io.Writer, opts *historyOptions) error {
	records, err := auditlog.ReadRecords(opts.auditLog)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintf(w, "No runs recorded in %s.\n", opts.auditLog)
			return nil
		}
		return err
	}
	runs := auditlog.GroupRuns(records)

	if opts.runID != "" {
		run, err := findRun(runs, opts.runID)
		if err != nil {
			return &usageError{err: err}
		}
		if opts.json {
			return writeJSON(w, append(append([]auditlog.Record(nil), run.Steps...), finishRecords(run)...))
		}
		rep, err := run.Report()
		if err != nil {
			return err
		}
		text, _ := report.Render(rep)
		_, _ = io.WriteString(w, text)
		if !run.Complete {
			_, _ = fmt.Fprintln(w, "\nThe run has no run_finished record: it was interrupted, or its records continue in a rotated log file.")
		}
		return nil
	}

	if opts.limit > 0 && len(runs) > opts.limit {
		runs = runs[len(runs)-opts.limit:]
	}
	if opts.json {
		out := []auditlog.Record{}
		for _, run := range runs {
			out = append(out, run.Steps...)
			out = append(out, finishRecords(run)...)
		}
		return writeJSON(w, out)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintf(w, "No runs recorded in %s.\n", opts.auditLog)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tPLAN\tSTEPS\tSTATUS")
	for _, run := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			shortID(run.RunID), runStarted(run).Local().Format("2006-01-02 15:04:05"), run.Plan, len(run.Steps), runStatus(run))
	}
	return tw.Flush()
}

func findRun(runs []auditlog.Run, id string) (auditlog.Run, error) {
	var matches []auditlog.Run
	for _, run := range runs {
		if run.RunID == id {
			return run, nil
		}
		if strings.HasPrefix(run.RunID, id) {
			matches = append(matches, run)
		}
	}
	switch len(matches) {
	case 0:
		return auditlog.Run{}, fmt.Errorf("no run %q in the audit log", id)
	case 1:
		return matches[0], nil
	}
	return auditlog.Run{}, fmt.Errorf("run prefix %q is ambiguous (%d matches)", id, len(matches))
}

func finishRecords(run auditlog.Run) []auditlog.Record {
	if run.Finish == nil {
		return nil
	}
	return []auditlog.Record{*run.Finish}
}

func runStarted(run auditlog.Run) time.Time {
	if len(run.Steps) > 0 {
		first := run.Steps[0]
		return first.Timestamp.Add(-time.Duration(first.DurationMS) * time.Millisecond)
	}
	if run.Finish != nil {
		return run.Finish.Timestamp
	}
	return time.Time{}
}

func runStatus(run auditlog.Run) string {
	if run.Finish == nil {
		return "interrupted"
	}
	status := run.Finish.Status
	if run.Finish.DryRun {
		status += " (dry run)"
	}
	return status
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
