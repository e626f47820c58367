package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/felixgeelhaar/hostprep/internal/app"
	"github.com/felixgeelhaar/hostprep/internal/domain/config"
	"github.com/felixgeelhaar/hostprep/internal/domain/step"
	"github.com/spf13/cobra"
)

func newPlanCmd(_ *cli) *cobra.Command {
	var planFile string
	var vars []string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List the steps of a plan without checking or applying them",
		Long: `Plan prints the ordered steps of the plan: name, whether the step is
critical, its timeout override and its description. Nothing is run on
the host.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			parsed, err := config.ParseVars(vars)
			if err != nil {
				return err
			}
			cfg.PlanFile = planFile
			cfg.Vars = parsed

			plan, err := app.LoadPlan(cfg)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "plan file (.yaml, .yml or .toml); default is the built-in node plan")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "plan variable as key=value (repeatable)")
	return cmd
}

func printPlan(w io.Writer, plan *step.Plan) {
	_, _ = fmt.Fprintf(w, "Plan: %s (%d steps)\n\n", plan.Name(), plan.Len())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tSTEP\tCRITICAL\tTIMEOUT\tDESCRIPTION")
	for i, s := range plan.Steps() {
		timeout := "-"
		if s.Timeout > 0 {
			timeout = s.Timeout.String()
		}
		critical := "no"
		if s.Critical {
			critical = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.Name, critical, timeout, s.Description)
	}
	_ = tw.Flush()

	if notice := plan.Notice(); notice != "" {
		_, _ = fmt.Fprintf(w, "\nAfter the run:\n%s\n", notice)
	}
}
