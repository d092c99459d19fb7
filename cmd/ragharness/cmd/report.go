package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/report"
	"github.com/open-access-policies/policy-crew/internal/ui"
)

// newReportCmd creates the report command.
func newReportCmd(opts *rootOptions) *cobra.Command {
	var resultsDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the latest run as Markdown",
		Long: `Read metrics.json and the optional config and tuning artifacts from
the results directory, render them as a Markdown report, and write
report.md next to them. The report is also echoed to stdout.

With --results the report is built from that directory alone, so runs
archived elsewhere render without a local config file.`,
		Example: `  # Report on the configured results directory
  ragharness report

  # Report on an archived run
  ragharness report --results runs/2026-08-21`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, opts, resultsDir)
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results", "", "results directory to render (defaults to paths.results_dir)")

	return cmd
}

func runReport(cmd *cobra.Command, opts *rootOptions, resultsDir string) error {
	var fallback *config.Config
	if resultsDir == "" {
		cfg, _, cleanup, err := opts.load()
		if err != nil {
			return err
		}
		defer cleanup()
		eff := cfg.Effective()
		resultsDir = eff.Paths.ResultsDir
		fallback = eff
	}

	data, err := report.Load(resultsDir)
	if err != nil {
		return err
	}
	if data.Config == nil {
		// An older run may predate the effective-config artifact; fall
		// back to the currently configured settings. Foreign results
		// directories have no fallback and the report notes the gap.
		data.Config = fallback
	}

	markdown, err := report.Render(data)
	if err != nil {
		return err
	}
	if err := report.Write(resultsDir, markdown); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ui.ShouldColor(out, opts.noColor) {
		_, _ = fmt.Fprint(out, ui.StyleMarkdown(ui.GetStyles(false), markdown))
	} else {
		_, _ = fmt.Fprint(out, markdown)
	}
	_, _ = fmt.Fprintf(out, "\nReport written to %s\n", report.ReportFileName)
	return nil
}
