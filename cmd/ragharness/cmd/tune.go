package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/tune"
	"github.com/open-access-policies/policy-crew/internal/ui"
)

// newTuneCmd creates the tune command.
func newTuneCmd(opts *rootOptions) *cobra.Command {
	var (
		queriesPath string
		budget      int
	)

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Search chunking and gate parameters",
		Long: `Run the two-phase parameter search: Phase A explores chunking and
retrieval settings for recall, Phase B explores gate thresholds for F1
on the Phase A winner.

Writes tuning_report.json, params.json, and effective_config.yaml to
the results directory. Interrupting the run keeps the completed trials
and marks the report partial.`,
		Example: `  # Tune with the configured trial budget
  ragharness tune --queries queries.jsonl

  # Cap the search at 20 trials
  ragharness tune --queries queries.jsonl --budget 20`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTune(cmd, opts, queriesPath, budget)
		},
	}

	cmd.Flags().StringVar(&queriesPath, "queries", "", "path to the labeled query file (required)")
	cmd.Flags().IntVar(&budget, "budget", 0, "total trial budget across both phases (overrides config)")
	_ = cmd.MarkFlagRequired("queries")

	return cmd
}

func runTune(cmd *cobra.Command, opts *rootOptions, queriesPath string, budget int) error {
	cfg, logger, cleanup, err := opts.load()
	if err != nil {
		return err
	}
	defer cleanup()
	eff := cfg.Effective()
	if cmd.Flags().Changed("budget") {
		eff.Tuning.BudgetTrials = budget
	}

	queries, err := eval.LoadQueries(queriesPath)
	if err != nil {
		return err
	}

	lock, err := eval.AcquireRunLock(eff.Paths.ResultsDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := tune.New(eff, nil, logger).Run(ctx, queries, eff.Paths.ResultsDir)
	if report != nil {
		out := cmd.OutOrStdout()
		if err := ui.NewTuneRenderer(out, opts.plain(out)).Render(report); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "\nArtifacts written to %s\n", eff.Paths.ResultsDir)
	}
	return runErr
}
