package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/ui"
)

// newEvaluateCmd creates the evaluate command.
func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var queriesPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the labeled query set through the pipeline",
		Long: `Build the index from the knowledge base, run every query through
retrieval, re-ranking, and the gate, and score the decisions against
the labels.

Writes metrics.json and effective_config.json to the results directory.
Only one evaluation or tuning run may hold the results directory at a
time.`,
		Example: `  # Evaluate the default query set
  ragharness evaluate --queries queries.jsonl

  # Evaluate with an alternate config
  ragharness evaluate -c experiments/tau30.yaml --queries queries.jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, opts, queriesPath)
		},
	}

	cmd.Flags().StringVar(&queriesPath, "queries", "", "path to the labeled query file (required)")
	_ = cmd.MarkFlagRequired("queries")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *rootOptions, queriesPath string) error {
	cfg, logger, cleanup, err := opts.load()
	if err != nil {
		return err
	}
	defer cleanup()
	eff := cfg.Effective()

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

	index, pipeline, err := eval.NewPipeline(ctx, eff, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pipeline.Close() }()
	defer func() { _ = index.Close() }()

	result, err := eval.NewHarness(eff, pipeline, logger).Evaluate(ctx, queries)
	if err != nil {
		return err
	}
	if err := eval.WriteArtifacts(eff.Paths.ResultsDir, result, eff); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := ui.NewResultRenderer(out, opts.plain(out)).Render(result); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "\nArtifacts written to %s\n", eff.Paths.ResultsDir)
	return nil
}
