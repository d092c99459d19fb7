package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/ui"
)

// newQueryCmd creates the query command.
func newQueryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Run one ad-hoc query through the pipeline",
		Long: `Build the index, run a single query through retrieval, re-ranking,
and the gate, and print the decision with its diagnostics and the kept
chunks. Nothing is written to the results directory.`,
		Example: `  ragharness query "what is the data retention schedule"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}
}

func runQuery(cmd *cobra.Command, opts *rootOptions, text string) error {
	cfg, logger, cleanup, err := opts.load()
	if err != nil {
		return err
	}
	defer cleanup()
	eff := cfg.Effective()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, pipeline, err := eval.NewPipeline(ctx, eff, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pipeline.Close() }()
	defer func() { _ = index.Close() }()

	row, decision, err := eval.NewHarness(eff, pipeline, logger).Ask(ctx, text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return ui.NewQueryRenderer(out, opts.plain(out)).Render(row, decision)
}
