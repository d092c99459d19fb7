package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/preflight"
	"github.com/open-access-policies/policy-crew/internal/ui"
)

// newSmoketestCmd creates the smoketest command.
func newSmoketestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "smoketest",
		Short: "Run one canned query through the full pipeline",
		Long: `Exercise load, chunk, embed, index, retrieve, and gate with offline
stand-ins (static embedder, in-memory index, lexical reranker) and a
built-in sample document when the knowledge base is empty.

Writes smoketest.json to the results directory. Use this to prove the
pipeline is wired before spending time on a full evaluation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSmoketest(cmd, opts)
		},
	}
}

func runSmoketest(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, cleanup, err := opts.load()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := preflight.Smoketest(ctx, cfg.Effective(), logger)
	if report != nil {
		out := cmd.OutOrStdout()
		if err := ui.NewPreflightRenderer(out, opts.plain(out)).RenderSmoke(report); err != nil {
			return err
		}
	}
	return runErr
}
