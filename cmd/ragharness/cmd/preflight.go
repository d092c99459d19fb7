package cmd

import (
	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/preflight"
	"github.com/open-access-policies/policy-crew/internal/ui"
)

// newPreflightCmd creates the preflight command.
func newPreflightCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the environment before a run",
		Long: `Validate the configuration, directories, services, and system limits,
and write preflight.json to the results directory.

Exits non-zero when a required check fails. Service checks are skipped
for offline backends, so a static-embedder config passes without any
services running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPreflight(cmd, opts)
		},
	}
}

func runPreflight(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	renderer := ui.NewPreflightRenderer(out, opts.plain(out))

	cfg, logger, cleanup, err := opts.load()
	if err != nil {
		// An unloadable config still leaves a preflight artifact behind,
		// in the default results directory.
		report := preflight.ConfigFailure(err)
		_ = preflight.WriteReport(config.NewConfig().Paths.ResultsDir, report)
		_ = renderer.Render(report)
		return err
	}
	defer cleanup()

	report, err := preflight.NewRunner(cfg.Effective(), logger).Run(cmd.Context())
	if err != nil {
		return err
	}
	if err := renderer.Render(report); err != nil {
		return err
	}

	if report.RequiredFailed() {
		return preflightError(report)
	}
	return nil
}

// preflightError names the first failed required check with the code
// matching its concern.
func preflightError(report *preflight.Report) error {
	for _, check := range report.Checks {
		if !check.Critical() {
			continue
		}
		code := herrors.ErrCodeInvalidInput
		switch check.Name {
		case "config":
			code = herrors.ErrCodeConfigValidation
		case "embedding_service":
			code = herrors.ErrCodeEmbeddingService
		case "reranker_service":
			code = herrors.ErrCodeRerankerService
		}
		return herrors.Newf(code, "preflight failed: %s: %s", check.Name, check.Message).
			WithSuggestion("Fix the failed checks and rerun 'ragharness preflight'")
	}
	return herrors.Newf(herrors.ErrCodeInternal, "preflight failed")
}
