package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/configs"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write the annotated starter configuration to rag.yaml (or --output).

The generated file carries the harness defaults for every section.
Point paths.kb_dir at your markdown knowledge base, then run
'ragharness preflight' to verify the environment.`,
		Example: `  # Write rag.yaml in the current directory
  ragharness init

  # Write somewhere else, replacing an existing file
  ragharness init --output config/rag.yaml --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, output, force)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "rag.yaml", "Path for the generated config file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return herrors.Newf(herrors.ErrCodeInvalidInput, "%s already exists", path).
			WithSuggestion("Pass --force to overwrite it")
	}

	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return herrors.New(herrors.ErrCodeArtifactWrite,
			fmt.Sprintf("cannot write %s", path), err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Wrote %s\n", path)
	_, _ = fmt.Fprintln(out, "Edit paths.kb_dir, then run 'ragharness preflight'.")
	return nil
}
