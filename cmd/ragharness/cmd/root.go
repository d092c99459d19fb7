// Package cmd provides the CLI commands for ragharness.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/logging"
	"github.com/open-access-policies/policy-crew/internal/profiling"
	"github.com/open-access-policies/policy-crew/internal/ui"
	"github.com/open-access-policies/policy-crew/pkg/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath   string
	verbose      bool
	noColor      bool
	profileCPU   string
	profileMem   string
	profileTrace string

	profiler  *profiling.Profiler
	stopCPU   func()
	stopTrace func()
}

// NewRootCmd creates the root command for the ragharness CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragharness",
		Short: "Offline evaluation harness for RAG grounding decisions",
		Long: `ragharness runs a retrieval, rerank, and gate pipeline over a markdown
knowledge base and measures how reliably the gate accepts queries the
corpus can answer while rejecting queries it cannot.

Typical flow: 'ragharness init' writes a starter config, 'ragharness
preflight' verifies the environment, 'ragharness evaluate' scores a
labeled query set, 'ragharness tune' searches for better parameters,
and 'ragharness report' renders the results as markdown.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragharness version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to the config file (default rag.yaml, or RAG_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false,
		"Disable colored output")
	cmd.PersistentFlags().StringVar(&opts.profileCPU, "profile-cpu", "",
		"Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&opts.profileMem, "profile-mem", "",
		"Write a heap profile to this file when the command finishes")
	cmd.PersistentFlags().StringVar(&opts.profileTrace, "profile-trace", "",
		"Write an execution trace to this file")

	cmd.PersistentPreRunE = opts.startProfiling
	cmd.PersistentPostRunE = opts.stopProfiling

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPreflightCmd(opts))
	cmd.AddCommand(newSmoketestCmd(opts))
	cmd.AddCommand(newEvaluateCmd(opts))
	cmd.AddCommand(newTuneCmd(opts))
	cmd.AddCommand(newReportCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any failure with its error
// code and suggestion.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, herrors.FormatForCLI(err))
		return err
	}
	return nil
}

// load reads the config named by --config and wires the run logger from
// its logging section. The caller must invoke cleanup when done.
func (o *rootOptions) load() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logCfg.FilePath = cfg.Logging.File
	if o.verbose {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}

// plain reports whether output to w should skip color.
func (o *rootOptions) plain(w io.Writer) bool {
	return !ui.ShouldColor(w, o.noColor)
}

// startProfiling begins the profiles requested by flags. Tuning runs in
// particular rebuild the pipeline per trial, which is where the time
// goes when a budget feels slow.
func (o *rootOptions) startProfiling(_ *cobra.Command, _ []string) error {
	if o.profileCPU == "" && o.profileTrace == "" {
		return nil
	}
	o.profiler = profiling.NewProfiler()

	if o.profileCPU != "" {
		stop, err := o.profiler.StartCPU(o.profileCPU)
		if err != nil {
			return err
		}
		o.stopCPU = stop
	}
	if o.profileTrace != "" {
		stop, err := o.profiler.StartTrace(o.profileTrace)
		if err != nil {
			if o.stopCPU != nil {
				o.stopCPU()
				o.stopCPU = nil
			}
			return err
		}
		o.stopTrace = stop
	}
	return nil
}

// stopProfiling flushes active profiles and takes the heap snapshot.
func (o *rootOptions) stopProfiling(_ *cobra.Command, _ []string) error {
	if o.stopCPU != nil {
		o.stopCPU()
		o.stopCPU = nil
	}
	if o.stopTrace != nil {
		o.stopTrace()
		o.stopTrace = nil
	}
	if o.profileMem != "" {
		if o.profiler == nil {
			o.profiler = profiling.NewProfiler()
		}
		return o.profiler.WriteHeap(o.profileMem)
	}
	return nil
}
