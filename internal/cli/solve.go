package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avencourt/fixpoint"
	"github.com/avencourt/fixpoint/internal/scenario"
	"github.com/avencourt/fixpoint/internal/trace"
)

// SolveOptions holds flags for the solve command.
type SolveOptions struct {
	*RootOptions
	Workers     int
	NoFallbacks bool
	TracePath   string
}

// NewSolveCommand creates the solve command.
func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solve <scenario.cue>",
		Short: "Run a scenario to its fixpoint",
		Long: `Compile a CUE scenario, run it to its fixpoint and print the final
value of every demanded property.

Example:
  fixpoint solve ./scenarios/taint.cue
  fixpoint solve --workers 8 --trace ./runs.db ./scenarios/taint.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker count (default from config; 1 = sequential)")
	cmd.Flags().BoolVar(&opts.NoFallbacks, "no-fallbacks", false, "fail uncovered properties instead of applying fallbacks")
	cmd.Flags().StringVar(&opts.TracePath, "trace", "", "journal the run to this SQLite database")

	return cmd
}

// SolveReport is the solve command's JSON payload.
type SolveReport struct {
	Scenario string            `json:"scenario"`
	Workers  int               `json:"workers"`
	Finals   map[string]string `json:"finals"`
}

func runSolve(opts *SolveOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	spec, err := scenario.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile scenario", err)
	}
	out.VerboseLog("scenario %s: %d kinds, %d entities, %d rules",
		spec.Name, len(spec.Kinds), len(spec.Entities), len(spec.Rules))

	runner, err := scenario.NewRunner(spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build scenario", err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = opts.cfg.Workers
	}
	storeOpts := []fixpoint.Option{
		fixpoint.WithParallelism(workers),
		fixpoint.WithLogger(slog.Default()),
	}
	if opts.cfg.Debug {
		storeOpts = append(storeOpts, fixpoint.WithDebug())
	}

	tracePath := opts.TracePath
	if tracePath == "" {
		tracePath = opts.cfg.TracePath
	}
	if tracePath != "" {
		journal, err := trace.Open(tracePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace journal", err)
		}
		defer journal.Close()
		storeOpts = append(storeOpts, fixpoint.WithRecorder(journal))
	}

	st, err := runner.NewStore(storeOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prime store", err)
	}
	defer st.Close()

	useFallbacks := opts.cfg.Fallbacks && !opts.NoFallbacks
	if err := st.AwaitCompletion(useFallbacks); err != nil {
		_ = out.Error(solveFailureCode(err), "fixpoint not reached", err.Error())
		return NewExitError(ExitFailure, "solve failed")
	}

	finals := runner.Finals(st)
	report := SolveReport{
		Scenario: spec.Name,
		Workers:  workers,
		Finals:   make(map[string]string, len(finals)),
	}
	for ref, v := range finals {
		report.Finals[ref.Entity+"/"+ref.Kind] = v
	}

	if opts.Format == "json" {
		return out.Success(report)
	}
	return out.Success(formatFinals(&report))
}

func formatFinals(report *SolveReport) string {
	keys := make([]string, 0, len(report.Finals))
	for k := range report.Finals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s: %d properties final\n", report.Scenario, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %s", k, report.Finals[k])
		if k != keys[len(keys)-1] {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
