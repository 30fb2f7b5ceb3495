package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/txsched/internal/engine"
	"github.com/roach88/txsched/internal/ir"
	"github.com/roach88/txsched/internal/store"
)

// Store is the engine's trace recorder.
var _ engine.Recorder = (*store.Store)(nil)

// defaultCycles is simulated when neither --cycles nor a stimulus says
// how long to run.
const defaultCycles = 10

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Stimulus string
	Cycles   int
	RunID    string
	Metrics  bool

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, --run-id or a UUIDv7Generator is used.
	RunIDGenerator engine.RunIDGenerator
}

// RunResult is the outcome of a simulation.
type RunResult struct {
	RunID      string           `json:"run_id"`
	Design     string           `json:"design"`
	DesignHash string           `json:"design_hash"`
	Cycles     []ir.CycleRecord `json:"cycles"`
	Metrics    []MetricSample   `json:"metrics,omitempty"`
}

// MetricSample is one gathered Prometheus sample.
type MetricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <design-dir>",
		Short: "Simulate a design cycle by cycle",
		Long: `Simulate a compiled design and print the firing set of every cycle.

A stimulus file scripts which transactions are ready each cycle, which
methods are not ready and what arguments transactions pass. Without one,
everything is ready every cycle. With --db the run is recorded in a SQLite
database (created if it doesn't exist) for trace and replay.

Example:
  txsched run ./designs/fetch --stimulus fetch.yaml
  txsched run ./designs/fetch --stimulus fetch.yaml --db ./runs.db --metrics
  txsched run ./designs/fetch --cycles 100 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")
	cmd.Flags().StringVar(&opts.Stimulus, "stimulus", "", "path to stimulus YAML file")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 0, "number of cycles (default: stimulus length, or 10)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run identifier (default: generated UUIDv7)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print simulator metrics after the run")

	return cmd
}

func runSimulation(opts *RunOptions, designDir string, cmd *cobra.Command) error {
	logger := opts.logger()
	formatter := opts.newFormatter(cmd)

	loadResult, err := LoadDesign(designDir)
	if err != nil {
		_ = formatter.Error(designErrorCode(err), loadMessage(err), nil)
		return WrapExitError(ExitCommandError, "failed to load design", err)
	}
	d := *loadResult.Design
	logger.Info("design loaded", "dir", designDir, "design", d.Name, "files", loadResult.FileCount)

	var stim *engine.Stimulus
	if opts.Stimulus != "" {
		stim, err = LoadStimulus(opts.Stimulus)
		if err != nil {
			_ = formatter.Error(ErrCodeStimulus, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load stimulus", err)
		}
		if err := checkStimulusNames(d, stim); err != nil {
			_ = formatter.Error(ErrCodeStimulus, err.Error(), nil)
			return WrapExitError(ExitCommandError, "stimulus does not match design", err)
		}
	}

	cycles := opts.Cycles
	if cycles <= 0 {
		cycles = defaultCycles
		if stim != nil {
			cycles = stim.Len()
		}
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}

	reg := prometheus.NewRegistry()
	if opts.Metrics {
		engineOpts = append(engineOpts, engine.WithMetrics(engine.NewMetrics(reg)))
	}

	switch {
	case opts.RunIDGenerator != nil:
		engineOpts = append(engineOpts, engine.WithRunID(opts.RunIDGenerator))
	case opts.RunID != "":
		engineOpts = append(engineOpts, engine.WithRunID(engine.NewFixedGenerator(opts.RunID)))
	}

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithRecorder(st))
	}

	var src engine.Source
	if stim != nil {
		src = stim
	}
	m, err := engine.NewManagerFromDesign(d, src)
	if err != nil {
		_ = formatter.Error(designErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid design", err)
	}
	sim, err := m.Finalize(engineOpts...)
	if err != nil {
		_ = formatter.Error(designErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid design", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recs, err := sim.Run(ctx, cycles)
	result := RunResult{
		RunID:      sim.RunID(),
		Design:     d.Name,
		DesignHash: sim.DesignHash(),
		Cycles:     recs,
	}
	if opts.Metrics {
		samples, gatherErr := gatherMetrics(reg)
		if gatherErr != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", gatherErr)
		}
		result.Metrics = samples
	}

	if err != nil {
		if engine.IsBodyError(err) {
			_ = formatter.Error(string(engine.BodyErrorCodeOf(err)), err.Error(), result)
			return WrapExitError(ExitFailure, "simulation aborted", err)
		}
		if ctx.Err() != nil {
			logger.Info("simulation interrupted", "cycles", len(recs))
		} else {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "simulation failed", err)
		}
	}

	if opts.Format == "json" {
		return formatter.JSON(result, result.RunID)
	}
	outputRunText(cmd.OutOrStdout(), result, opts.Database)
	return nil
}

// LoadStimulus reads a stimulus YAML file. Unknown fields are errors.
func LoadStimulus(path string) (*engine.Stimulus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stimulus file: %w", err)
	}

	var stim engine.Stimulus
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&stim); err != nil {
		return nil, fmt.Errorf("failed to parse stimulus %s: %w", path, err)
	}
	return &stim, nil
}

// checkStimulusNames rejects a stimulus that names transactions or methods
// the design does not declare.
func checkStimulusNames(d ir.Design, stim *engine.Stimulus) error {
	for _, name := range stim.Names() {
		if _, ok := d.Transaction(name); ok {
			continue
		}
		if _, ok := d.Method(name); ok {
			continue
		}
		return fmt.Errorf("stimulus names %q, which design %q does not declare", name, d.Name)
	}
	return nil
}

// gatherMetrics flattens the registry into samples, sorted by name and
// labels. Histograms contribute their _count and _sum.
func gatherMetrics(reg *prometheus.Registry) ([]MetricSample, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	var out []MetricSample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out = append(out, MetricSample{Name: mf.GetName(), Labels: labels, Value: m.GetCounter().GetValue()})
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				out = append(out,
					MetricSample{Name: mf.GetName() + "_count", Labels: labels, Value: float64(h.GetSampleCount())},
					MetricSample{Name: mf.GetName() + "_sum", Labels: labels, Value: h.GetSampleSum()},
				)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return formatLabels(out[i].Labels) < formatLabels(out[j].Labels)
	})
	return out, nil
}

// formatLabels renders labels in exposition style: {k="v",...}.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func outputRunText(w io.Writer, result RunResult, database string) {
	fmt.Fprintf(w, "Run %s (design %s)\n\n", result.RunID, result.Design)

	for _, rec := range result.Cycles {
		fmt.Fprintf(w, "cycle %d: fired [%s] ready [%s]\n",
			rec.Cycle, strings.Join(rec.Fired, ", "), strings.Join(rec.Ready, ", "))
	}

	fmt.Fprintf(w, "\n✓ Simulated %d cycle(s)\n", len(result.Cycles))
	if database != "" {
		fmt.Fprintf(w, "Recorded run %s in %s\n", result.RunID, database)
	}

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Metrics:")
		for _, s := range result.Metrics {
			fmt.Fprintf(w, "  %s%s %g\n", s.Name, formatLabels(s.Labels), s.Value)
		}
	}
}
