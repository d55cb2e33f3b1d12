// Package extractor is the entry point that runs one pipeline over one
// table and reports the final table together with its provenance.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/pktables/internal/metrics"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/store"
	"github.com/temirov/pktables/internal/table"
	"github.com/temirov/pktables/tasks/individual"
	"github.com/temirov/pktables/tasks/summary"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrEmptyTable      = errors.New("input table has no columns")
)

// DefaultRegistry holds every built-in pipeline.
func DefaultRegistry() *pipeline.Registry {
	registry := pipeline.NewRegistry()
	registry.Register(summary.Name, summary.New)
	registry.Register(individual.Name, individual.New)
	return registry
}

type Request struct {
	// Pipeline is a registry name such as "pk/summary".
	Pipeline string
	Source   pipeline.Source
	Options  pipeline.RunOptions
	// Input labels the run in the store, usually the input path.
	Input    string
	Observer pipeline.Observer
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Result is a successful run. The provenance slices are parallel: index i
// of every slice describes the same step.
type Result struct {
	RunID      string
	Pipeline   string
	Table      table.Table
	Elapsed    time.Duration
	provenance *pipeline.Provenance
}

func (r *Result) Records() []pipeline.Record { return r.provenance.Records() }
func (r *Result) StepNames() []string        { return r.provenance.StepNames() }
func (r *Result) Successes() []bool          { return r.provenance.Successes() }
func (r *Result) RawReasoning() []string     { return r.provenance.RawReasoning() }
func (r *Result) CleanedReasoning() []string { return r.provenance.CleanedReasoning() }
func (r *Result) TokenUsage() []int          { return r.provenance.TokenUsage() }
func (r *Result) Truncated() []bool          { return r.provenance.Truncated() }
func (r *Result) TotalTokens() int           { return r.provenance.TotalTokens() }

// RunError is returned when a pipeline fails. It keeps the provenance
// gathered up to the failing step.
type RunError struct {
	RunID    string
	Pipeline string
	Records  []pipeline.Record
	Err      error
}

func (e *RunError) Error() string { return fmt.Sprintf("run %s: %v", e.RunID, e.Err) }
func (e *RunError) Unwrap() error { return e.Err }

// Extractor runs pipelines with optional logging, metrics and persistence.
// The zero value runs the built-in pipelines with none of them.
type Extractor struct {
	Registry *pipeline.Registry
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Store    *store.Store
	Now      func() time.Time
}

// Run runs req with the default Extractor.
func Run(ctx context.Context, client pipeline.LLMClient, req Request) (*Result, error) {
	return Extractor{}.Run(ctx, client, req)
}

// Run returns nil and an error wrapping pipeline.ErrPipelineFailed when any
// step fails; no partial table is ever returned.
func (e Extractor) Run(ctx context.Context, client pipeline.LLMClient, req Request) (*Result, error) {
	registry := e.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	task, ok := registry.Create(req.Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPipeline, req.Pipeline, registry.Names())
	}
	if req.Source.Table.ColCount() == 0 {
		return nil, ErrEmptyTable
	}

	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observers := []pipeline.Observer{pipeline.LogObserver(logger), req.Observer}
	if e.Metrics != nil {
		observers = append(observers, e.Metrics.Observer())
	}

	now := e.Now
	if now == nil {
		now = time.Now
	}
	started := now()
	run := pipeline.NewRun(pipeline.Runner{
		Client:  client,
		Options: req.Options,
		Sleep:   req.Sleep,
	}, pipeline.MultiObserver(observers...))
	logger.Info("run started", zap.String("run_id", run.ID), zap.String("pipeline", task.Name()), zap.String("input", req.Input))

	output, runErr := task.Extract(ctx, run, req.Source.Clone())
	finished := now()
	elapsed := finished.Sub(started)
	provenance := run.Provenance()

	if e.Metrics != nil {
		e.Metrics.ObserveRun(task.Name(), runErr == nil, output.RowCount(), elapsed)
	}
	if e.Store != nil {
		record := store.RunRecord{
			ID:          run.ID,
			Pipeline:    task.Name(),
			Input:       req.Input,
			StartedAt:   started,
			FinishedAt:  finished,
			Success:     runErr == nil,
			TotalTokens: provenance.TotalTokens(),
		}
		if runErr != nil {
			record.Error = runErr.Error()
		} else {
			record.RowCount = output.RowCount()
			record.Output = table.Encode(output)
		}
		// store errors are logged, not returned
		if err := e.Store.SaveRun(context.WithoutCancel(ctx), record, provenance.Records()); err != nil {
			logger.Warn("saving run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Warn("run failed", zap.String("run_id", run.ID), zap.Duration("elapsed", elapsed), zap.Error(runErr))
		return nil, &RunError{RunID: run.ID, Pipeline: task.Name(), Records: provenance.Records(), Err: runErr}
	}
	logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.Int("rows", output.RowCount()),
		zap.Int("tokens", provenance.TotalTokens()),
		zap.Duration("elapsed", elapsed))
	return &Result{
		RunID:      run.ID,
		Pipeline:   task.Name(),
		Table:      output,
		Elapsed:    elapsed,
		provenance: provenance,
	}, nil
}
