package pipeline

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/temirov/pktables/internal/literal"
)

// Record is the provenance entry of one step.
type Record struct {
	Step             string `json:"step"`
	Success          bool   `json:"success"`
	Skipped          bool   `json:"skipped,omitempty"`
	RawReasoning     string `json:"raw_reasoning"`
	CleanedReasoning string `json:"cleaned_reasoning"`
	TokenUsage       int    `json:"token_usage"`
	Truncated        bool   `json:"truncated"`
	Attempts         int    `json:"attempts"`
}

// Provenance is the append-only step log of one run.
type Provenance struct {
	records []Record
}

func (p *Provenance) Append(record Record) { p.records = append(p.records, record) }

func (p *Provenance) Records() []Record { return slices.Clone(p.records) }

func (p *Provenance) Len() int { return len(p.records) }

func (p *Provenance) StepNames() []string {
	return project(p.records, func(r Record) string { return r.Step })
}

func (p *Provenance) Successes() []bool {
	return project(p.records, func(r Record) bool { return r.Success })
}

func (p *Provenance) RawReasoning() []string {
	return project(p.records, func(r Record) string { return r.RawReasoning })
}

func (p *Provenance) CleanedReasoning() []string {
	return project(p.records, func(r Record) string { return r.CleanedReasoning })
}

func (p *Provenance) TokenUsage() []int {
	return project(p.records, func(r Record) int { return r.TokenUsage })
}

func (p *Provenance) Truncated() []bool {
	return project(p.records, func(r Record) bool { return r.Truncated })
}

// TotalTokens sums token usage over every step.
func (p *Provenance) TotalTokens() int {
	total := 0
	for _, record := range p.records {
		total += record.TokenUsage
	}
	return total
}

func project[V any](records []Record, field func(Record) V) []V {
	out := make([]V, len(records))
	for index, record := range records {
		out[index] = field(record)
	}
	return out
}

// Run is the accumulator of one pipeline invocation. It is not shared
// between invocations.
type Run struct {
	ID         string
	runner     Runner
	observer   Observer
	provenance *Provenance
}

// NewRun starts a run with a fresh identifier. observer may be nil.
func NewRun(runner Runner, observer Observer) *Run {
	return &Run{
		ID:         uuid.NewString(),
		runner:     runner,
		observer:   observer,
		provenance: &Provenance{},
	}
}

func (r *Run) Provenance() *Provenance { return r.provenance }

// Skip records a step that did not need to run.
func (r *Run) Skip(step string, reason string) {
	r.provenance.Append(Record{Step: step, Success: true, Skipped: true})
	r.emit(StepEvent{Step: step, Status: StatusSkipped, Reason: reason})
}

// Derive records a step computed without the model.
func (r *Run) Derive(step string, summary string) {
	r.provenance.Append(Record{Step: step, Success: true})
	r.emit(StepEvent{Step: step, Status: StatusSucceeded, OutputSummary: truncate(summary, 280)})
}

// Fail wraps a step error as a pipeline failure.
func (r *Run) Fail(pipelineName string, err error) error {
	r.emit(StepEvent{Step: pipelineName, Status: StatusAborted, Err: err})
	return fmt.Errorf("%w: %s: %w", ErrPipelineFailed, pipelineName, err)
}

func (r *Run) record(step string, success bool, raw string, tokens int, truncated bool, attempts int) {
	r.provenance.Append(Record{
		Step:             step,
		Success:          success,
		RawReasoning:     raw,
		CleanedReasoning: literal.CleanReasoning(raw),
		TokenUsage:       tokens,
		Truncated:        truncated,
		Attempts:         attempts,
	})
}

func (r *Run) emit(event StepEvent) {
	if r.observer == nil {
		return
	}
	event.RunID = r.ID
	r.observer(event)
}
