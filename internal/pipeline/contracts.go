package pipeline

import (
	"context"
	"slices"

	"github.com/temirov/pktables/internal/table"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation with the model.
type Message struct {
	Role    string
	Content string
}

// LLMRequest is the opening prompt of a step plus any corrective turns
// accumulated by earlier attempts.
type LLMRequest struct {
	SystemPrompt string
	UserPrompt   string
	History      []Message
	MaxTokens    int
	Temperature  float64
	Model        string
}

// Messages flattens the request into the chat order sent to the model.
func (r LLMRequest) Messages() []Message {
	messages := make([]Message, 0, len(r.History)+2)
	if r.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: r.UserPrompt})
	return append(messages, r.History...)
}

type LLMResponse struct {
	RawText    string
	TokenUsage int
	Truncated  bool
}

// RefineKind classifies why an answer was rejected.
type RefineKind int

const (
	// RefineParse: no delimited answer, or it is not a valid literal of the expected shape.
	RefineParse RefineKind = iota
	// RefineInvariant: the answer parsed but breaks a structural rule such as a row count.
	RefineInvariant
	// RefineAlgebra: the answer cannot be applied to the table. Only one more turn is granted.
	RefineAlgebra
)

func (k RefineKind) String() string {
	switch k {
	case RefineParse:
		return "parse"
	case RefineInvariant:
		return "invariant"
	case RefineAlgebra:
		return "algebra"
	default:
		return "unknown"
	}
}

type RefineRequest struct {
	Kind            RefineKind
	UserPromptDelta string
	Reason          string
}

// Step is one LLM-backed unit of work. Verify either accepts the response and
// returns the step output, or rejects it with a RefineRequest that is fed back
// to the model. A Verify error aborts the step without retrying.
type Step[T any] interface {
	Name() string
	Prompt(ctx context.Context) (LLMRequest, error)
	Verify(ctx context.Context, response LLMResponse) (accepted bool, output T, refine *RefineRequest, err error)
}

// Result is the outcome of one executed step.
type Result[T any] struct {
	Name             string
	Success          bool
	Output           T
	RawReasoning     string
	CleanedReasoning string
	TokenUsage       int
	Truncated        bool
	Attempts         int
}

// Source is what a pipeline extracts from: one table and the caption and
// footnote that describe it. Drugs and Populations are optional reference
// tables; when present the matching identity step is not asked.
type Source struct {
	Table       table.Table
	Caption     string
	Drugs       *table.Table
	Populations *table.Table
}

func (s Source) Clone() Source {
	clone := Source{Table: s.Table.Clone(), Caption: s.Caption}
	if s.Drugs != nil {
		drugs := s.Drugs.Clone()
		clone.Drugs = &drugs
	}
	if s.Populations != nil {
		populations := s.Populations.Clone()
		clone.Populations = &populations
	}
	return clone
}

// Pipeline turns a Source into one normalized table.
type Pipeline interface {
	Name() string
	Description() string
	Extract(ctx context.Context, run *Run, source Source) (table.Table, error)
}

func cloneMessages(messages []Message) []Message {
	return slices.Clone(messages)
}
