package extractor_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/pktables/internal/extractor"
	"github.com/temirov/pktables/internal/metrics"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/store"
	"github.com/temirov/pktables/internal/table"
)

const individualMarkdown = `| Patient | Cmax (ng/mL) |
| --- | --- |
| P1 | 10 |
| P2 | 12 |
`

type routedClient map[string]string

func (c routedClient) Chat(ctx context.Context, request pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	for marker, answer := range c {
		if strings.Contains(request.UserPrompt, marker) {
			return pipeline.LLMResponse{RawText: "Thinking.\n" + answer, TokenUsage: 5}, nil
		}
	}
	return pipeline.LLMResponse{}, fmt.Errorf("unrouted prompt: %.60s", request.UserPrompt)
}

func individualClient() routedClient {
	return routedClient{
		"List every unique combination of drug name": `<<[("Lamotrigine", "Lamotrigine", "Plasma")]>>`,
		"List every unique population":               `<<[("Maternal", "Delivery")]>>`,
		"We only want":                               "[[END]]",
		"Are individual patients laid out as columns": "<<False>>",
		"Assign every column":                        `<<{"Patient": "Patient ID", "Cmax (ng/mL)": "Parameter value"}>>`,
		"its unit and the numeric value":             `<<[("Cmax", "ng/mL", "10"), ("Cmax", "ng/mL", "12")]>>`,
		"give the time the value refers to":          `<<[("2", "Hour"), ("2", "Hour")]>>`,
	}
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRunIndividual(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	m := metrics.New()

	var events []pipeline.StepEvent
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e := extractor.Extractor{
		Logger:  zap.NewNop(),
		Metrics: m,
		Store:   db,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	result, err := e.Run(context.Background(), individualClient(), extractor.Request{
		Pipeline: "pk/individual",
		Source:   pipeline.Source{Table: table.MustDecode(individualMarkdown)},
		Options:  pipeline.RunOptions{MaxAttempts: 2},
		Input:    "table3.md",
		Observer: func(event pipeline.StepEvent) { events = append(events, event) },
		Sleep:    noSleep,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "pk/individual", result.Pipeline)
	assert.Equal(t, time.Second, result.Elapsed)
	assert.Equal(t, [][]string{
		{"Lamotrigine", "Lamotrigine", "Plasma", "P1", "Maternal", "Delivery", "Cmax", "ng/mL", "10", "N/A", "N/A"},
		{"Lamotrigine", "Lamotrigine", "Plasma", "P2", "Maternal", "Delivery", "Cmax", "ng/mL", "12", "N/A", "N/A"},
	}, result.Table.Rows, "Cmax never carries a time")

	steps := len(result.StepNames())
	assert.Len(t, result.Successes(), steps)
	assert.Len(t, result.RawReasoning(), steps)
	assert.Len(t, result.CleanedReasoning(), steps)
	assert.Len(t, result.TokenUsage(), steps)
	assert.Len(t, result.Truncated(), steps)
	assert.Equal(t, "Thinking.", result.CleanedReasoning()[0])
	assert.Equal(t, 35, result.TotalTokens())
	assert.NotEmpty(t, events)
	assert.Equal(t, result.RunID, events[0].RunID)

	saved, err := db.Run(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.True(t, saved.Success)
	assert.Equal(t, 2, saved.RowCount)
	assert.Equal(t, "table3.md", saved.Input)
	assert.Equal(t, table.Encode(result.Table), saved.Output)
	savedSteps, err := db.Steps(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Records(), savedSteps)

	runs, err := testutil.GatherAndCount(m.Registry, "pktables_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestRunFailureReturnsNoResult(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	client := individualClient()
	client["give the time the value refers to"] = "no answer block"

	result, err := extractor.Extractor{Store: db}.Run(context.Background(), client, extractor.Request{
		Pipeline: "pk/individual",
		Source:   pipeline.Source{Table: table.MustDecode(individualMarkdown)},
		Options:  pipeline.RunOptions{MaxAttempts: 2},
		Sleep:    noSleep,
	})
	assert.Nil(t, result)
	require.ErrorIs(t, err, pipeline.ErrPipelineFailed)
	require.ErrorIs(t, err, pipeline.ErrStepFailed)

	var runErr *extractor.RunError
	require.ErrorAs(t, err, &runErr)
	last := runErr.Records[len(runErr.Records)-1]
	assert.Equal(t, "time-extraction", last.Step)
	assert.False(t, last.Success)

	saved, err := db.Run(context.Background(), runErr.RunID)
	require.NoError(t, err)
	assert.False(t, saved.Success)
	assert.Empty(t, saved.Output)
	assert.Contains(t, saved.Error, "time-extraction")
}

func TestRunRejectsBadRequests(t *testing.T) {
	_, err := extractor.Run(context.Background(), individualClient(), extractor.Request{
		Pipeline: "pk/unknown",
		Source:   pipeline.Source{Table: table.MustDecode(individualMarkdown)},
	})
	assert.ErrorIs(t, err, extractor.ErrUnknownPipeline)

	_, err = extractor.Run(context.Background(), individualClient(), extractor.Request{Pipeline: "pk/summary"})
	assert.ErrorIs(t, err, extractor.ErrEmptyTable)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Equal(t, []string{"pk/individual", "pk/summary"}, extractor.DefaultRegistry().Names())
}
