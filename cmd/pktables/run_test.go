package pktables_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pktables/cmd/pktables"
	"github.com/temirov/pktables/internal/table"
)

const (
	testAPIKeyEnvironmentVariable = "PKTABLES_TEST_API_KEY"
	chatCompletionPath            = "/chat/completions"
	timeExtractionMarker          = "give the time the value refers to"
)

const individualMarkdown = `| Patient | Cmax (ng/mL) |
| --- | --- |
| P1 | 10 |
| P2 | 12 |
`

const configTemplate = `
common:
  api:
    endpoint: %s
    api_key_env: PKTABLES_TEST_API_KEY
  logging:
    level: error
    format: json
  defaults:
    attempts: 2
    timeout_seconds: 5
    initial_wait_ms: 1

models:
  - name: test-model
    model_id: gpt-test
    default: true
    max_completion_tokens: 512

pipelines:
  - name: individual
    enabled: true
    type: pk/individual
  - name: summary
    enabled: false
    type: pk/summary
`

func individualRoutes() map[string]string {
	return map[string]string{
		"List every unique combination of drug name":  `<<[("Lamotrigine", "Lamotrigine", "Plasma")]>>`,
		"List every unique population":                `<<[("Maternal", "Delivery")]>>`,
		"We only want":                                "[[END]]",
		"Are individual patients laid out as columns": "<<False>>",
		"Assign every column":                         `<<{"Patient": "Patient ID", "Cmax (ng/mL)": "Parameter value"}>>`,
		"its unit and the numeric value":              `<<[("Cmax", "ng/mL", "10"), ("Cmax", "ng/mL", "12")]>>`,
		timeExtractionMarker:                          `<<[("2", "Hour"), ("2", "Hour")]>>`,
	}
}

// newChatServer answers chat completions by matching the opening user prompt
// against routes.
func newChatServer(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatCompletionPath {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var request struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prompt := ""
		for _, message := range request.Messages {
			if message.Role == "user" {
				prompt = message.Content
				break
			}
		}
		for marker, answer := range routes {
			if strings.Contains(prompt, marker) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"choices": []map[string]any{{
						"message":       map[string]any{"role": "assistant", "content": "Thinking.\n" + answer},
						"finish_reason": "stop",
					}},
					"usage": map[string]any{"total_tokens": 5},
				})
				return
			}
		}
		http.Error(w, "unrouted prompt", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	return writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), fmt.Sprintf(configTemplate, endpoint))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	command := pktables.NewRootCommand()
	var out bytes.Buffer
	command.SetOut(&out)
	command.SetErr(&out)
	command.SetArgs(args)
	err := command.Execute()
	return out.String(), err
}

func TestRunWritesTableProvenanceAndHistory(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "sk-test")
	server, calls := newChatServer(t, individualRoutes())
	configPath := writeConfig(t, server.URL)

	workDir := t.TempDir()
	inputPath := writeFile(t, filepath.Join(workDir, "table3.md"), individualMarkdown)
	outputPath := filepath.Join(workDir, "out", "table3.csv")
	provenanceDir := filepath.Join(workDir, "provenance")
	databasePath := filepath.Join(workDir, "runs.db")
	metricsPath := filepath.Join(workDir, "pktables.prom")

	_, err := execute(t, "run", "individual",
		"--config", configPath,
		"--table", inputPath,
		"--output", outputPath,
		"--provenance", provenanceDir,
		"--db", databasePath,
		"--metrics-file", metricsPath)
	require.NoError(t, err)
	assert.EqualValues(t, 7, calls.Load())

	written, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	result, err := table.ReadCSV(bytes.NewReader(written))
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Lamotrigine", "Lamotrigine", "Plasma", "P1", "Maternal", "Delivery", "Cmax", "ng/mL", "10", "N/A", "N/A"},
		{"Lamotrigine", "Lamotrigine", "Plasma", "P2", "Maternal", "Delivery", "Cmax", "ng/mL", "12", "N/A", "N/A"},
	}, result.Rows)

	provenanceBytes, err := os.ReadFile(filepath.Join(provenanceDir, "table3.provenance.json"))
	require.NoError(t, err)
	var provenance struct {
		RunID       string `json:"run_id"`
		Pipeline    string `json:"pipeline"`
		Success     bool   `json:"success"`
		TotalTokens int    `json:"total_tokens"`
		Steps       []struct {
			Step             string `json:"step"`
			CleanedReasoning string `json:"cleaned_reasoning"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(provenanceBytes, &provenance))
	assert.True(t, provenance.Success)
	assert.Equal(t, "pk/individual", provenance.Pipeline)
	assert.Equal(t, 35, provenance.TotalTokens)
	require.NotEmpty(t, provenance.Steps)
	assert.Equal(t, "Thinking.", provenance.Steps[0].CleanedReasoning)

	metricsText, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `pktables_runs_total{outcome="succeeded",pipeline="pk/individual"} 1`)

	listing, err := execute(t, "history", "--db", databasePath)
	require.NoError(t, err)
	assert.Contains(t, listing, provenance.RunID)
	assert.Contains(t, listing, "pk/individual")
	assert.Contains(t, listing, "(succeeded, rows=2, tokens=35, input="+inputPath+")")

	steps, err := execute(t, "history", provenance.RunID, "--db", databasePath)
	require.NoError(t, err)
	assert.Contains(t, steps, "time-extraction\t(succeeded, attempts=1, tokens=5)")
}

func TestRunPrintsMarkdownToStdout(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "sk-test")
	server, _ := newChatServer(t, individualRoutes())
	configPath := writeConfig(t, server.URL)
	inputPath := writeFile(t, filepath.Join(t.TempDir(), "table3.md"), individualMarkdown)

	out, err := execute(t, "run", "pk/individual", "--config", configPath, "--table", inputPath)
	require.NoError(t, err)
	printed, err := table.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, 2, printed.RowCount())
}

func TestRunDirectoryWritesOneFilePerTable(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "sk-test")
	server, _ := newChatServer(t, individualRoutes())
	configPath := writeConfig(t, server.URL)

	inputDir := t.TempDir()
	writeFile(t, filepath.Join(inputDir, "a.md"), individualMarkdown)
	writeFile(t, filepath.Join(inputDir, "nested", "b.md"), individualMarkdown)
	outputDir := filepath.Join(t.TempDir(), "results")

	_, err := execute(t, "run", "individual", "--config", configPath, "--table", inputDir, "--output", outputDir, "--format", "csv")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outputDir, "a.csv"))
	assert.FileExists(t, filepath.Join(outputDir, "b.csv"))

	_, err = execute(t, "run", "individual", "--config", configPath, "--table", inputDir)
	assert.ErrorContains(t, err, "--output must be a directory")
}

func TestRunFailureWritesProvenance(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "sk-test")
	routes := individualRoutes()
	routes[timeExtractionMarker] = "no answer block"
	server, _ := newChatServer(t, routes)
	configPath := writeConfig(t, server.URL)

	workDir := t.TempDir()
	inputPath := writeFile(t, filepath.Join(workDir, "table3.md"), individualMarkdown)
	outputPath := filepath.Join(workDir, "table3.out.md")

	_, err := execute(t, "run", "individual", "--config", configPath, "--table", inputPath,
		"--output", outputPath, "--provenance", workDir, "--attempts", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time-extraction")
	assert.NoFileExists(t, outputPath)

	provenanceBytes, err := os.ReadFile(filepath.Join(workDir, "table3.provenance.json"))
	require.NoError(t, err)
	var provenance struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(provenanceBytes, &provenance))
	assert.False(t, provenance.Success)
	assert.Contains(t, provenance.Error, "time-extraction")
}

func TestRunRejectsBadInvocations(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "sk-test")
	configPath := writeConfig(t, "http://127.0.0.1:1")
	inputPath := writeFile(t, filepath.Join(t.TempDir(), "table3.md"), individualMarkdown)

	testCases := []struct {
		name     string
		args     []string
		expected string
	}{
		{name: "MissingTable", args: []string{"run", "individual", "--config", configPath}, expected: "--table is required"},
		{name: "DisabledPipeline", args: []string{"run", "summary", "--config", configPath, "--table", inputPath}, expected: `pipeline "summary" is disabled`},
		{name: "UnknownPipeline", args: []string{"run", "pk/other", "--config", configPath, "--table", inputPath}, expected: `unknown pipeline "pk/other"`},
		{name: "UnknownModel", args: []string{"run", "individual", "--config", configPath, "--table", inputPath, "--model", "nope"}, expected: `model "nope" not found`},
		{name: "BadFormat", args: []string{"run", "individual", "--config", configPath, "--table", inputPath, "--format", "xlsx"}, expected: "unsupported --format"},
		{name: "CaptionConflict", args: []string{"run", "individual", "--config", configPath, "--table", inputPath, "--caption", "x", "--caption-file", inputPath}, expected: "mutually exclusive"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := execute(t, testCase.args...)
			assert.ErrorContains(t, err, testCase.expected)
		})
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "")
	configPath := writeConfig(t, "http://127.0.0.1:1")
	inputPath := writeFile(t, filepath.Join(t.TempDir(), "table3.md"), individualMarkdown)

	_, err := execute(t, "run", "individual", "--config", configPath, "--table", inputPath)
	assert.ErrorContains(t, err, "missing API key: set "+testAPIKeyEnvironmentVariable)
}

func TestHistoryReadsDatabaseFromEnvironment(t *testing.T) {
	t.Setenv(testAPIKeyEnvironmentVariable, "sk-test")
	server, _ := newChatServer(t, individualRoutes())
	configPath := writeConfig(t, server.URL)
	workDir := t.TempDir()
	inputPath := writeFile(t, filepath.Join(workDir, "table3.md"), individualMarkdown)
	t.Setenv("PKTABLES_DB", filepath.Join(workDir, "env.db"))

	_, err := execute(t, "run", "individual", "--config", configPath, "--table", inputPath, "--output", filepath.Join(workDir, "out.md"))
	require.NoError(t, err)

	listing, err := execute(t, "history")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(listing, "pk/individual"))
}

func TestHistoryRequiresDatabase(t *testing.T) {
	_, err := execute(t, "history")
	assert.ErrorContains(t, err, "--db is required")
}
