package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pktables/internal/config"
)

const validRoot = `common:
  api:
    endpoint: https://llm.example.test/v1
    api_key_env: PKTABLES_KEY
    provider: openai
  logging:
    level: info
    format: json
  defaults:
    attempts: 4
    timeout_seconds: 30
    initial_wait_ms: 250
    requests_per_minute: 60
models:
  - name: small
    model_id: small-1
    default: true
  - name: large
    model_id: large-1
pipelines:
  - name: summary
    enabled: true
    type: pk/summary
    model: large
    step_attempts:
      time-extraction: 7
  - name: individual
    enabled: true
    type: pk/individual
`

func load(t *testing.T, content string) (config.Root, error) {
	t.Helper()
	return config.LoadRoot(config.RootConfigurationSource{Reference: t.Name(), Content: []byte(content)})
}

func TestLoadRootValid(t *testing.T) {
	root, err := load(t, validRoot)
	require.NoError(t, err)

	assert.Equal(t, config.ProviderOpenAI, root.Common.API.Provider)
	assert.Equal(t, 30*time.Second, root.Common.Defaults.Timeout())
	assert.Equal(t, 250*time.Millisecond, root.Common.Defaults.InitialWait())

	summary, ok := root.FindPipeline("summary")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"time-extraction": 7}, summary.StepAttempts)
	assert.Equal(t, "large-1", root.ModelFor(summary).ModelID)

	byType, ok := root.FindPipeline("pk/individual")
	require.True(t, ok)
	assert.Equal(t, "individual", byType.Name)
	assert.Equal(t, "small-1", root.ModelFor(byType).ModelID)

	_, ok = root.FindPipeline("pk/other")
	assert.False(t, ok)
}

func TestLoadRootEmbeddedDefaultIsValid(t *testing.T) {
	loader := config.NewRootConfigurationLoader("", "")
	source, err := loader.Load("")
	require.NoError(t, err)
	root, err := config.LoadRoot(source)
	require.NoError(t, err)
	assert.Equal(t, 5, root.Common.Defaults.Attempts)
	_, ok := root.FindPipeline("pk/summary")
	assert.True(t, ok)
}

func TestLoadRootRejects(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		message string
	}{
		{
			name:    "empty content",
			content: "",
			message: "is empty",
		},
		{
			name:    "no models",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\n",
			message: "config.models is empty",
		},
		{
			name:    "no default model",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\nmodels:\n  - name: a\n    model_id: a\n",
			message: "no default model",
		},
		{
			name:    "bad provider",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\n    provider: grpc\nmodels:\n  - name: a\n    model_id: a\n    default: true\n",
			message: "Provider",
		},
		{
			name:    "lowercase key variable",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: key\nmodels:\n  - name: a\n    model_id: a\n    default: true\n",
			message: "envname",
		},
		{
			name:    "unknown pipeline type",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\nmodels:\n  - name: a\n    model_id: a\n    default: true\npipelines:\n  - name: p\n    type: pk/other\n",
			message: "oneof",
		},
		{
			name:    "zero step attempts",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\nmodels:\n  - name: a\n    model_id: a\n    default: true\npipelines:\n  - name: p\n    type: pk/summary\n    step_attempts:\n      assembly: 0\n",
			message: "gte",
		},
		{
			name:    "unknown pipeline model",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\nmodels:\n  - name: a\n    model_id: a\n    default: true\npipelines:\n  - name: p\n    type: pk/summary\n    model: b\n",
			message: "unknown model b",
		},
		{
			name:    "duplicate pipeline",
			content: "common:\n  api:\n    endpoint: https://x.test\n    api_key_env: KEY\nmodels:\n  - name: a\n    model_id: a\n    default: true\npipelines:\n  - name: p\n    type: pk/summary\n  - name: p\n    type: pk/individual\n",
			message: "declared twice",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := load(t, testCase.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.message)
		})
	}
}
