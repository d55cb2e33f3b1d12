package pktables_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listConfig = `
common:
  api:
    endpoint: https://api.openai.com/v1
    api_key_env: OPENAI_API_KEY

models:
  - name: small
    model_id: gpt-4o-mini
    default: true
  - name: large
    model_id: gpt-4o

pipelines:
  - name: summary
    enabled: true
    type: pk/summary
    model: large
  - name: individual
    enabled: false
    type: pk/individual
`

func TestList_DefaultFiltersDisabled(t *testing.T) {
	configPath := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), listConfig)

	out, err := execute(t, "list", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "summary\t(enabled, type=pk/summary, model=large)\n", out)
}

func TestList_AllShowsDisabled(t *testing.T) {
	configPath := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), listConfig)

	out, err := execute(t, "list", "--config", configPath, "--all")
	require.NoError(t, err)
	assert.Equal(t,
		"summary\t(enabled, type=pk/summary, model=large)\n"+
			"individual\t(disabled, type=pk/individual, model=small)\n",
		out)
}

func TestList_InvalidConfig(t *testing.T) {
	configPath := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), "models: []\n")

	_, err := execute(t, "list", "--config", configPath)
	assert.ErrorContains(t, err, "config.models is empty")
}

func TestList_IncludesUnconfiguredTypes(t *testing.T) {
	configPath := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), `
common:
  api:
    endpoint: https://api.openai.com/v1
    api_key_env: OPENAI_API_KEY
models:
  - name: small
    model_id: gpt-4o-mini
    default: true
pipelines:
  - name: tables
    enabled: true
    type: pk/summary
`)

	out, err := execute(t, "list", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t,
		"tables\t(enabled, type=pk/summary, model=small)\n"+
			"pk/individual\t(enabled, type=pk/individual, model=small)\n",
		out)
}
