package pktables

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pktables/internal/config"
)

func TestResolveEffectiveAttempts(t *testing.T) {
	root := config.Root{}
	root.Common.Defaults.Attempts = 3

	newCommand := func(options *runCommandOptions) *cobra.Command {
		command := &cobra.Command{Use: "test"}
		command.Flags().IntVar(&options.attempts, attemptsFlagName, 0, "")
		return command
	}

	options := runCommandOptions{}
	assert.Equal(t, 3, resolveEffectiveAttempts(newCommand(&options), options, root, config.Pipeline{}))
	assert.Equal(t, 4, resolveEffectiveAttempts(newCommand(&options), options, root, config.Pipeline{Attempts: 4}))

	zeroCommand := newCommand(&options)
	require.NoError(t, zeroCommand.Flags().Set(attemptsFlagName, "0"))
	assert.Equal(t, 0, resolveEffectiveAttempts(zeroCommand, options, root, config.Pipeline{Attempts: 4}), "an explicit 0 selects the built-in default")

	flagOptions := runCommandOptions{}
	flagCommand := newCommand(&flagOptions)
	require.NoError(t, flagCommand.Flags().Set(attemptsFlagName, "2"))
	assert.Equal(t, 2, resolveEffectiveAttempts(flagCommand, flagOptions, root, config.Pipeline{Attempts: 4}))

	root.Common.Defaults.Attempts = -1
	assert.Equal(t, 0, resolveEffectiveAttempts(newCommand(&options), options, root, config.Pipeline{}))
}

func TestResolveDuration(t *testing.T) {
	var timeout time.Duration
	command := &cobra.Command{Use: "test"}
	command.Flags().DurationVar(&timeout, timeoutFlagName, 0, "")

	assert.Equal(t, time.Minute, resolveDuration(command, timeoutFlagName, timeout, time.Minute))
	require.NoError(t, command.Flags().Set(timeoutFlagName, "5s"))
	assert.Equal(t, 5*time.Second, resolveDuration(command, timeoutFlagName, timeout, time.Minute))
}

func TestResolvePipeline(t *testing.T) {
	root := config.Root{Pipelines: []config.Pipeline{
		{Name: "tables", Enabled: true, Type: "pk/summary", Attempts: 2},
		{Name: "patients", Enabled: false, Type: "pk/individual"},
	}}

	byName, err := resolvePipeline(root, "tables")
	require.NoError(t, err)
	assert.Equal(t, 2, byName.Attempts)

	byType, err := resolvePipeline(root, "pk/summary")
	require.NoError(t, err)
	assert.Equal(t, "tables", byType.Name)

	_, err = resolvePipeline(root, "patients")
	assert.ErrorContains(t, err, "disabled")

	unconfigured, err := resolvePipeline(config.Root{}, "pk/individual")
	require.NoError(t, err)
	assert.Equal(t, config.Pipeline{Name: "pk/individual", Type: "pk/individual", Enabled: true}, unconfigured)

	_, err = resolvePipeline(root, "sort")
	assert.ErrorContains(t, err, `unknown pipeline "sort"`)
}

func TestApplyEnvironment(t *testing.T) {
	newFlags := func() (*pflag.FlagSet, *string, *int, *bool) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		metricsFile := flags.String(metricsFileFlagName, "", "")
		attempts := flags.Int(attemptsFlagName, 0, "")
		continueOnError := flags.Bool(continueOnErrorFlagName, false, "")
		return flags, metricsFile, attempts, continueOnError
	}

	t.Setenv("PKTABLES_METRICS_FILE", "/var/lib/node_exporter/pktables.prom")
	t.Setenv("PKTABLES_ATTEMPTS", "7")
	t.Setenv("PKTABLES_CONTINUE_ON_ERROR", "true")

	flags, metricsFile, attempts, continueOnError := newFlags()
	require.NoError(t, flags.Parse([]string{"--attempts", "2"}))
	require.NoError(t, applyEnvironment(flags))
	assert.Equal(t, "/var/lib/node_exporter/pktables.prom", *metricsFile)
	assert.Equal(t, 2, *attempts, "command line wins over the environment")
	assert.True(t, *continueOnError)

	t.Setenv("PKTABLES_ATTEMPTS", "many")
	flags, _, _, _ = newFlags()
	assert.ErrorContains(t, applyEnvironment(flags), "apply PKTABLES_ATTEMPTS to --attempts")
}
