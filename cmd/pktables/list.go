package pktables

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/temirov/pktables/internal/config"
	"github.com/temirov/pktables/internal/extractor"
)

type listCommandOptions struct {
	includeDisabled bool
	configPath      string
}

func newListCommand() *cobra.Command {
	options := &listCommandOptions{configPath: defaultConfigPath}

	command := &cobra.Command{
		Use:   listCommandUse,
		Short: listCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListCommand(cmd, *options)
		},
	}

	command.Flags().BoolVar(&options.includeDisabled, allFlagName, false, allFlagUsage)
	command.Flags().StringVar(&options.configPath, configFlagName, defaultConfigPath, configFlagUsage)

	return command
}

func runListCommand(command *cobra.Command, options listCommandOptions) error {
	rootConfiguration, _, err := loadRootConfiguration(options.configPath)
	if err != nil {
		return err
	}

	// types without a configured entry still run with the defaults
	configuredTypes := make(map[string]bool, len(rootConfiguration.Pipelines))
	for _, pipelineConfiguration := range rootConfiguration.Pipelines {
		configuredTypes[pipelineConfiguration.Type] = true
	}
	listed := slices.Clone(rootConfiguration.Pipelines)
	for _, registered := range extractor.DefaultRegistry().Names() {
		if !configuredTypes[registered] {
			listed = append(listed, config.Pipeline{Name: registered, Type: registered, Enabled: true})
		}
	}

	outputWriter := command.OutOrStdout()
	for _, pipelineConfiguration := range listed {
		if !options.includeDisabled && !pipelineConfiguration.Enabled {
			continue
		}

		stateLabel := enabledStateLabel
		if !pipelineConfiguration.Enabled {
			stateLabel = disabledStateLabel
		}

		model := rootConfiguration.ModelFor(pipelineConfiguration)
		_, writeErr := fmt.Fprintf(outputWriter, "%s\t(%s, type=%s, model=%s)\n",
			pipelineConfiguration.Name, stateLabel, pipelineConfiguration.Type, dashIfEmpty(model.Name))
		if writeErr != nil {
			return fmt.Errorf(writeListingErrorFormat, writeErr)
		}
	}

	return nil
}

func dashIfEmpty(value string) string {
	if value == "" {
		return dashPlaceholder
	}
	return value
}
