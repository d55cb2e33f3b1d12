package pktables

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/temirov/pktables/internal/store"
)

type historyCommandOptions struct {
	databasePath string
	limit        int
}

func newHistoryCommand() *cobra.Command {
	options := &historyCommandOptions{limit: defaultHistoryLimit}

	command := &cobra.Command{
		Use:   historyCommandUse,
		Short: historyCommandShort,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}
			return runHistoryCommand(cmd, *options, runID)
		},
	}

	command.Flags().StringVar(&options.databasePath, databaseFlagName, "", databaseFlagUsage)
	command.Flags().IntVar(&options.limit, limitFlagName, defaultHistoryLimit, limitFlagUsage)

	return command
}

func runHistoryCommand(command *cobra.Command, options historyCommandOptions, runID string) error {
	if options.databasePath == "" {
		return errors.New(missingDatabaseFlagErrorMessage)
	}
	database, err := store.Open(options.databasePath)
	if err != nil {
		return fmt.Errorf(openDatabaseErrorFormat, err)
	}
	defer func() { _ = database.Close() }()

	if runID != "" {
		return writeRunSteps(command, database, runID)
	}

	runs, err := database.Runs(command.Context(), options.limit)
	if err != nil {
		return err
	}
	outputWriter := command.OutOrStdout()
	for _, run := range runs {
		_, writeErr := fmt.Fprintf(outputWriter, "%s\t%s\t%s\t(%s, rows=%d, tokens=%d, input=%s)\n",
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Pipeline,
			outcomeLabel(run.Success),
			run.RowCount,
			run.TotalTokens,
			dashIfEmpty(run.Input))
		if writeErr != nil {
			return fmt.Errorf(writeHistoryErrorFormat, writeErr)
		}
	}
	return nil
}

func writeRunSteps(command *cobra.Command, database *store.Store, runID string) error {
	run, err := database.Run(command.Context(), runID)
	if err != nil {
		return err
	}
	steps, err := database.Steps(command.Context(), runID)
	if err != nil {
		return err
	}

	outputWriter := command.OutOrStdout()
	if _, err := fmt.Fprintf(outputWriter, "%s\t%s\t(%s)\n", run.ID, run.Pipeline, outcomeLabel(run.Success)); err != nil {
		return fmt.Errorf(writeHistoryErrorFormat, err)
	}
	for _, step := range steps {
		state := outcomeLabel(step.Success)
		if step.Skipped {
			state = skippedStateLabel
		}
		_, writeErr := fmt.Fprintf(outputWriter, "  %s\t(%s, attempts=%d, tokens=%d)\n", step.Step, state, step.Attempts, step.TokenUsage)
		if writeErr != nil {
			return fmt.Errorf(writeHistoryErrorFormat, writeErr)
		}
	}
	if run.Error != "" {
		if _, err := fmt.Fprintf(outputWriter, "error: %s\n", run.Error); err != nil {
			return fmt.Errorf(writeHistoryErrorFormat, err)
		}
	}
	return nil
}

func outcomeLabel(success bool) string {
	if success {
		return succeededStateLabel
	}
	return failedStateLabel
}
