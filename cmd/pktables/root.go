package pktables

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewRootCommand builds the command tree. Every flag of every subcommand can
// also be set through a PKTABLES_<FLAG> environment variable; flags given on
// the command line win.
func NewRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:           rootCommandUse,
		Short:         rootCommandShort,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnvironment(cmd.Flags())
		},
	}
	command.AddCommand(newRunCommand(), newListCommand(), newHistoryCommand())
	return command
}

func Execute() error {
	return NewRootCommand().Execute()
}

// applyEnvironment copies PKTABLES_* values into flags the user left unset,
// so "metrics-file" is read from PKTABLES_METRICS_FILE.
func applyEnvironment(flags *pflag.FlagSet) error {
	environment := viper.New()
	environment.SetEnvPrefix(environmentPrefix)
	environment.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	environment.AutomaticEnv()
	if err := environment.BindPFlags(flags); err != nil {
		return fmt.Errorf(bindEnvironmentErrorFormat, environmentPrefix, err)
	}

	var applyErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if applyErr != nil || flag.Changed || !environment.IsSet(flag.Name) {
			return
		}
		if err := flags.Set(flag.Name, environment.GetString(flag.Name)); err != nil {
			variable := environmentPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag.Name, "-", "_"))
			applyErr = fmt.Errorf(applyEnvironmentErrorFormat, variable, flag.Name, err)
		}
	})
	return applyErr
}
