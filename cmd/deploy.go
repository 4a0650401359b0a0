package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/tripdata/tdk/deploy"
)

// DeployMain is wrapped by NewDeployCommand and only exported for testing purposes.
var DeployMain *deploy.Main

// NewDeployCommand returns a new cobra command wrapping DeployMain.
func NewDeployCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	DeployMain = deploy.NewMain()
	DeployMain.Stdout = stdout
	deployCommand := &cobra.Command{
		Use:   "deploy",
		Short: "deploy - describe a scheduled flow running in a docker container",
		Long: `Writes a YAML deployment descriptor which runs --flow with the
given color, year and months in the container described by --block.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			DeployMain.Config = configFrom(cmd)
			return DeployMain.Run()
		},
	}
	flags := deployCommand.Flags()
	err = addFlags(flags, DeployMain)
	if err != nil {
		panic(err)
	}
	return deployCommand
}

func init() {
	subcommandFns["deploy"] = NewDeployCommand
}
