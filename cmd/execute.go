package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// CreateExecuteCmd creates the execute command.
func CreateExecuteCmd() *cobra.Command {
	opts := &SessionOptions{}

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Run a notebook or Python script to completion with workers",
		Long: `Starts the worker factory, executes the notebook in place with nbconvert ` +
			`(or the Python script with --prefer-python), then shuts the session down.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			os.Exit(runSession(cmd, opts, modeExecute))
		},
	}
	bindSessionFlags(cmd, opts)
	return cmd
}
