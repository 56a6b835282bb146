package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	opts := &SessionOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start workers and JupyterLab for an interactive session",
		Long: `Creates a run directory, starts the TaskVine worker factory and JupyterLab, ` +
			`and prints how to reach the notebook once it is up. The session ends when the ` +
			`worker factory exits or on SIGINT/SIGTERM; every process group is then stopped ` +
			`and the run directory removed.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			os.Exit(runSession(cmd, opts, modeRun))
		},
	}
	bindSessionFlags(cmd, opts)
	return cmd
}
