package main

import (
	"os"

	"github.com/smazurov/floability/cmd"
	"github.com/smazurov/floability/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "floability",
		Short: "Run notebook sessions backed by TaskVine workers",
		Long: `floability starts a TaskVine worker factory and a JupyterLab server for one ` +
			`session and reclaims every process group and scratch directory when it ends.`,
		Version:       version.Get().String(),
		SilenceUsage: true,
	}

	root.AddCommand(cmd.CreateRunCmd())
	root.AddCommand(cmd.CreateExecuteCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
