package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"go.perlls.io/perlls/server"
)

func fullVersion() string {
	return fmt.Sprintf("%s (%s, %s/%s)", server.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func getVersionCmd(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		Long:  "Show the application version and exit.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(gs.stdOut, "perlls v"+fullVersion())
		},
	}
}
