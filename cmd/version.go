package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewVersionCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "version - print the version and build time",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "nwbmeta %s (built %s)\n", Version, BuildTime)
		},
	}
}

func init() {
	subcommandFns["version"] = NewVersionCommand
}
