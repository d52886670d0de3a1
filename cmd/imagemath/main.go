// Command imagemath is the command line front-end to the scripting engine:
// syntax checking, parameter inspection, shift collection and standalone
// evaluation of .math scripts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "imagemath",
		Short:         "ImageMath script tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(checkCommand())
	root.AddCommand(paramsCommand())
	root.AddCommand(shiftsCommand())
	root.AddCommand(evalCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
