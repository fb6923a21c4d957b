// Version command for the blindkit CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is the toolkit release string printed by the version command
// and embedded in cobra's --version output.
const version = "4.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the blindkit version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("blindkit", version)
	},
}
