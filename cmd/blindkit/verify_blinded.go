// Verify-blinded command checks delivered anatomy files against their
// manifest digests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/anatomy"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var verifyBlindedCmd = &cobra.Command{
	Use:   "verify-blinded",
	Short: "Verify blinded anatomy files against the delivery manifest",
	Long: `Verify-blinded recomputes the SHA-256 of every file named in the
experimenter's blinded manifest and reports each missing, unreadable,
or altered file. Exit status is nonzero when any finding exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := requireExperimenterRoot("verify-blinded")

		report, err := anatomy.VerifyBlinded(root)
		if err != nil {
			fail("verify-blinded", err)
		}

		if flagJSON {
			printJSON(report)
		} else {
			for _, f := range report.Findings {
				fmt.Printf("%s  %s\n", f.Kind, f.Arcname)
			}
			fmt.Printf("%s: %d files checked, %d findings\n", report.Status, report.Checked, len(report.Findings))
		}
		if report.Status == types.VerifyFailed {
			os.Exit(exitUserError)
		}
		return nil
	},
}
