// Verify command checks a sealed bundle for tampering.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/bundle"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle.zip>",
	Short: "Verify a sealed bundle's digest pin and member digests",
	Long: `Verify recomputes the bundle's detached pin and every digest listed in
its MANIFEST.json. All findings are enumerated; a single altered byte
names exactly the member it landed in. Exit status is nonzero when any
finding exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := bundle.Verify(args[0])
		if err != nil {
			fail("verify", err)
		}

		if flagJSON {
			printJSON(report)
		} else {
			for _, f := range report.Findings {
				fmt.Printf("%s  %s\n", f.Kind, f.Arcname)
			}
			fmt.Printf("%s: %d entries checked, %d findings\n", report.Status, report.Checked, len(report.Findings))
		}
		if report.Status == types.VerifyFailed {
			os.Exit(exitUserError)
		}
		return nil
	},
}
