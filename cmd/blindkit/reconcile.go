// Reconcile command matches experimenter receipts to registry codes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Mark registry codes used from logged receipts",
	Long: `Reconcile matches every experimenter receipt to the issued registry
entry for the same subject, stage, and session, and transitions each
unique match to USED with the receipt's digest. Re-running is a no-op
for receipts already applied. Unmatched receipts are reported and kept;
an ambiguous receipt fails the run after the full report prints.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blinderRoot := requireBlinderRoot("reconcile")
		experimenterRoot := requireExperimenterRoot("reconcile")

		report, err := reconcile.Run(blinderRoot, experimenterRoot)
		if err != nil {
			fail("reconcile", err)
		}

		if flagJSON {
			printJSON(report)
		} else {
			for _, t := range report.Transitions {
				fmt.Printf("USED  %s  %s %s (receipt %s)\n", t.Code, t.SubjectID, t.Stage, t.ReceiptID)
			}
			for _, r := range report.Unmatched {
				fmt.Printf("UNMATCHED  %s %s session %d (receipt %s)\n", r.SubjectID, r.Stage, r.Session, r.ReceiptID)
			}
			for _, a := range report.Ambiguous {
				fmt.Printf("AMBIGUOUS  receipt %s matches %v\n", a.Receipt.ReceiptID, a.Candidates)
			}
			fmt.Printf("Applied %d, already applied %d, unmatched %d, ambiguous %d\n",
				len(report.Transitions), report.AlreadyApplied, len(report.Unmatched), len(report.Ambiguous))
		}

		if err := report.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "reconcile:", err)
			os.Exit(exitUserError)
		}
		return nil
	},
}
