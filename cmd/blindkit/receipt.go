// Receipt command logs procedure receipts on the experimenter root.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/receipt"
)

var (
	receiptSession int
	receiptPhoto   string
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <subject-id> <stage>",
	Short: "Log a procedure receipt with its photo digest",
	Long: `Receipt records that a procedure happened for a subject and stage.
The photo is copied under media/photos and pinned by SHA-256; the
receipt's own canonical digest later drives reconciliation against the
blinder registry.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := requireExperimenterRoot("receipt")

		rec, err := receipt.Log(root, args[0], args[1], receiptSession, receiptPhoto)
		if err != nil {
			fail("receipt", err)
		}

		if flagJSON {
			printJSON(rec)
		} else {
			fmt.Printf("Logged receipt %s for %s %s session %d\n", rec.ReceiptID, rec.SubjectID, rec.Stage, rec.Session)
		}
		return nil
	},
}

func init() {
	receiptCmd.Flags().IntVar(&receiptSession, "session", 0, "session number for repeated measures")
	receiptCmd.Flags().StringVar(&receiptPhoto, "photo", "", "path to the receipt photo (required)")
	receiptCmd.MarkFlagRequired("photo")
}
