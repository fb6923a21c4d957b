// Issue command mints blinded label codes from the blinder registry.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/registry"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var (
	issueSession int
	issueVoid    string
)

var issueCmd = &cobra.Command{
	Use:   "issue [<subject-id> <stage>]",
	Short: "Issue a blinded label code, or void one with --void",
	Long: `Issue mints a fresh code for a subject and stage and records it as
ISSUED in the registry. Codes are unique across the full registry
history, voided and superseded entries included.

With --void CODE no new code is minted; the named code is retired
instead. Voiding is idempotent and a voided code is never reused.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := requireBlinderRoot("issue")

		reg, err := registry.Open(root)
		if err != nil {
			fail("issue", err)
		}

		if issueVoid != "" {
			if len(args) != 0 {
				fail("issue", fmt.Errorf("--void takes no positional arguments: %w", types.ErrValidation))
			}
			if err := reg.Void(issueVoid); err != nil {
				fail("void", err)
			}
			fmt.Printf("Voided code: %s\n", issueVoid)
			return nil
		}

		if len(args) != 2 {
			fail("issue", fmt.Errorf("expected <subject-id> <stage>: %w", types.ErrValidation))
		}
		entry, err := reg.Issue(args[0], args[1], issueSession)
		if err != nil {
			fail("issue", err)
		}

		if flagJSON {
			printJSON(entry)
		} else {
			fmt.Printf("Issued %s for %s %s session %d\n", entry.Code, entry.SubjectID, entry.Stage, entry.Session)
		}
		return nil
	},
}

func init() {
	issueCmd.Flags().IntVar(&issueSession, "session", 0, "session number for repeated measures")
	issueCmd.Flags().StringVar(&issueVoid, "void", "", "void this code instead of issuing")
}
