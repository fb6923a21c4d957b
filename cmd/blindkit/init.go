// Init command creates one or both study roots.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var initOnly string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the blinder and experimenter roots",
	Long: `Init creates the directory layout, study metadata, and empty audit
trail for each requested root. Re-running against an existing root with
the same study id and role is a no-op; a mismatch fails the command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		studyID := resolveStudyID()
		if studyID == "" {
			fmt.Fprintln(os.Stderr, "init: --study-id is required")
			os.Exit(exitUserError)
		}

		doBlinder := initOnly == "both" || initOnly == "blinder"
		doExperimenter := initOnly == "both" || initOnly == "experimenter"
		if !doBlinder && !doExperimenter {
			fmt.Fprintf(os.Stderr, "init: invalid --only %q (valid: blinder, experimenter, both)\n", initOnly)
			os.Exit(exitUserError)
		}

		if doBlinder {
			root := requireBlinderRoot("init")
			if err := study.InitBlinder(root, studyID); err != nil {
				fail("init blinder", err)
			}
			fmt.Printf("Initialized %s root: %s\n", types.RoleBlinder, root)
		}
		if doExperimenter {
			root := requireExperimenterRoot("init")
			if err := study.InitExperimenter(root, studyID); err != nil {
				fail("init experimenter", err)
			}
			fmt.Printf("Initialized %s root: %s\n", types.RoleExperimenter, root)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initOnly, "only", "both", "which root to initialize (blinder, experimenter, both)")
}
