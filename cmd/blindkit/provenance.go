// Provenance command links derivative artifacts to their parents.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/provenance"
)

var provenanceNote string

var provenanceCmd = &cobra.Command{
	Use:   "provenance <parent> <child>",
	Short: "Record a derivative artifact's link to its parent",
	Long: `Provenance appends a parent-to-child link with both files' digests, so
a cropped or annotated copy of a blinded image stays traceable to the
original it came from.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := requireExperimenterRoot("provenance")

		link, err := provenance.Record(root, args[0], args[1], provenanceNote)
		if err != nil {
			fail("provenance", err)
		}

		if flagJSON {
			printJSON(link)
		} else {
			fmt.Printf("Linked %s -> %s\n", args[0], args[1])
		}
		return nil
	},
}

func init() {
	provenanceCmd.Flags().StringVar(&provenanceNote, "note", "", "free-text note on how the child was derived")
}
