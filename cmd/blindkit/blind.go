// Blind command runs anatomy image blinding across both roots.
package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/anatomy"
	"github.com/mesh-intelligence/blindkit/internal/digest"
	"github.com/mesh-intelligence/blindkit/internal/registry"
)

var (
	blindInputRoot string
	blindLenient   bool
	blindSeal      bool
)

var blindCmd = &cobra.Command{
	Use:   "blind",
	Short: "Blind anatomy images into coded folders",
	Long: `Blind walks the input root's subject folders, strips image metadata,
renames each file by its INDEX M-N range under a freshly issued code,
and writes the crossref to the blinder and the code-only manifest to
the experimenter. Perceptual digests guard against content swaps during
the strip.

Strict mode fails on any image without a parseable INDEX token;
--lenient sequences such files after the parsed set. --seal zips the
blinded tree with a detached digest pin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blinderRoot := requireBlinderRoot("blind")
		experimenterRoot := requireExperimenterRoot("blind")

		reg, err := registry.Open(blinderRoot)
		if err != nil {
			fail("blind", err)
		}

		result, err := anatomy.Blind(blinderRoot, experimenterRoot, blindInputRoot, reg, digest.NewComparator(), anatomy.Options{
			Lenient: blindLenient,
			Seal:    blindSeal,
		})
		if err != nil {
			fail("blind", err)
		}

		if flagJSON {
			printJSON(result)
			return nil
		}
		folders := make([]string, 0, len(result.Mapping))
		for folder := range result.Mapping {
			folders = append(folders, folder)
		}
		sort.Strings(folders)
		for _, folder := range folders {
			fmt.Printf("%s -> %s\n", folder, result.Mapping[folder])
		}
		fmt.Printf("Blinded %d files across %d folders\n", result.Files, len(result.Mapping))
		if result.ArchivePath != "" {
			fmt.Printf("Sealed archive: %s\n", result.ArchivePath)
		}
		return nil
	},
}

func init() {
	blindCmd.Flags().StringVar(&blindInputRoot, "input-root", "", "directory of per-subject anatomy folders (required)")
	blindCmd.Flags().BoolVar(&blindLenient, "lenient", false, "sequence files lacking an INDEX M-N token instead of failing")
	blindCmd.Flags().BoolVar(&blindSeal, "seal", false, "zip the blinded tree with a detached digest pin")
	blindCmd.MarkFlagRequired("input-root")
}
