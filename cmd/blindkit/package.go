// Package command seals the unblinding bundle.
package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/bundle"
)

var packageOut string

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Seal registry, crossref, receipts, and audit trails into a bundle",
	Long: `Package snapshots both roots' logs and manifests into a zip with an
internal MANIFEST.json of member digests and a detached .sha256 pin.
The bundle includes a reconciliation report so the unblinding party
sees unmatched receipts without access to either root.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blinderRoot := requireBlinderRoot("package")
		experimenterRoot := requireExperimenterRoot("package")

		out := packageOut
		if out == "" {
			name := fmt.Sprintf("unblinding_%s.zip", time.Now().UTC().Format("20060102T150405Z"))
			out = filepath.Join(blinderRoot, "archives", name)
		}

		path, err := bundle.Package(blinderRoot, experimenterRoot, out)
		if err != nil {
			fail("package", err)
		}
		fmt.Printf("Sealed bundle: %s\n", path)
		fmt.Printf("Digest pin:    %s.sha256\n", path)
		return nil
	},
}

func init() {
	packageCmd.Flags().StringVar(&packageOut, "out", "", "bundle output path (default: <blinder-root>/archives/unblinding_<timestamp>.zip)")
}
