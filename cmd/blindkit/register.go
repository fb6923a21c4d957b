// Register command records a subject on the blinder root.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var (
	registerSex  string
	registerMass float64
)

var registerCmd = &cobra.Command{
	Use:   "register <subject-id>",
	Short: "Register a subject with the blinder",
	Long: `Register appends a subject to the blinder roster. Subject ids are
immutable and unique; registering the same id twice fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := requireBlinderRoot("register")

		subject := types.Subject{
			SubjectID:    args[0],
			Sex:          registerSex,
			MassGrams:    registerMass,
			RegisteredAt: time.Now().UTC(),
		}
		if err := study.Register(root, subject); err != nil {
			fail("register", err)
		}

		if flagJSON {
			printJSON(subject)
		} else {
			fmt.Printf("Registered subject: %s\n", subject.SubjectID)
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerSex, "sex", "", "subject sex")
	registerCmd.Flags().Float64Var(&registerMass, "mass", 0, "subject mass in grams")
}
