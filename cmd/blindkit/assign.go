// Assign command runs deterministic treatment assignment for a stage.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/assign"
	"github.com/mesh-intelligence/blindkit/internal/study"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var (
	assignWeights   string
	assignDateSeed  string
	assignDependsOn string
)

var assignCmd = &cobra.Command{
	Use:   "assign <stage>",
	Short: "Assign unassigned subjects to categories for a stage",
	Long: `Assign draws a seeded permutation over every registered subject that
has no record for the stage and fills category quotas from the weight
ratio. Subjects already assigned are untouched, so re-running after new
registrations expands the roster without reshuffling prior draws.

Weights are key=value pairs, e.g. --weights INFECTED=3,CONTROL=1.
A dependency forces a category from a prior stage's outcome:
--depends-on VIRAL:INFECTED:TREATED forces TREATED at this stage for
every subject assigned INFECTED at VIRAL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := requireBlinderRoot("assign")

		meta, err := study.ReadMeta(root)
		if err != nil {
			fail("assign", err)
		}

		weights, err := parseWeights(assignWeights)
		if err != nil {
			fmt.Fprintln(os.Stderr, "assign:", err)
			os.Exit(exitUserError)
		}

		req := assign.Request{
			Stage:    args[0],
			DateSeed: assignDateSeed,
			Weights:  weights,
		}
		if assignDependsOn != "" {
			dep, err := parseDependency(assignDependsOn)
			if err != nil {
				fmt.Fprintln(os.Stderr, "assign:", err)
				os.Exit(exitUserError)
			}
			req.Dependency = &dep
		}

		result, err := assign.Run(root, meta.StudyID, req)
		if err != nil {
			fail("assign", err)
		}

		if flagJSON {
			printJSON(result)
			return nil
		}
		for _, rec := range result.New {
			mark := ""
			if rec.Forced {
				mark = " (forced)"
			}
			fmt.Printf("%s  %s -> %s%s\n", rec.Stage, rec.SubjectID, rec.Category, mark)
		}
		fmt.Printf("Assigned %d subjects, skipped %d already assigned\n", len(result.New), len(result.Skipped))
		return nil
	},
}

// parseWeights parses "A=3,B=1" into the category weight map.
func parseWeights(s string) (map[string]int, error) {
	if s == "" {
		return nil, fmt.Errorf("--weights is required (e.g. INFECTED=3,CONTROL=1)")
	}
	weights := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("invalid weight %q (expected CATEGORY=N)", part)
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %v", part, err)
		}
		weights[kv[0]] = n
	}
	return weights, nil
}

// parseDependency parses "stage:when:then".
func parseDependency(s string) (types.Dependency, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return types.Dependency{}, fmt.Errorf("invalid --depends-on %q (expected STAGE:WHEN:THEN)", s)
	}
	return types.Dependency{Stage: parts[0], When: parts[1], Then: parts[2]}, nil
}

func init() {
	assignCmd.Flags().StringVar(&assignWeights, "weights", "", "category ratio weights, e.g. INFECTED=3,CONTROL=1 (required)")
	assignCmd.Flags().StringVar(&assignDateSeed, "date-seed", "", "date component of the deterministic seed (default: today)")
	assignCmd.Flags().StringVar(&assignDependsOn, "depends-on", "", "dependency rule STAGE:WHEN:THEN")
	assignCmd.MarkFlagRequired("weights")
}
