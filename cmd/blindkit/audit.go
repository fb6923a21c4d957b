// Audit command views a root's append-only audit trail.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/audit"
	"github.com/mesh-intelligence/blindkit/pkg/types"
)

var (
	auditRole    string
	auditAction  string
	auditSubject string
	auditStage   string
	auditSince   string
	auditUntil   string
	auditGrep    string
	auditTail    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show audit trail events with optional filters",
	Long: `Audit prints a root's audit events in sequence order. Filters combine
with AND. Time bounds accept RFC 3339 timestamps or YYYY-MM-DD dates.

Example:
  blindkit audit --role blinder --action issue-label --tail 20
  blindkit audit --role experimenter --subject M012 --since 2026-08-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var root, role string
		switch auditRole {
		case "blinder":
			root, role = requireBlinderRoot("audit"), types.RoleBlinder
		case "experimenter":
			root, role = requireExperimenterRoot("audit"), types.RoleExperimenter
		default:
			fmt.Fprintf(os.Stderr, "audit: invalid --role %q (valid: blinder, experimenter)\n", auditRole)
			os.Exit(exitUserError)
		}

		filter := audit.Filter{
			Action:  auditAction,
			Subject: auditSubject,
			Stage:   auditStage,
			Grep:    auditGrep,
			Tail:    auditTail,
		}
		var err error
		if filter.Since, err = parseTimeBound(auditSince); err != nil {
			fmt.Fprintln(os.Stderr, "audit:", err)
			os.Exit(exitUserError)
		}
		if filter.Until, err = parseTimeBound(auditUntil); err != nil {
			fmt.Fprintln(os.Stderr, "audit:", err)
			os.Exit(exitUserError)
		}

		trail, err := audit.Open(root, role)
		if err != nil {
			fail("audit", err)
		}
		events, err := trail.Show(filter)
		if err != nil {
			fail("audit", err)
		}

		if flagJSON {
			printJSON(events)
			return nil
		}
		for _, ev := range events {
			fmt.Println(audit.FormatLine(ev))
		}
		fmt.Printf("%d events\n", len(events))
		return nil
	},
}

// parseTimeBound accepts RFC 3339 or a bare date; empty means unset.
func parseTimeBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected RFC 3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}

func init() {
	auditCmd.Flags().StringVar(&auditRole, "role", "blinder", "which root's trail to show (blinder, experimenter)")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action name")
	auditCmd.Flags().StringVar(&auditSubject, "subject", "", "filter by subject id in the payload")
	auditCmd.Flags().StringVar(&auditStage, "stage", "", "filter by stage in the payload")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "events at or after this time")
	auditCmd.Flags().StringVar(&auditUntil, "until", "", "events at or before this time")
	auditCmd.Flags().StringVar(&auditGrep, "grep", "", "substring match over the rendered line")
	auditCmd.Flags().IntVar(&auditTail, "tail", 0, "show only the last N matching events")
}
