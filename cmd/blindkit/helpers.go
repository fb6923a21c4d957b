// Shared helpers for blindkit CLI commands.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// userErrors are failures caused by the operator's input or the study's
// current state; they exit 1. Everything else is a system error and
// exits 2.
var userErrors = []error{
	types.ErrValidation,
	types.ErrConfig,
	types.ErrNotFound,
	types.ErrDuplicate,
	types.ErrAlreadyAssigned,
	types.ErrAlreadyUsed,
	types.ErrVoided,
	types.ErrDependencyNotReady,
	types.ErrAmbiguousMatch,
	types.ErrUnsupportedFormat,
	types.ErrIntegrity,
}

// fail prints the error and exits with the matching code. It never
// returns.
func fail(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, err)
	for _, ue := range userErrors {
		if errors.Is(err, ue) {
			os.Exit(exitUserError)
		}
	}
	os.Exit(exitSysError)
}

// requireBlinderRoot resolves the blinder root and fails the command if
// it is unset.
func requireBlinderRoot(prefix string) string {
	root, err := resolveBlinderRoot()
	if err != nil {
		fail(prefix, err)
	}
	if root == "" {
		fail(prefix, fmt.Errorf("blinder root not set (flag, config.yaml, or BLINDKIT_BLINDER_ROOT): %w", types.ErrConfig))
	}
	return root
}

// requireExperimenterRoot resolves the experimenter root and fails the
// command if it is unset.
func requireExperimenterRoot(prefix string) string {
	root, err := resolveExperimenterRoot()
	if err != nil {
		fail(prefix, err)
	}
	if root == "" {
		fail(prefix, fmt.Errorf("experimenter root not set (flag, config.yaml, or BLINDKIT_EXPERIMENTER_ROOT): %w", types.ErrConfig))
	}
	return root
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("marshal JSON", err)
	}
	fmt.Println(string(out))
}
