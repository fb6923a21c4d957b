// Root command for the blindkit CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/blindkit/internal/paths"
)

// Exit codes: success, user error (bad input, failed validation,
// integrity finding), system error (I/O, lock contention).
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir        string
	flagBlinderRoot      string
	flagExperimenterRoot string
	flagStudyID          string
	flagJSON             bool
)

// Values loaded from config.yaml by PersistentPreRunE, consulted by the
// resolve* helpers after flags and before environment.
var (
	configBlinderRoot      string
	configExperimenterRoot string
	configStudyID          string
)

var rootCmd = &cobra.Command{
	Use:     "blindkit",
	Short:   "blindkit runs two-party blinded studies",
	Version: version,
	Long: `blindkit manages the blinder and experimenter sides of a blinded
study: deterministic treatment assignment, label issuance, receipt
logging, anatomy image blinding, reconciliation, and tamper-evident
unblinding bundles. Every state change is appended to the acting
root's audit trail.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}
		configBlinderRoot = cfg.GetString(cfgKeyBlinderRoot)
		configExperimenterRoot = cfg.GetString(cfgKeyExperimenterRoot)
		configStudyID = cfg.GetString(cfgKeyStudyID)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir, e.g. ~/.config/blindkit)")
	rootCmd.PersistentFlags().StringVar(&flagBlinderRoot, "blinder-root", "", "blinder root directory")
	rootCmd.PersistentFlags().StringVar(&flagExperimenterRoot, "experimenter-root", "", "experimenter root directory")
	rootCmd.PersistentFlags().StringVar(&flagStudyID, "study-id", "", "study identifier")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(receiptCmd)
	rootCmd.AddCommand(provenanceCmd)
	rootCmd.AddCommand(blindCmd)
	rootCmd.AddCommand(verifyBlindedCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(packageCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(auditCmd)
}

// resolveBlinderRoot follows flag > config.yaml > BLINDKIT_BLINDER_ROOT.
func resolveBlinderRoot() (string, error) {
	return paths.ResolveRoot(flagBlinderRoot, configBlinderRoot, paths.EnvBlinderRoot)
}

// resolveExperimenterRoot follows flag > config.yaml >
// BLINDKIT_EXPERIMENTER_ROOT.
func resolveExperimenterRoot() (string, error) {
	return paths.ResolveRoot(flagExperimenterRoot, configExperimenterRoot, paths.EnvExperimenterRoot)
}

// resolveStudyID follows flag > config.yaml; empty means unset.
func resolveStudyID() string {
	if flagStudyID != "" {
		return flagStudyID
	}
	return configStudyID
}
