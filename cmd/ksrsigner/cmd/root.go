// Package cmd is the ksrsigner command-line surface: a cobra root
// command carrying the shared --config/--debug/--verbose flags,
// grounded on tdns-cli's rootCmd/init()/initConfig() (root.go), plus
// one subcommand per spec §4.9 operation. Every subcommand loads its
// own config.Config via loadConfig rather than a package-global
// cobra.OnInitialize hook, since a load failure here must produce the
// exit code spec §6 names (4) rather than tdns-cli's log.Fatalf.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirei/ksrsigner/internal/config"
	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/logging"
)

var (
	cfgFile string
	debug   bool
	verbose bool
	nowFlag string
)

var RootCmd = &cobra.Command{
	Use:   "ksrsigner",
	Short: "ksrsigner runs the DNSSEC root-zone KSK signing ceremony against an HSM-backed key inventory",
}

// Execute runs the root command, translating any returned error into
// the process exit code spec §6 defines.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, required)")
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().StringVar(&nowFlag, "now", "", "RFC3339 timestamp to treat as \"now\" (default: actual current time)")

	RootCmd.AddCommand(signCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(inventoryCmd)
	RootCmd.AddCommand(schemaCmd)
}

// loadConfig loads the config named by --config and wires up logging
// from it. Every subcommand calls this first.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, &errs.ConfigurationError{Reason: "--config is required"}
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log.File, debug || cfg.Service.Debug, verbose || cfg.Service.Verbose)
	if verbose || cfg.Service.Verbose {
		fmt.Fprintf(os.Stderr, "ksrsigner: loaded config %s (schema=%s domain=%s)\n", cfgFile, cfg.Schema.Name, cfg.Domain)
	}
	return cfg, nil
}

// resolveNow returns the --now override, parsed as RFC3339, or the
// actual current time if it was not given.
func resolveNow() (time.Time, error) {
	if nowFlag == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, nowFlag)
	if err != nil {
		return time.Time{}, &errs.ConfigurationError{Reason: fmt.Sprintf("--now: %v", err)}
	}
	return t, nil
}
