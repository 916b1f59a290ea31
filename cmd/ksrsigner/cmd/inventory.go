package cmd

import (
	"time"

	"github.com/gookit/goutil/dump"
	"github.com/spf13/cobra"

	"github.com/kirei/ksrsigner/internal/inventory"
	"github.com/kirei/ksrsigner/internal/signer"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "inspect the configured KSK inventory against the HSM",
}

var inventoryReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "reconcile the configured KSK inventory against the HSM and report each identifier's resolved key",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		now, err := resolveNow()
		if err != nil {
			return err
		}

		base, err := newSigner(cfg)
		if err != nil {
			return err
		}
		defer base.Close()

		entries, err := cfg.InventoryEntries()
		if err != nil {
			return err
		}

		forced := map[string]bool{cfg.Schema.Current: true}
		if cfg.Schema.Next != "" {
			forced[cfg.Schema.Next] = true
		}

		reconciled, err := inventory.Reconcile(signer.NewRetryingSigner(base, 30*time.Second), cfg.Domain, entries, now, forced)
		if err != nil {
			return err
		}

		for id, r := range reconciled {
			dump.P(id, r)
		}
		return nil
	},
}

func init() {
	inventoryCmd.AddCommand(inventoryReconcileCmd)
}
