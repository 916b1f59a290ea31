package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/gookit/goutil/dump"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/kirei/ksrsigner/internal/auditlog"
	"github.com/kirei/ksrsigner/internal/ceremony"
	"github.com/kirei/ksrsigner/internal/signer"
)

var (
	signKSRPath     string
	signPrevSKRPath string
	signOutPath     string
	signAuditPath   string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "verify a KSR against policy and the previous SKR, then sign it into a new SKR",
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

		orch := &ceremony.Orchestrator{
			Signer:         signer.NewRetryingSigner(base, 30*time.Second),
			Domain:         cfg.Domain,
			SchemaName:     cfg.Schema.Name,
			SchemaParams:   cfg.SchemaParams(),
			SchemaOverride: cfg.SchemaOverrides[cfg.Schema.Name],
			Inventory:      entries,
			KSKPolicy:      cfg.KSKSignaturePolicy(),
			PolicyConfig:   cfg.Policy,
		}

		report, runErr := orch.RunFiles(signPrevSKRPath, signKSRPath, signOutPath, cfg.Policy.ApprovedAlgorithms, now)

		if signAuditPath != "" {
			if auditErr := recordAudit(signAuditPath, report, runErr, now); auditErr != nil {
				fmt.Fprintf(os.Stderr, "ksrsigner: audit log write failed: %v\n", auditErr)
			}
		}

		if runErr != nil {
			return runErr
		}

		dump.P(report)
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signKSRPath, "ksr", "", "path to the KSR XML to sign (required)")
	signCmd.Flags().StringVar(&signPrevSKRPath, "prev-skr", "", "path to the previously issued SKR XML (omit only for a bootstrap ceremony)")
	signCmd.Flags().StringVar(&signOutPath, "out", "", "path to write the produced SKR XML (required)")
	signCmd.Flags().StringVar(&signAuditPath, "audit-db", "", "path to the SQLite ceremony audit ledger (optional)")
	_ = signCmd.MarkFlagRequired("ksr")
	_ = signCmd.MarkFlagRequired("out")
}

func recordAudit(path string, report *ceremony.CeremonyReport, runErr error, now time.Time) error {
	db, err := auditlog.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if runErr == nil {
		return db.RecordSuccess(report, now)
	}

	outcome := auditlog.OutcomeFailed
	violationCount := 0
	if exitCodeFor(runErr) == exitPolicyViolation {
		outcome = auditlog.OutcomePolicyRejected
		violationCount = 1
		if merr, ok := runErr.(*multierror.Error); ok {
			violationCount = len(merr.Errors)
		}
	}
	ksrID, ksrSerial := "", int64(0)
	if report != nil {
		ksrID, ksrSerial = report.KSRID, report.KSRSerial
	}
	return db.RecordFailure(ksrID, ksrSerial, outcome, violationCount, runErr.Error(), now)
}
