package cmd

import (
	"os"

	"github.com/gookit/goutil/dump"
	"github.com/spf13/cobra"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/policy"
	"github.com/kirei/ksrsigner/internal/xmlcodec"
)

var (
	verifySKRPath     string
	verifyPrevSKRPath string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "run response-policy checks against an already-issued SKR, without touching the HSM",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		f, err := os.Open(verifySKRPath)
		if err != nil {
			return &errs.ConfigurationError{Reason: "verify: opening SKR: " + err.Error()}
		}
		defer f.Close()
		skr, err := xmlcodec.Parse(f, cfg.Policy.ApprovedAlgorithms)
		if err != nil {
			return err
		}
		if !skr.IsResponse() {
			return &errs.ConfigurationError{Reason: "verify: document is not an SKR"}
		}

		now, err := resolveNow()
		if err != nil {
			return err
		}

		ctx := &policy.Context{
			Domain:  skr.Domain,
			Bundles: skr.Response.Bundles,
			Policy:  skr.Response.Policy.KSK,
			Now:     now,
			Config:  cfg.Policy,
		}
		engine := policy.NewResponseEngine(cfg.Policy)
		if err := engine.Evaluate(ctx); err != nil {
			return err
		}

		if verifyPrevSKRPath != "" {
			pf, err := os.Open(verifyPrevSKRPath)
			if err != nil {
				return &errs.ConfigurationError{Reason: "verify: opening previous SKR: " + err.Error()}
			}
			defer pf.Close()
			prev, err := xmlcodec.Parse(pf, cfg.Policy.ApprovedAlgorithms)
			if err != nil {
				return err
			}
			if !prev.IsResponse() {
				return &errs.ConfigurationError{Reason: "verify: previous document is not an SKR"}
			}
			prevCtx := &policy.Context{
				Domain:  prev.Domain,
				Bundles: prev.Response.Bundles,
				Policy:  prev.Response.Policy.KSK,
				Now:     now,
				Config:  cfg.Policy,
			}
			if err := engine.Evaluate(prevCtx); err != nil {
				return err
			}
		}

		dump.P("SKR verified OK: " + skr.ID)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySKRPath, "skr", "", "path to the SKR XML to verify (required)")
	verifyCmd.Flags().StringVar(&verifyPrevSKRPath, "prev-skr", "", "path to the previously issued SKR XML (optional)")
	_ = verifyCmd.MarkFlagRequired("skr")
}
