package cmd

import (
	"fmt"

	"github.com/kirei/ksrsigner/internal/config"
	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/signer"
)

// newSigner builds the base Signer named by the config's hsm.driver.
// "soft" is the file-based signer used for development and testing;
// "pkcs11" is reserved for a real HSM binding, out of scope for the
// core (spec §1) and rejected here rather than left to fail deep
// inside a ceremony run.
func newSigner(cfg *config.Config) (signer.Signer, error) {
	switch cfg.HSM.Driver {
	case "soft":
		return signer.NewFileSigner(cfg.HSM.Directory), nil
	default:
		return nil, &errs.ConfigurationError{Reason: fmt.Sprintf("hsm.driver %q is not implemented by this build", cfg.HSM.Driver)}
	}
}
