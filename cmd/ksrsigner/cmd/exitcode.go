package cmd

import (
	"github.com/hashicorp/go-multierror"

	"github.com/kirei/ksrsigner/internal/errs"
)

// Process exit codes (spec §6): 0 success, 1 policy violation,
// 2 malformed input, 3 HSM/signing failure, 4 configuration or
// inventory mismatch.
const (
	exitOK                = 0
	exitPolicyViolation   = 1
	exitMalformedInput    = 2
	exitSigningFailure    = 3
	exitConfigOrInventory = 4
)

// exitCodeFor classifies an error returned from a ceremony run (or
// from config/inventory loading) into the exit code spec §6 assigns
// its kind. Anything not recognized here — a cobra usage error, for
// instance — falls back to exitPolicyViolation, the least surprising
// of the non-zero codes for "something about the input was rejected".
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	// The policy engine aggregates every violation into one
	// multierror.Error; its presence alone, regardless of contents,
	// always means a policy rejection.
	if _, ok := err.(*multierror.Error); ok {
		return exitPolicyViolation
	}
	switch err.(type) {
	case *errs.PolicyViolation, *errs.ChainLinkageFailed:
		return exitPolicyViolation
	case *errs.MalformedXml, *errs.UnsupportedAlgorithm, *errs.DuplicateKeyIdentifier,
		*errs.SchemaViolation, *errs.SignatureVerificationFailed:
		return exitMalformedInput
	case *errs.HsmUnavailable, *errs.KeyNotFound, *errs.AlgorithmMismatch, *errs.SigningFailed:
		return exitSigningFailure
	case *errs.ConfigurationError, *errs.InventoryMismatch:
		return exitConfigOrInventory
	default:
		return exitPolicyViolation
	}
}
