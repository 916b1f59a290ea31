package policy

// NewRequestEngine assembles the checks applicable to a KSR (spec
// §4.5's full table minus the response-only chain checks' inverse —
// chain checks run here because they compare the KSR against the
// previous SKR), honoring cfg's toggles. Structural checks run first,
// then the chain checks, then cryptographic verification followed by
// the signature validity and horizon checks.
func NewRequestEngine(cfg Config) *Engine {
	checks := []Check{AcceptableDomain, NumBundles, NumKeysPerBundle, NumDistinctKeys}
	if cfg.KeysMatchZskPolicy {
		checks = append(checks, KeysMatchZskPolicy)
	}
	checks = append(checks, ApprovedAlgorithms)
	if cfg.SignatureAlgorithmsMatchZskPolicy {
		checks = append(checks, SignatureAlgorithmsMatchZskPolicy)
	}
	if cfg.CheckBundleOverlap {
		checks = append(checks, CheckBundleOverlap)
	}
	if cfg.CheckBundleIntervals {
		checks = append(checks, CheckBundleIntervals)
	}
	if cfg.CheckCycleLength {
		checks = append(checks, CheckCycleLength)
	}
	if cfg.CheckChainKeys {
		checks = append(checks, CheckChainKeys)
	}
	if cfg.CheckChainOverlap {
		checks = append(checks, CheckChainOverlap)
	}
	checks = append(checks, ValidateSignatures)
	if cfg.SignatureValidityMatchZskPolicy {
		checks = append(checks, SignatureValidityMatchZskPolicy)
	}
	checks = append(checks, SignatureExpireHorizon)
	return NewEngine(checks...)
}

// NewResponseEngine assembles the checks applicable to a produced or
// ingested SKR: the same cryptographic and timing machinery as the
// request engine, without the structural bundle-shape checks that only
// constrain the operator-submitted KSR.
func NewResponseEngine(cfg Config) *Engine {
	checks := []Check{ValidateSignatures}
	if cfg.CheckKeysMatchKskOperatorPolicy {
		checks = append(checks, KeysMatchKskPolicy)
	}
	if cfg.SignatureValidityMatchZskPolicy {
		checks = append(checks, SignatureValidityMatchZskPolicy)
	}
	if cfg.CheckBundleOverlap {
		checks = append(checks, CheckBundleOverlap)
	}
	checks = append(checks, SignatureExpireHorizon)
	return NewEngine(checks...)
}
