package policy

import (
	"bytes"
	"time"

	"github.com/kirei/ksrsigner/internal/canon"
	"github.com/kirei/ksrsigner/internal/model"
)

const (
	algRSASHA256     uint8 = 8
	algECDSAP256     uint8 = 13
	algECDSAP384     uint8 = 14
)

func isECDSA(alg uint8) bool { return alg == algECDSAP256 || alg == algECDSAP384 }

// AcceptableDomain checks KSR.domain ∈ acceptable_domains.
var AcceptableDomain = CheckFunc{CheckName: "AcceptableDomain", Fn: func(ctx *Context) []Violation {
	if !stringIn(ctx.Domain, ctx.Config.AcceptableDomains) {
		return []Violation{{Check: "AcceptableDomain", Reason: "domain " + ctx.Domain + " not in acceptable_domains"}}
	}
	return nil
}}

// NumBundles checks |bundles| == policy.num_bundles.
var NumBundles = CheckFunc{CheckName: "NumBundles", Fn: func(ctx *Context) []Violation {
	if len(ctx.Bundles) != ctx.Config.NumBundles {
		return []Violation{{Check: "NumBundles", Reason: "expected num_bundles"}}
	}
	return nil
}}

// NumKeysPerBundle checks per-slot bundle key count against the
// configured vector.
var NumKeysPerBundle = CheckFunc{CheckName: "NumKeysPerBundle", Fn: func(ctx *Context) []Violation {
	var violations []Violation
	vec := ctx.Config.NumKeysPerBundle
	for i, b := range ctx.Bundles {
		if i >= len(vec) {
			violations = append(violations, Violation{Check: "NumKeysPerBundle", BundleID: b.ID, Reason: "no configured key count for this slot"})
			continue
		}
		if len(b.Keys) != vec[i] {
			violations = append(violations, Violation{Check: "NumKeysPerBundle", BundleID: b.ID, Reason: "key count does not match num_keys_per_bundle for this slot"})
		}
	}
	return violations
}}

// NumDistinctKeys checks the count of distinct public_key octet
// strings across all bundles equals num_different_keys_in_all_bundles.
var NumDistinctKeys = CheckFunc{CheckName: "NumDistinctKeys", Fn: func(ctx *Context) []Violation {
	seen := make(map[string]bool)
	for _, b := range ctx.Bundles {
		for _, k := range b.Keys {
			seen[string(k.PublicKey)] = true
		}
	}
	if len(seen) != ctx.Config.NumDifferentKeysInAllBundles {
		return []Violation{{Check: "NumDistinctKeys", Reason: "distinct public key count does not match num_different_keys_in_all_bundles"}}
	}
	return nil
}}

// algorithmPolicyMatches checks alg/raw against one declared
// algorithm_policy entry. When rsaExponentMatch is false, an RSA
// entry's exponent is ignored and only the key size is compared,
// mirroring kskm's _find_matching_zsk_policy_rsa_alg fallback for
// operators whose KSR carries a non-default public exponent.
func algorithmPolicyMatches(ap model.AlgorithmPolicy, alg uint8, raw []byte, rsaExponentMatch bool) bool {
	if ap.Algorithm != alg {
		return false
	}
	switch {
	case ap.RSA != nil:
		exp, bits, err := decodeRSAPublicKey(raw)
		if err != nil {
			return false
		}
		if roundToRSASize(bits) != ap.RSA.Size {
			return false
		}
		return !rsaExponentMatch || exp == ap.RSA.Exponent
	case ap.ECDSA != nil:
		return len(raw)*8/2 == ap.ECDSA.Size
	case ap.DSA != nil:
		return true // DSA is legacy and not exercised by any fixture; accept on algorithm match alone
	}
	return false
}

// roundToRSASize rounds a modulus bit length up to the nearest
// conventional RSA key size (1024, 2048, 3072, 4096), since RSA moduli are
// not always exactly a round power-of-two bit count.
func roundToRSASize(bits int) int {
	for _, size := range []int{1024, 2048, 3072, 4096} {
		if bits <= size {
			return size
		}
	}
	return bits
}

// KeysMatchZskPolicy checks every Key's algorithm+parameters appear in
// some algorithm_policy entry of the declared ZSK policy.
var KeysMatchZskPolicy = CheckFunc{CheckName: "KeysMatchZskPolicy", Fn: func(ctx *Context) []Violation {
	if ctx.Policy == nil {
		return nil
	}
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, k := range b.Keys {
			matched := false
			for _, ap := range ctx.Policy.AlgorithmPolicies {
				if algorithmPolicyMatches(ap, k.Algorithm, k.PublicKey, ctx.Config.RsaExponentMatchZskPolicy) {
					matched = true
					break
				}
			}
			if !matched {
				violations = append(violations, Violation{
					Check: "KeysMatchZskPolicy", BundleID: b.ID, KeyIdentifier: k.KeyIdentifier,
					Reason: "key algorithm/parameters do not match any declared ZSK algorithm_policy",
				})
			}
		}
	}
	return violations
}}

// KeysMatchKskPolicy checks every published KSK Key's algorithm and
// parameters appear in some algorithm_policy entry of the KSK
// operator's own declared policy, the response-side analogue of
// KeysMatchZskPolicy. A key counts as a KSK here when its SEP flag is
// set; keys without SEP are skipped.
var KeysMatchKskPolicy = CheckFunc{CheckName: "KeysMatchKskPolicy", Fn: func(ctx *Context) []Violation {
	if ctx.Policy == nil {
		return nil
	}
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, k := range b.Keys {
			if k.Flags&model.FlagSEP == 0 {
				continue // not a KSK; the ZSK keys a response bundle echoes are out of scope for this check
			}
			matched := false
			for _, ap := range ctx.Policy.AlgorithmPolicies {
				if algorithmPolicyMatches(ap, k.Algorithm, k.PublicKey, ctx.Config.RsaExponentMatchZskPolicy) {
					matched = true
					break
				}
			}
			if !matched {
				violations = append(violations, Violation{
					Check: "KeysMatchKskPolicy", BundleID: b.ID, KeyIdentifier: k.KeyIdentifier,
					Reason: "KSK algorithm/parameters do not match any declared KSK algorithm_policy",
				})
			}
		}
	}
	return violations
}}

// ApprovedAlgorithms checks every algorithm used is in
// approved_algorithms, RSA size/exponent in the approved sets, and
// ECDSA is restricted unless enable_unsupported_ecdsa.
var ApprovedAlgorithms = CheckFunc{CheckName: "ApprovedAlgorithms", Fn: func(ctx *Context) []Violation {
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, k := range b.Keys {
			approved := uint8In(k.Algorithm, ctx.Config.ApprovedAlgorithms)
			if !approved {
				if isECDSA(k.Algorithm) && ctx.Config.EnableUnsupportedEcdsa {
					continue
				}
				violations = append(violations, Violation{
					Check: "ApprovedAlgorithms", BundleID: b.ID, KeyIdentifier: k.KeyIdentifier,
					Reason: "algorithm not in approved_algorithms",
				})
				continue
			}
			if k.Algorithm == algRSASHA256 {
				exp, bits, err := decodeRSAPublicKey(k.PublicKey)
				if err != nil {
					violations = append(violations, Violation{Check: "ApprovedAlgorithms", BundleID: b.ID, KeyIdentifier: k.KeyIdentifier, Reason: err.Error()})
					continue
				}
				size := roundToRSASize(bits)
				if !intIn(exp, ctx.Config.RsaApprovedExponents) {
					violations = append(violations, Violation{Check: "ApprovedAlgorithms", BundleID: b.ID, KeyIdentifier: k.KeyIdentifier, Reason: "RSA exponent not in rsa_approved_exponents"})
				}
				if !intIn(size, ctx.Config.RsaApprovedKeySizes) {
					violations = append(violations, Violation{Check: "ApprovedAlgorithms", BundleID: b.ID, KeyIdentifier: k.KeyIdentifier, Reason: "RSA key size not in rsa_approved_key_sizes"})
				}
			}
		}
	}
	return violations
}}

// SignatureAlgorithmsMatchZskPolicy checks each Signature's algorithm
// matches its Key's algorithm, and parameters lie within the
// policy-declared bounds.
var SignatureAlgorithmsMatchZskPolicy = CheckFunc{CheckName: "SignatureAlgorithmsMatchZskPolicy", Fn: func(ctx *Context) []Violation {
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, s := range b.Signatures {
			key, ok := b.KeyByIdentifier(s.KeyIdentifier)
			if !ok {
				continue // caught by the XML codec/structural invariants, not this check
			}
			if s.Algorithm != key.Algorithm {
				violations = append(violations, Violation{
					Check: "SignatureAlgorithmsMatchZskPolicy", BundleID: b.ID, KeyIdentifier: s.KeyIdentifier,
					Reason: "signature algorithm does not match referenced key's algorithm",
				})
				continue
			}
			if ctx.Policy == nil {
				continue
			}
			matched := false
			for _, ap := range ctx.Policy.AlgorithmPolicies {
				if algorithmPolicyMatches(ap, key.Algorithm, key.PublicKey, ctx.Config.RsaExponentMatchZskPolicy) {
					matched = true
					break
				}
			}
			if !matched {
				violations = append(violations, Violation{
					Check: "SignatureAlgorithmsMatchZskPolicy", BundleID: b.ID, KeyIdentifier: s.KeyIdentifier,
					Reason: "signature's algorithm parameters are outside policy-declared bounds",
				})
			}
		}
	}
	return violations
}}

// ValidateSignatures verifies, for each Signature in each bundle, that
// it validates against the Key it references over the canonical
// DNSKEY RRset of that bundle.
var ValidateSignatures = CheckFunc{CheckName: "ValidateSignatures", Fn: func(ctx *Context) []Violation {
	if !ctx.Config.ValidateSignatures {
		return nil
	}
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, s := range b.Signatures {
			key, ok := b.KeyByIdentifier(s.KeyIdentifier)
			if !ok {
				continue
			}
			if err := canon.VerifySignature(ctx.Domain, s, key, b.Keys); err != nil {
				violations = append(violations, Violation{
					Check: "ValidateSignatures", BundleID: b.ID, KeyIdentifier: s.KeyIdentifier,
					Reason: err.Error(),
				})
			}
		}
	}
	return violations
}}

// SignatureValidityMatchZskPolicy checks expiration - inception ∈
// [min_signature_validity, max_signature_validity].
var SignatureValidityMatchZskPolicy = CheckFunc{CheckName: "SignatureValidityMatchZskPolicy", Fn: func(ctx *Context) []Violation {
	if ctx.Policy == nil {
		return nil
	}
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, s := range b.Signatures {
			validity := s.SignatureExpiration.Sub(s.SignatureInception)
			if validity < ctx.Policy.MinSignatureValidity || validity > ctx.Policy.MaxSignatureValidity {
				violations = append(violations, Violation{
					Check: "SignatureValidityMatchZskPolicy", BundleID: b.ID, KeyIdentifier: s.KeyIdentifier,
					Reason: "signature validity period outside [min_signature_validity, max_signature_validity]",
				})
			}
		}
	}
	return violations
}}

// CheckBundleOverlap checks, for adjacent bundles i, i+1:
// inception_{i+1} < expiration_i and expiration_i - inception_{i+1} ∈
// [min_validity_overlap, max_validity_overlap].
var CheckBundleOverlap = CheckFunc{CheckName: "CheckBundleOverlap", Fn: func(ctx *Context) []Violation {
	if ctx.Policy == nil {
		return nil
	}
	var violations []Violation
	for i := 0; i+1 < len(ctx.Bundles); i++ {
		cur, next := ctx.Bundles[i], ctx.Bundles[i+1]
		if !next.Inception.Before(cur.Expiration) {
			violations = append(violations, Violation{Check: "CheckBundleOverlap", BundleID: next.ID, Reason: "bundle does not overlap the previous bundle's expiration"})
			continue
		}
		overlap := cur.Expiration.Sub(next.Inception)
		if overlap < ctx.Policy.MinValidityOverlap || overlap > ctx.Policy.MaxValidityOverlap {
			violations = append(violations, Violation{Check: "CheckBundleOverlap", BundleID: next.ID, Reason: "bundle overlap outside [min_validity_overlap, max_validity_overlap]"})
		}
	}
	return violations
}}

// CheckBundleIntervals checks adjacent bundle inception gaps ∈
// [min_bundle_interval, max_bundle_interval].
var CheckBundleIntervals = CheckFunc{CheckName: "CheckBundleIntervals", Fn: func(ctx *Context) []Violation {
	var violations []Violation
	for i := 0; i+1 < len(ctx.Bundles); i++ {
		gap := ctx.Bundles[i+1].Inception.Sub(ctx.Bundles[i].Inception)
		if gap < ctx.Config.MinBundleInterval || gap > ctx.Config.MaxBundleInterval {
			violations = append(violations, Violation{Check: "CheckBundleIntervals", BundleID: ctx.Bundles[i+1].ID, Reason: "bundle inception gap outside [min_bundle_interval, max_bundle_interval]"})
		}
	}
	return violations
}}

// CheckCycleLength checks inception_last - inception_first ∈
// [min_cycle_inception_length, max_cycle_inception_length].
var CheckCycleLength = CheckFunc{CheckName: "CheckCycleLength", Fn: func(ctx *Context) []Violation {
	if len(ctx.Bundles) < 2 {
		return nil
	}
	length := ctx.Bundles[len(ctx.Bundles)-1].Inception.Sub(ctx.Bundles[0].Inception)
	if length < ctx.Config.MinCycleInceptionLength || length > ctx.Config.MaxCycleInceptionLength {
		return []Violation{{Check: "CheckCycleLength", Reason: "cycle inception length outside [min_cycle_inception_length, max_cycle_inception_length]"}}
	}
	return nil
}}

// SignatureExpireHorizon checks that no signature expires more than
// signature_horizon_days after "now".
var SignatureExpireHorizon = CheckFunc{CheckName: "SignatureExpireHorizon", Fn: func(ctx *Context) []Violation {
	if !ctx.Config.SignatureCheckExpireHorizon {
		return nil
	}
	horizon := ctx.Now.Add(time.Duration(ctx.Config.SignatureHorizonDays) * 24 * time.Hour)
	var violations []Violation
	for _, b := range ctx.Bundles {
		for _, s := range b.Signatures {
			if s.SignatureExpiration.After(horizon) {
				violations = append(violations, Violation{
					Check: "SignatureExpireHorizon", BundleID: b.ID, KeyIdentifier: s.KeyIdentifier,
					Reason: "signature expiration exceeds signature_horizon_days from now",
				})
			}
		}
	}
	return violations
}}

// CheckChainKeys checks every ZSK in the previous SKR's last bundle
// appears in the current KSR's first bundle with identical public-key
// bytes. It passes trivially when there is no previous bundle
// (bootstrap ceremony).
var CheckChainKeys = CheckFunc{CheckName: "CheckChainKeys", Fn: func(ctx *Context) []Violation {
	if ctx.PreviousLastBundle == nil || len(ctx.Bundles) == 0 {
		return nil
	}
	first := ctx.Bundles[0]
	var violations []Violation
	for _, prevKey := range ctx.PreviousLastBundle.Keys {
		if prevKey.Flags&model.FlagSEP != 0 {
			continue // KSK material appended by the orchestrator, not part of the ZSK chain
		}
		curKey, ok := first.KeyByIdentifier(prevKey.KeyIdentifier)
		if !ok || !bytes.Equal(curKey.PublicKey, prevKey.PublicKey) {
			violations = append(violations, Violation{
				Check: "CheckChainKeys", BundleID: first.ID, KeyIdentifier: prevKey.KeyIdentifier,
				Reason: "previous SKR's key does not continue unchanged into the current KSR's first bundle",
			})
		}
	}
	return violations
}}

// CheckChainOverlap checks the current KSR's first bundle
// inception/expiration are consistent with the previous SKR's last
// bundle (overlap within policy bounds). It passes trivially on
// bootstrap.
var CheckChainOverlap = CheckFunc{CheckName: "CheckChainOverlap", Fn: func(ctx *Context) []Violation {
	if ctx.PreviousLastBundle == nil || len(ctx.Bundles) == 0 || ctx.Policy == nil {
		return nil
	}
	first := ctx.Bundles[0]
	if !first.Inception.Before(ctx.PreviousLastBundle.Expiration) {
		return []Violation{{Check: "CheckChainOverlap", BundleID: first.ID, Reason: "first bundle does not overlap the previous SKR's last bundle"}}
	}
	overlap := ctx.PreviousLastBundle.Expiration.Sub(first.Inception)
	if overlap < ctx.Policy.MinValidityOverlap || overlap > ctx.Policy.MaxValidityOverlap {
		return []Violation{{Check: "CheckChainOverlap", BundleID: first.ID, Reason: "overlap with previous SKR's last bundle outside [min_validity_overlap, max_validity_overlap]"}}
	}
	return nil
}}
