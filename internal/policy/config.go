package policy

import "time"

// Config is the full configuration surface of the policy engine (spec
// §6), with every recognized option given an explicit field so unknown
// keys loaded from YAML are rejected loudly rather than silently
// ignored.
type Config struct {
	NumBundles                       int           `mapstructure:"num_bundles"`
	NumKeysPerBundle                 []int         `mapstructure:"num_keys_per_bundle"`
	NumDifferentKeysInAllBundles     int           `mapstructure:"num_different_keys_in_all_bundles"`
	AcceptableDomains                []string      `mapstructure:"acceptable_domains"`
	ValidateSignatures               bool          `mapstructure:"validate_signatures"`
	KeysMatchZskPolicy                bool         `mapstructure:"keys_match_zsk_policy"`
	EnableUnsupportedEcdsa            bool         `mapstructure:"enable_unsupported_ecdsa"`
	CheckCycleLength                  bool         `mapstructure:"check_cycle_length"`
	MinCycleInceptionLength           time.Duration `mapstructure:"min_cycle_inception_length"`
	MaxCycleInceptionLength           time.Duration `mapstructure:"max_cycle_inception_length"`
	MinBundleInterval                 time.Duration `mapstructure:"min_bundle_interval"`
	MaxBundleInterval                 time.Duration `mapstructure:"max_bundle_interval"`
	RsaExponentMatchZskPolicy         bool         `mapstructure:"rsa_exponent_match_zsk_policy"`
	CheckBundleOverlap                bool         `mapstructure:"check_bundle_overlap"`
	SignatureValidityMatchZskPolicy   bool         `mapstructure:"signature_validity_match_zsk_policy"`
	SignatureAlgorithmsMatchZskPolicy bool         `mapstructure:"signature_algorithms_match_zsk_policy"`
	CheckKeysMatchKskOperatorPolicy   bool         `mapstructure:"check_keys_match_ksk_operator_policy"`
	DnsTtl                            uint32       `mapstructure:"dns_ttl"` // 0 means "use ksk_policy.ttl"
	SignatureCheckExpireHorizon       bool         `mapstructure:"signature_check_expire_horizon"`
	SignatureHorizonDays              int          `mapstructure:"signature_horizon_days"`
	CheckBundleIntervals              bool         `mapstructure:"check_bundle_intervals"`
	CheckChainKeys                    bool         `mapstructure:"check_chain_keys"`
	CheckChainOverlap                 bool         `mapstructure:"check_chain_overlap"`
	ApprovedAlgorithms                []uint8      `mapstructure:"approved_algorithms"`
	RsaApprovedExponents               []int        `mapstructure:"rsa_approved_exponents"`
	RsaApprovedKeySizes                []int        `mapstructure:"rsa_approved_key_sizes"`
}

// DefaultConfig returns the operational-profile defaults from spec §6.
// The open question of signature_check_expire_horizon's default is
// resolved here in favor of the operational profile (true): the core
// must not silently disable a cryptographic horizon guard, even though
// some test profiles in the source disable it explicitly.
func DefaultConfig() Config {
	days := func(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
	return Config{
		NumBundles:                   9,
		NumKeysPerBundle:             []int{2, 1, 1, 1, 1, 1, 1, 1, 2},
		NumDifferentKeysInAllBundles: 3,
		AcceptableDomains:            []string{"."},
		ValidateSignatures:           true,
		KeysMatchZskPolicy:           true,
		EnableUnsupportedEcdsa:       false,
		CheckCycleLength:             true,
		MinCycleInceptionLength:      days(79),
		MaxCycleInceptionLength:      days(81),
		MinBundleInterval:            days(9),
		MaxBundleInterval:            days(11),
		RsaExponentMatchZskPolicy:    true,
		CheckBundleOverlap:           true,
		SignatureValidityMatchZskPolicy:   true,
		SignatureAlgorithmsMatchZskPolicy: true,
		CheckKeysMatchKskOperatorPolicy:   true,
		DnsTtl:                       0,
		SignatureCheckExpireHorizon:  true,
		SignatureHorizonDays:         180,
		CheckBundleIntervals:         true,
		CheckChainKeys:               true,
		CheckChainOverlap:            true,
		ApprovedAlgorithms:           []uint8{8}, // RSASHA256
		RsaApprovedExponents:         []int{65537},
		RsaApprovedKeySizes:          []int{2048},
	}
}

func intIn(v int, set []int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func uint8In(v uint8, set []uint8) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func stringIn(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
