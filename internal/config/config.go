// Package config loads the ceremony's YAML configuration surface (spec
// §6) the way tdns.ParseConfig loads tdnsd's: spf13/viper for the file,
// mitchellh/mapstructure (viper's own decoder) for the struct, and
// go-playground/validator/v10 for required-field checks. Unknown keys
// are rejected loudly via UnmarshalExact, catching config typos before
// a ceremony ever reaches the HSM. The HSM PIN never lives in the YAML
// file; it is read from the environment, optionally seeded for local
// development from a .env file with joho/godotenv.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/inventory"
	"github.com/kirei/ksrsigner/internal/logging"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/policy"
	"github.com/kirei/ksrsigner/internal/schema"
	"github.com/kirei/ksrsigner/internal/xmlcodec"
)

// Config is the top-level configuration for one ksrsigner instance.
type Config struct {
	Service         ServiceConfig            `mapstructure:"service" validate:"required"`
	Log             LogConfig                `mapstructure:"log" validate:"required"`
	HSM             HSMConfig                `mapstructure:"hsm" validate:"required"`
	Domain          string                   `mapstructure:"domain" validate:"required"`
	Schema          SchemaConfig             `mapstructure:"schema" validate:"required"`
	Inventory       []InventoryEntryConfig   `mapstructure:"inventory" validate:"required,min=1,dive"`
	SchemaOverrides map[string][]schema.Slot `mapstructure:"schema_overrides"`
	Policy          policy.Config            `mapstructure:"policy"`
	KSK             KSKPolicyConfig          `mapstructure:"ksk_policy" validate:"required"`

	// HSMPin is populated by Load from the environment, never from YAML.
	HSMPin logging.Secret `mapstructure:"-"`
}

// KSKPolicyConfig is the KSK operator's own declared signature policy
// (spec §4.2's ResponsePolicy.KSK): unlike the ZSK operator's policy,
// which arrives inside every KSR, this side of the ceremony has no
// document to read it from, so it is a first-class config section.
type KSKPolicyConfig struct {
	PublishSafety        time.Duration           `mapstructure:"publish_safety"`
	RetireSafety         time.Duration           `mapstructure:"retire_safety"`
	MaxSignatureValidity time.Duration           `mapstructure:"max_signature_validity" validate:"required"`
	MinSignatureValidity time.Duration           `mapstructure:"min_signature_validity" validate:"required"`
	MaxValidityOverlap   time.Duration           `mapstructure:"max_validity_overlap"`
	MinValidityOverlap   time.Duration           `mapstructure:"min_validity_overlap"`
	AlgorithmPolicies    []AlgorithmPolicyConfig `mapstructure:"algorithm_policies" validate:"required,min=1,dive"`

	// Ttl is the KSK operator's declared DNSKEY RR TTL, the fallback a
	// ceremony uses for published KSKs when policy.dns_ttl is 0 (spec
	// §6, dns_ttl{0 -> ksk_policy.ttl}). It is required in the config;
	// no default is applied.
	Ttl time.Duration `mapstructure:"ttl" validate:"required"`
}

// AlgorithmPolicyConfig is the YAML shape of one model.AlgorithmPolicy.
// Exactly one of RSA, DSA, ECDSA should be set for a given algorithm
// number. Nothing enforces that: KSKSignaturePolicy copies every set
// field, and the policy engine compares a key against the first of
// RSA, ECDSA, DSA that is set.
type AlgorithmPolicyConfig struct {
	Algorithm uint8              `mapstructure:"algorithm" validate:"required"`
	RSA       *RSAParamsConfig   `mapstructure:"rsa"`
	DSA       *DSAParamsConfig   `mapstructure:"dsa"`
	ECDSA     *ECDSAParamsConfig `mapstructure:"ecdsa"`
}

type RSAParamsConfig struct {
	Size     int `mapstructure:"size"`
	Exponent int `mapstructure:"exponent"`
}

type DSAParamsConfig struct {
	Size int `mapstructure:"size"`
}

type ECDSAParamsConfig struct {
	Size int `mapstructure:"size"`
}

// KSKSignaturePolicy converts the configured KSK policy to the model
// type the orchestrator's ResponsePolicy.KSK field carries.
func (c *Config) KSKSignaturePolicy() *model.SignaturePolicy {
	algs := make([]model.AlgorithmPolicy, len(c.KSK.AlgorithmPolicies))
	for i, a := range c.KSK.AlgorithmPolicies {
		ap := model.AlgorithmPolicy{Algorithm: a.Algorithm}
		if a.RSA != nil {
			ap.RSA = &model.RSAParams{Size: a.RSA.Size, Exponent: a.RSA.Exponent}
		}
		if a.DSA != nil {
			ap.DSA = &model.DSAParams{Size: a.DSA.Size}
		}
		if a.ECDSA != nil {
			ap.ECDSA = &model.ECDSAParams{Size: a.ECDSA.Size}
		}
		algs[i] = ap
	}
	return &model.SignaturePolicy{
		PublishSafety:        c.KSK.PublishSafety,
		RetireSafety:         c.KSK.RetireSafety,
		MaxSignatureValidity: c.KSK.MaxSignatureValidity,
		MinSignatureValidity: c.KSK.MinSignatureValidity,
		MaxValidityOverlap:   c.KSK.MaxValidityOverlap,
		MinValidityOverlap:   c.KSK.MinValidityOverlap,
		AlgorithmPolicies:    algs,
		Ttl:                  c.KSK.Ttl,
	}
}

type ServiceConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Debug   bool   `mapstructure:"debug"`
	Verbose bool   `mapstructure:"verbose"`
}

type LogConfig struct {
	File string `mapstructure:"file" validate:"required"`
}

// HSMConfig selects a Signer implementation and its secret material.
// Driver "soft" uses the file-based signer over Directory; "pkcs11" is
// reserved for a real HSM binding, out of scope for the core (spec §1).
type HSMConfig struct {
	Driver    string `mapstructure:"driver" validate:"required,oneof=soft pkcs11"`
	Directory string `mapstructure:"directory"`
	Module    string `mapstructure:"module"`
	PinEnvVar string `mapstructure:"pin_env_var" validate:"required"`
}

// SchemaConfig names the schema this instance signs with and the KSK
// inventory identifiers that play the role of "current" and "next".
type SchemaConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Current string `mapstructure:"current" validate:"required"`
	Next    string `mapstructure:"next"`
}

// InventoryEntryConfig is the YAML shape of one inventory.Entry. DSSha256
// is hex-encoded in config; comment is carried for human reporting only
// (supplemented from original_source/kskm/common's KSK.comment field),
// never consulted by any check.
type InventoryEntryConfig struct {
	Identifier string     `mapstructure:"identifier" validate:"required"`
	Comment    string     `mapstructure:"comment"`
	Label      string     `mapstructure:"label" validate:"required"`
	KeyTag     uint16     `mapstructure:"key_tag" validate:"required"`
	Algorithm  uint8      `mapstructure:"algorithm" validate:"required"`
	ValidFrom  time.Time  `mapstructure:"valid_from" validate:"required"`
	ValidUntil *time.Time `mapstructure:"valid_until"`
	DSSha256   string     `mapstructure:"ds_sha256"`
}

// InventoryEntries converts the configured entries to the inventory
// package's Entry type, decoding the hex DS digest.
func (c *Config) InventoryEntries() ([]inventory.Entry, error) {
	out := make([]inventory.Entry, 0, len(c.Inventory))
	for _, e := range c.Inventory {
		var ds []byte
		if e.DSSha256 != "" {
			var err error
			ds, err = hex.DecodeString(e.DSSha256)
			if err != nil {
				return nil, &errs.ConfigurationError{Reason: fmt.Sprintf("config: inventory entry %q: ds_sha256: %v", e.Identifier, err)}
			}
		}
		out = append(out, inventory.Entry{
			Identifier:  e.Identifier,
			Description: e.Comment,
			Label:       e.Label,
			KeyTag:      e.KeyTag,
			Algorithm:   e.Algorithm,
			ValidFrom:   e.ValidFrom,
			ValidUntil:  e.ValidUntil,
			DSSha256:    ds,
		})
	}
	return out, nil
}

// SchemaParams builds the schema.Params this instance's SchemaConfig
// names.
func (c *Config) SchemaParams() schema.Params {
	return schema.Params{Current: c.Schema.Current, Next: c.Schema.Next}
}

// Load reads and validates the configuration at path, resolving the
// HSM PIN from the environment afterward. A .env file in the working
// directory is loaded first, best-effort, purely as a developer
// convenience for local ceremonies; its absence is never an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, &errs.ConfigurationError{Reason: fmt.Sprintf("config: reading %s: %v", path, err)}
	}

	// Policy options absent from the file keep their DefaultConfig values.
	cfg := Config{Policy: policy.DefaultConfig()}
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		iso8601DurationHookFunc,
		mapstructure.StringToTimeHookFunc(time.RFC3339),
	)
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, &errs.ConfigurationError{Reason: fmt.Sprintf("config: decoding %s: %v", path, err)}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &errs.ConfigurationError{Reason: fmt.Sprintf("config: %s: missing or invalid fields: %v", path, err)}
	}

	pin := os.Getenv(cfg.HSM.PinEnvVar)
	if pin == "" {
		return nil, &errs.ConfigurationError{Reason: fmt.Sprintf("config: HSM PIN environment variable %q is not set", cfg.HSM.PinEnvVar)}
	}
	cfg.HSMPin = logging.Secret(pin)

	return &cfg, nil
}

// iso8601DurationHookFunc lets mapstructure decode the PnDTnHnMnS
// strings the policy configuration's duration fields use (the same
// subset the XML codec parses) into time.Duration, rather than
// requiring the Go "9h0m0s" syntax viper's default hook expects.
func iso8601DurationHookFunc(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Duration(0), nil
	}
	return xmlcodec.ParseISO8601Duration(s)
}
