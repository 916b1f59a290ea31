// Package model holds the canonical in-memory representation of a KSR or
// SKR document, independent of its XML encoding.
package model

import "time"

// Document is the top-level KSR or SKR. Exactly one of Request or
// Response is set.
type Document struct {
	ID        string
	Serial    int64
	Domain    string
	Timestamp *time.Time

	Request  *Request
	Response *Response
}

// IsRequest reports whether this document is a KSR.
func (d *Document) IsRequest() bool { return d != nil && d.Request != nil }

// IsResponse reports whether this document is an SKR.
func (d *Document) IsResponse() bool { return d != nil && d.Response != nil }

// Request is the body of a KSR.
type Request struct {
	Policy  *RequestPolicy
	Bundles []Bundle
}

// Response is the body of an SKR.
type Response struct {
	Policy  *ResponsePolicy
	Bundles []Bundle
}

// RequestPolicy is the policy a ZSK operator declares for a KSR.
type RequestPolicy struct {
	ZSK *SignaturePolicy
}

// ResponsePolicy is the policy in force for an SKR. ZSK, by design note,
// is the same record identity as the RequestPolicy.ZSK it echoes; the
// orchestrator is responsible for wiring that identity, this type does
// not enforce it.
type ResponsePolicy struct {
	KSK *SignaturePolicy
	ZSK *SignaturePolicy
}

// SignaturePolicy bounds signature validity and declares which
// algorithms/parameters are acceptable.
type SignaturePolicy struct {
	PublishSafety         time.Duration
	RetireSafety          time.Duration
	MaxSignatureValidity  time.Duration
	MinSignatureValidity  time.Duration
	MaxValidityOverlap    time.Duration
	MinValidityOverlap    time.Duration
	AlgorithmPolicies     []AlgorithmPolicy

	// Ttl is the operator's declared DNSKEY RR TTL. Only meaningful on
	// the KSK operator's own policy: a ceremony falls back to it for
	// newly published KSKs when the policy config's dns_ttl override is
	// zero (spec §6, dns_ttl{0 -> ksk_policy.ttl}).
	Ttl time.Duration
}

// AlgorithmPolicy pairs a DNSSEC algorithm number with its parameters.
// Exactly one of RSA, DSA, ECDSA is set.
type AlgorithmPolicy struct {
	Algorithm uint8
	RSA       *RSAParams
	DSA       *DSAParams
	ECDSA     *ECDSAParams
}

type RSAParams struct {
	Size     int
	Exponent int
}

type DSAParams struct {
	Size int
}

type ECDSAParams struct {
	Size int
}

// Bundle is a time-bounded slot carrying a DNSKEY RRset and its
// signatures.
type Bundle struct {
	ID          string
	Inception   time.Time
	Expiration  time.Time
	Keys        []Key
	Signatures  []Signature
	SignerHints []string // request bundles only
}

// Key is a DNSKEY record, document-scoped by KeyIdentifier.
type Key struct {
	KeyIdentifier string
	KeyTag        uint16
	TTL           uint32
	Flags         uint16
	Protocol      uint8
	Algorithm     uint8
	PublicKey     []byte
}

const (
	// FlagRevoke is the REVOKE bit of the DNSKEY Flags field (RFC 5011).
	FlagRevoke uint16 = 0x0080
	// FlagSEP is the Secure Entry Point bit, conventionally set on KSKs.
	FlagSEP uint16 = 0x0001
	// FlagZoneKey is the Zone Key bit, set on every published DNSKEY.
	FlagZoneKey uint16 = 0x0100
)

// Revoked reports whether the REVOKE bit is set.
func (k Key) Revoked() bool { return k.Flags&FlagRevoke != 0 }

// TypeDNSKEY is the RRSIG TypeCovered value used throughout this system;
// the core never signs anything else.
const TypeDNSKEY uint16 = 48

// Signature is an RRSIG over a bundle's DNSKEY RRset.
type Signature struct {
	KeyIdentifier        string
	TTL                  uint32
	TypeCovered          uint16
	Algorithm            uint8
	Labels               uint8
	OriginalTTL          uint32
	SignatureInception   time.Time
	SignatureExpiration  time.Time
	KeyTag               uint16
	SignersName          string
	SignatureData        []byte
}

// KeyByIdentifier returns the Key in b with the given identifier, or
// false if none resolves.
func (b Bundle) KeyByIdentifier(id string) (Key, bool) {
	for _, k := range b.Keys {
		if k.KeyIdentifier == id {
			return k, true
		}
	}
	return Key{}, false
}
