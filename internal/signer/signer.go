// Package signer defines the abstract HSM capability the ceremony core
// signs through (spec §4.3). The core never talks PKCS#11 directly —
// that binding is explicitly out of scope — it only ever sees this
// interface, so the file-based soft signer used in tests and a real
// HSM driver are interchangeable from the orchestrator's point of view.
package signer

// Handle identifies one object in the HSM: a label resolves to zero,
// one (public only) or two (public+private) handles.
type Handle struct {
	Label   string
	Private bool
}

// PublicKeyMaterial is what PublicKey returns: enough to build a
// model.Key without the signer package depending on internal/model (it
// is the caller's job to assemble the DNSSEC record).
type PublicKeyMaterial struct {
	Algorithm uint8
	RawBytes  []byte // wire-format public key, e.g. RFC 3110 (RSA) or RFC 6605 (ECDSA)
}

// Signer is the capability the ceremony orchestrator signs through. It
// makes no policy decisions: given a handle and a message it either
// produces a signature or fails.
type Signer interface {
	// List returns the handles known under label: zero if unknown, one
	// if only the public half is available, two for a public/private
	// pair.
	List(label string) ([]Handle, error)

	// PublicKey returns the public key material for a handle.
	PublicKey(h Handle) (PublicKeyMaterial, error)

	// Sign signs message with the private half of h using algorithm.
	// For RSA (DNSSEC algorithm 8), this is PKCS#1 v1.5 over SHA-256.
	// For ECDSA P-256 (algorithm 13) this returns raw r || s, 32 bytes
	// each, big-endian — never ASN.1 DER.
	Sign(h Handle, algorithm uint8, message []byte) ([]byte, error)

	// Close releases any session the signer holds open. Safe to call
	// more than once.
	Close() error
}
