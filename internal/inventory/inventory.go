// Package inventory reconciles the configured KSK inventory against
// what a Signer actually exposes (spec §4.4): for every entry whose
// validity window contains the reconciliation time, it locates the
// HSM handle by label, derives the canonical DNSKEY wire form, and
// requires the recomputed key_tag and ds_sha256 to match the
// configured values exactly.
package inventory

import (
	"bytes"
	"time"

	"github.com/kirei/ksrsigner/internal/canon"
	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/signer"
)

// Entry is one configured KSK inventory entry.
type Entry struct {
	Identifier  string
	Description string
	Label       string
	KeyTag      uint16
	Algorithm   uint8
	RSA         *model.RSAParams
	ECDSA       *model.ECDSAParams
	ValidFrom   time.Time
	ValidUntil  *time.Time // nil means no upper bound
	DSSha256    []byte
}

// activeAt reports whether e's validity window contains t.
func (e Entry) activeAt(t time.Time) bool {
	if t.Before(e.ValidFrom) {
		return false
	}
	if e.ValidUntil != nil && t.After(*e.ValidUntil) {
		return false
	}
	return true
}

// Reconciled is the confirmed-matching product of reconciling one
// Entry: the Key as derived from the signer, ready to be placed in a
// response bundle.
type Reconciled struct {
	Entry Entry
	Key   model.Key
}

// Reconcile walks entries, skips those not active at now unless
// forceIdentifiers names them explicitly (the revoke-only case: a key
// past its valid_until is only usable when a schema names it for
// revocation), and for every entry considered resolves a handle on s
// by label, derives its DNSKEY wire form under owner, and requires the
// recomputed key_tag and ds_sha256 to equal the configured values.
//
// Reconcile returns the map of identifier to Reconciled key for every
// entry it successfully verified. It returns the first mismatch as a
// fatal *errs.InventoryMismatch; the orchestrator does not proceed
// past a single bad entry.
func Reconcile(s signer.Signer, owner string, entries []Entry, now time.Time, forceIdentifiers map[string]bool) (map[string]Reconciled, error) {
	out := make(map[string]Reconciled, len(entries))

	for _, e := range entries {
		if !e.activeAt(now) && !forceIdentifiers[e.Identifier] {
			continue
		}

		handles, err := s.List(e.Label)
		if err != nil {
			return nil, err
		}
		if len(handles) == 0 {
			return nil, &errs.InventoryMismatch{Identifier: e.Identifier, Reason: "no HSM handle for label " + e.Label}
		}

		pub, err := s.PublicKey(handles[0])
		if err != nil {
			return nil, err
		}
		if pub.Algorithm != e.Algorithm {
			return nil, &errs.InventoryMismatch{
				Identifier: e.Identifier,
				Reason:     "algorithm mismatch",
			}
		}

		key := model.Key{
			KeyIdentifier: e.Identifier,
			TTL:           0, // filled in by the orchestrator from dns_ttl or the KSK policy's TTL
			Flags:         model.FlagZoneKey | model.FlagSEP,
			Protocol:      3,
			Algorithm:     pub.Algorithm,
			PublicKey:     pub.RawBytes,
		}

		gotTag := canon.KeyTag(owner, key)
		if gotTag != e.KeyTag {
			return nil, &errs.InventoryMismatch{
				Identifier: e.Identifier,
				Reason:     "key_tag mismatch",
			}
		}
		key.KeyTag = gotTag

		if len(e.DSSha256) > 0 {
			gotDS, err := canon.DSDigestSHA256(owner, key)
			if err != nil {
				return nil, &errs.InventoryMismatch{Identifier: e.Identifier, Reason: err.Error()}
			}
			if !bytes.Equal(gotDS, e.DSSha256) {
				return nil, &errs.InventoryMismatch{
					Identifier: e.Identifier,
					Reason:     "ds_sha256 mismatch",
				}
			}
		}

		out[e.Identifier] = Reconciled{Entry: e, Key: key}
	}

	return out, nil
}
