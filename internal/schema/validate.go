package schema

import (
	"github.com/kirei/ksrsigner/internal/errs"
)

// Validate checks slots against inventory's known identifiers,
// enforcing the rules from spec §4.6: every identifier resolves in
// inventory, and every sign identifier is also in publish of the same
// slot unless it is in revoke (a revoked key may continue signing the
// transition bundle). The REVOKE-flag invariant itself — that revoke
// is only valid when the emitted Key's DNSKEY flags carry the REVOKE
// bit — is enforced by the orchestrator when it builds the Key, not
// here, since this package has no DNSKEY-flag representation of its
// own.
func Validate(schemaName string, slots []Slot, inventory map[string]bool) error {
	for i, s := range slots {
		for _, id := range s.Publish {
			if !inventory[id] {
				return &errs.SchemaViolation{Schema: schemaName, Slot: i + 1, Reason: "publish identifier " + id + " not in inventory"}
			}
		}
		for _, id := range s.Revoke {
			if !inventory[id] {
				return &errs.SchemaViolation{Schema: schemaName, Slot: i + 1, Reason: "revoke identifier " + id + " not in inventory"}
			}
		}
		publishOrRevoke := make(map[string]bool, len(s.Publish)+len(s.Revoke))
		for _, id := range s.Publish {
			publishOrRevoke[id] = true
		}
		for _, id := range s.Revoke {
			publishOrRevoke[id] = true
		}
		for _, id := range s.Sign {
			if !inventory[id] {
				return &errs.SchemaViolation{Schema: schemaName, Slot: i + 1, Reason: "sign identifier " + id + " not in inventory"}
			}
			if !publishOrRevoke[id] {
				return &errs.SchemaViolation{Schema: schemaName, Slot: i + 1, Reason: "sign identifier " + id + " is not in publish or revoke for this slot"}
			}
		}
	}
	return nil
}
