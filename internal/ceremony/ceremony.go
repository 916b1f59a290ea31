// Package ceremony implements the orchestrator that composes every
// other component into the verify-then-sign procedure of spec.md
// §4.7: parse the previous SKR, parse the KSR, run request-policy
// checks (including chain linkage), reconcile the HSM inventory,
// build response bundles via the schema engine and signer, run
// response-policy checks on the produced SKR, and hand the result
// back to the caller to emit. "Now" is always a parameter — nothing
// in this package reads the system clock.
package ceremony

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kirei/ksrsigner/internal/canon"
	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/inventory"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/policy"
	"github.com/kirei/ksrsigner/internal/schema"
	"github.com/kirei/ksrsigner/internal/signer"
)

// Orchestrator holds everything a ceremony run needs beyond the
// documents and "now" themselves: the signer capability, the
// configured KSK inventory, the schema selection, and the policy
// configuration governing both the inbound KSR and the produced SKR.
type Orchestrator struct {
	Signer       signer.Signer
	Domain       string
	SchemaName   string
	SchemaParams schema.Params
	// SchemaOverride, when non-nil, is used verbatim instead of building
	// the named schema from its base pattern (spec §4.6 supplement:
	// config-defined schemas beyond the five built-ins).
	SchemaOverride []schema.Slot
	Inventory      []inventory.Entry
	KSKPolicy      *model.SignaturePolicy
	PolicyConfig   policy.Config
}

// CeremonyReport summarizes one completed ceremony run for the
// caller (the CLI's sign subcommand) and for the audit trail.
type CeremonyReport struct {
	KSRID          string
	KSRSerial      int64
	SKRID          string
	SKRSerial      int64
	BundleCount    int
	SignatureCount int
	Violations     error
}

// Run executes the full procedure against already-parsed documents.
// prevSKR may be nil only on a bootstrap ceremony (spec §4.4/§4.7).
// It never touches a file or a clock; RunFiles in io.go is the
// file-handling wrapper used by the CLI.
func (o *Orchestrator) Run(prevSKR, ksr *model.Document, now time.Time) (*model.Document, *CeremonyReport, error) {
	if ksr == nil || !ksr.IsRequest() {
		return nil, nil, &errs.ConfigurationError{Reason: "ceremony: Run requires a parsed KSR document"}
	}

	// Step 1: verify the previous SKR's KSK signatures, if any.
	var prevLastBundle *model.Bundle
	if prevSKR != nil {
		if !prevSKR.IsResponse() {
			return nil, nil, &errs.ConfigurationError{Reason: "ceremony: previous document is not an SKR"}
		}
		if err := o.verifyResponse(prevSKR, now); err != nil {
			return nil, nil, err
		}
		if len(prevSKR.Response.Bundles) > 0 {
			b := prevSKR.Response.Bundles[len(prevSKR.Response.Bundles)-1]
			prevLastBundle = &b
		}
	}

	// Step 2: request-policy checks, including chain linkage.
	if err := o.checkRequest(ksr, prevSKR, prevLastBundle, now); err != nil {
		return nil, nil, err
	}

	// Step 3: reconcile HSM inventory.
	var schemaSlots []schema.Slot
	if o.SchemaOverride != nil {
		if len(o.SchemaOverride) != len(ksr.Request.Bundles) {
			return nil, nil, &errs.SchemaViolation{Schema: o.SchemaName, Reason: fmt.Sprintf("override requires exactly %d bundles, got %d", len(o.SchemaOverride), len(ksr.Request.Bundles))}
		}
		schemaSlots = o.SchemaOverride
	} else {
		var err error
		schemaSlots, err = schema.Build(o.SchemaName, withNumBundles(o.SchemaParams, len(ksr.Request.Bundles)))
		if err != nil {
			return nil, nil, err
		}
	}
	inventoryNames := make(map[string]bool)
	for _, e := range o.Inventory {
		inventoryNames[e.Identifier] = true
	}
	if err := schema.Validate(o.SchemaName, schemaSlots, inventoryNames); err != nil {
		return nil, nil, err
	}

	// Only identifiers the schema revokes may be used outside their
	// validity window; every other key must be active at now.
	forced := make(map[string]bool)
	for _, s := range schemaSlots {
		for _, id := range s.Revoke {
			forced[id] = true
		}
	}
	reconciled, err := inventory.Reconcile(o.Signer, o.Domain, o.Inventory, now, forced)
	if err != nil {
		return nil, nil, err
	}

	// Step 4: build response bundles.
	respBundles := make([]model.Bundle, len(ksr.Request.Bundles))
	sigCount := 0
	for i, reqBundle := range ksr.Request.Bundles {
		rb, n, err := o.buildResponseBundle(reqBundle, schemaSlots[i], reconciled)
		if err != nil {
			return nil, nil, err
		}
		respBundles[i] = rb
		sigCount += n
	}

	skr := &model.Document{
		ID:     ksr.ID,
		Serial: ksr.Serial,
		Domain: ksr.Domain,
		Response: &model.Response{
			Policy: &model.ResponsePolicy{
				KSK: o.KSKPolicy,
				ZSK: ksr.Request.Policy.ZSK, // same record identity, by design note
			},
			Bundles: respBundles,
		},
	}

	// Step 5: response-policy checks on the produced SKR.
	if err := o.verifyResponse(skr, now); err != nil {
		return nil, nil, err
	}

	report := &CeremonyReport{
		KSRID:          ksr.ID,
		KSRSerial:      ksr.Serial,
		SKRID:          skr.ID,
		SKRSerial:      skr.Serial,
		BundleCount:    len(respBundles),
		SignatureCount: sigCount,
	}

	return skr, report, nil
}

func withNumBundles(p schema.Params, n int) schema.Params {
	p.NumBundles = n
	return p
}

// checkRequest runs the request-policy engine against ksr, special-
// casing a chain-linkage violation into the more specific
// *errs.ChainLinkageFailed spec.md §8's chain-break scenario names,
// rather than the generic PolicyViolation set every other check
// produces.
func (o *Orchestrator) checkRequest(ksr, prevSKR *model.Document, prevLastBundle *model.Bundle, now time.Time) error {
	if prevSKR != nil && ksr.Serial <= prevSKR.Serial {
		return &errs.PolicyViolation{Check: "SerialMonotonic", Reason: "KSR serial does not increase from previous SKR"}
	}

	ctx := &policy.Context{
		Domain:             ksr.Domain,
		Bundles:            ksr.Request.Bundles,
		Policy:             ksr.Request.Policy.ZSK,
		PreviousLastBundle: prevLastBundle,
		Now:                now,
		Config:             o.PolicyConfig,
	}
	engine := policy.NewRequestEngine(o.PolicyConfig)
	err := engine.Evaluate(ctx)
	return promoteChainFailure(err)
}

// verifyResponse runs the response-policy engine against an SKR
// (either the previously issued one being ingested, or the one this
// ceremony just produced).
func (o *Orchestrator) verifyResponse(skr *model.Document, now time.Time) error {
	ctx := &policy.Context{
		Domain:  skr.Domain,
		Bundles: skr.Response.Bundles,
		Policy:  skr.Response.Policy.KSK,
		Now:     now,
		Config:  o.PolicyConfig,
	}
	engine := policy.NewResponseEngine(o.PolicyConfig)
	return engine.Evaluate(ctx)
}

func promoteChainFailure(err error) error {
	if err == nil {
		return nil
	}
	merr, ok := err.(*multierror.Error)
	if !ok {
		return err
	}
	var reasons []string
	var rest *multierror.Error
	for _, e := range merr.Errors {
		if pv, ok := e.(*errs.PolicyViolation); ok && (pv.Check == "CheckChainKeys" || pv.Check == "CheckChainOverlap") {
			reasons = append(reasons, pv.Error())
			continue
		}
		rest = multierror.Append(rest, e)
	}
	if len(reasons) > 0 {
		return &errs.ChainLinkageFailed{Reason: fmt.Sprint(reasons)}
	}
	return rest.ErrorOrNil()
}

// buildResponseBundle implements spec §4.7 step 4 for one bundle: copy
// inception/expiration, include the request bundle's own Keys plus
// one Key per identifier the schema publishes (REVOKE flag set for
// those it revokes), then sign with every identifier the schema
// names.
func (o *Orchestrator) buildResponseBundle(req model.Bundle, slot schema.Slot, reconciled map[string]inventory.Reconciled) (model.Bundle, int, error) {
	rb := model.Bundle{
		ID:         req.ID,
		Inception:  req.Inception,
		Expiration: req.Expiration,
		Keys:       append([]model.Key(nil), req.Keys...),
	}

	revoked := make(map[string]bool, len(slot.Revoke))
	for _, id := range slot.Revoke {
		revoked[id] = true
	}

	var zskTTL uint32
	if len(req.Keys) > 0 {
		zskTTL = req.Keys[0].TTL
	}

	// Published KSKs take the operator's own DNSKEY TTL, not the ZSK's
	// (spec §6, dns_ttl{0 -> ksk_policy.ttl}), so a misconfigured ZSK
	// side never silently changes the root's own KSK TTL.
	kskTTL := o.PolicyConfig.DnsTtl
	if kskTTL == 0 && o.KSKPolicy != nil {
		kskTTL = uint32(o.KSKPolicy.Ttl / time.Second)
	}

	for _, id := range slot.Publish {
		r, ok := reconciled[id]
		if !ok {
			return model.Bundle{}, 0, &errs.InventoryMismatch{Identifier: id, Reason: "schema references an identifier inventory reconciliation did not produce"}
		}
		key := r.Key
		key.TTL = kskTTL
		if revoked[id] {
			key.Flags |= model.FlagRevoke
			key.KeyTag = canon.KeyTag(o.Domain, key)
		}
		rb.Keys = append(rb.Keys, key)
	}

	signCount := 0
	for _, id := range slot.Sign {
		r, ok := reconciled[id]
		if !ok {
			return model.Bundle{}, 0, &errs.InventoryMismatch{Identifier: id, Reason: "schema references an identifier inventory reconciliation did not produce"}
		}
		signKey := r.Key
		if revoked[id] {
			// A revoked key signs as the DNSKEY it is published as, whose
			// key tag differs from the unrevoked one.
			signKey.Flags |= model.FlagRevoke
			signKey.KeyTag = canon.KeyTag(o.Domain, signKey)
		}
		handles, err := o.Signer.List(r.Entry.Label)
		if err != nil {
			return model.Bundle{}, 0, err
		}
		var privHandle *signer.Handle
		for _, h := range handles {
			if h.Private {
				privHandle = &h
				break
			}
		}
		if privHandle == nil {
			return model.Bundle{}, 0, &errs.KeyNotFound{Label: r.Entry.Label}
		}

		sig := model.Signature{
			KeyIdentifier:       id,
			TTL:                 zskTTL,
			TypeCovered:         model.TypeDNSKEY,
			Algorithm:           signKey.Algorithm,
			OriginalTTL:         zskTTL,
			SignatureInception:  req.Inception,
			SignatureExpiration: req.Expiration,
			KeyTag:              signKey.KeyTag,
			SignersName:         o.Domain,
		}

		data, err := canon.SignedData(o.Domain, sig, rb.Keys)
		if err != nil {
			return model.Bundle{}, 0, &errs.SigningFailed{Identifier: id, BundleID: req.ID, Err: err}
		}
		raw, err := o.Signer.Sign(*privHandle, signKey.Algorithm, data)
		if err != nil {
			return model.Bundle{}, 0, &errs.SigningFailed{Identifier: id, BundleID: req.ID, Err: err}
		}
		sig.SignatureData = raw

		rb.Signatures = append(rb.Signatures, sig)
		signCount++
	}

	canon.SortKeysByRDATA(rb.Keys)
	canon.SortSignaturesByTagAlgorithm(rb.Signatures)

	return rb, signCount, nil
}
