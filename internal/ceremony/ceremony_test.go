package ceremony

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/inventory"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/schema"
	"github.com/kirei/ksrsigner/internal/signer"
)

var cycleStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// scenario 1: normal-cycle.
func TestNormalCycle(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current")
	zskSigner := newRSALabels(t, "zsk1")

	inv := []inventory.Entry{kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour))}
	bundles := buildCycle(t, zskSigner, "zsk1", "zsk1", 9, cycleStart, 10*24*time.Hour, 20*24*time.Hour)
	ksr := requestDoc("ksr-1", 1, bundles, defaultZSKPolicy())

	orch := newOrchestrator(kskSigner, "normal", schema.Params{Current: "ksk_current"}, inv, defaultKSKPolicy(), defaultPolicyConfig())

	skr, report, err := orch.Run(nil, ksr, cycleStart)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(skr.Response.Bundles) != 9 {
		t.Fatalf("expected 9 response bundles, got %d", len(skr.Response.Bundles))
	}
	for i, b := range skr.Response.Bundles {
		if len(b.Keys) != 2 {
			t.Fatalf("bundle %d: expected 2 keys (zsk+ksk), got %d", i+1, len(b.Keys))
		}
		if len(b.Signatures) != 1 {
			t.Fatalf("bundle %d: expected exactly 1 RRSIG, got %d", i+1, len(b.Signatures))
		}
		if b.Signatures[0].KeyIdentifier != "ksk_current" {
			t.Fatalf("bundle %d: expected RRSIG by ksk_current, got %q", i+1, b.Signatures[0].KeyIdentifier)
		}
		ksk, ok := b.KeyByIdentifier("ksk_current")
		if !ok {
			t.Fatalf("bundle %d: missing ksk_current", i+1)
		}
		if ksk.TTL != 172800 {
			t.Fatalf("bundle %d: ksk_current TTL = %d, want the KSK policy's 172800 (not the ZSK's 3600)", i+1, ksk.TTL)
		}
		zsk, ok := b.KeyByIdentifier("zsk1")
		if !ok {
			t.Fatalf("bundle %d: missing zsk1", i+1)
		}
		if zsk.TTL != 3600 {
			t.Fatalf("bundle %d: zsk1 TTL = %d, want 3600", i+1, zsk.TTL)
		}
	}
	if report.BundleCount != 9 || report.SignatureCount != 9 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

// TestBuildResponseBundleUsesPolicyConfigDnsTtlOverride confirms the
// policy config's dns_ttl, when nonzero, takes priority over the KSK
// operator's own declared Ttl for published KSKs (spec §6).
func TestBuildResponseBundleUsesPolicyConfigDnsTtlOverride(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current")
	zskSigner := newRSALabels(t, "zsk1")

	inv := []inventory.Entry{kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour))}
	bundles := buildCycle(t, zskSigner, "zsk1", "zsk1", 9, cycleStart, 10*24*time.Hour, 20*24*time.Hour)
	ksr := requestDoc("ksr-1", 1, bundles, defaultZSKPolicy())

	cfg := defaultPolicyConfig()
	cfg.DnsTtl = 600
	orch := newOrchestrator(kskSigner, "normal", schema.Params{Current: "ksk_current"}, inv, defaultKSKPolicy(), cfg)

	skr, _, err := orch.Run(nil, ksr, cycleStart)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ksk, ok := skr.Response.Bundles[0].KeyByIdentifier("ksk_current")
	if !ok {
		t.Fatal("missing ksk_current")
	}
	if ksk.TTL != 600 {
		t.Fatalf("ksk_current TTL = %d, want the policy config's dns_ttl override of 600", ksk.TTL)
	}
}

// scenario 2: pre-publish.
func TestPrePublishCycle(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current", "ksk_next")
	zskSigner := newRSALabels(t, "zsk1")

	inv := []inventory.Entry{
		kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour)),
		kskEntry(t, kskSigner, "ksk_next", "ksk_next", cycleStart.Add(-365*24*time.Hour)),
	}
	bundles := buildCycle(t, zskSigner, "zsk1", "zsk1", 9, cycleStart, 10*24*time.Hour, 20*24*time.Hour)
	ksr := requestDoc("ksr-2", 1, bundles, defaultZSKPolicy())

	orch := newOrchestrator(kskSigner, "pre-publish", schema.Params{Current: "ksk_current", Next: "ksk_next"}, inv, defaultKSKPolicy(), defaultPolicyConfig())

	skr, _, err := orch.Run(nil, ksr, cycleStart)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if countPublished(skr.Response.Bundles[0], "ksk_next") {
		t.Fatal("bundle 1 should not publish ksk_next yet")
	}
	for i := 1; i < 9; i++ {
		if !countPublished(skr.Response.Bundles[i], "ksk_current") || !countPublished(skr.Response.Bundles[i], "ksk_next") {
			t.Fatalf("bundle %d should publish both KSKs", i+1)
		}
		if len(skr.Response.Bundles[i].Signatures) != 1 || skr.Response.Bundles[i].Signatures[0].KeyIdentifier != "ksk_current" {
			t.Fatalf("bundle %d should be signed only by ksk_current", i+1)
		}
	}
}

// scenario 3: rollover.
func TestRolloverCycle(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current", "ksk_next")
	zskSigner := newRSALabels(t, "zsk1")

	inv := []inventory.Entry{
		kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour)),
		kskEntry(t, kskSigner, "ksk_next", "ksk_next", cycleStart.Add(-365*24*time.Hour)),
	}
	bundles := buildCycle(t, zskSigner, "zsk1", "zsk1", 9, cycleStart, 10*24*time.Hour, 20*24*time.Hour)
	ksr := requestDoc("ksr-3", 1, bundles, defaultZSKPolicy())

	orch := newOrchestrator(kskSigner, "rollover", schema.Params{Current: "ksk_current", Next: "ksk_next"}, inv, defaultKSKPolicy(), defaultPolicyConfig())

	skr, _, err := orch.Run(nil, ksr, cycleStart)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if skr.Response.Bundles[0].Signatures[0].KeyIdentifier != "ksk_current" {
		t.Fatal("bundle 1 should be signed by ksk_current")
	}
	for i := 1; i < 9; i++ {
		b := skr.Response.Bundles[i]
		if len(b.Signatures) != 1 || b.Signatures[0].KeyIdentifier != "ksk_next" {
			t.Fatalf("bundle %d should be signed only by ksk_next", i+1)
		}
		if !countPublished(b, "ksk_current") || !countPublished(b, "ksk_next") {
			t.Fatalf("bundle %d should publish both KSKs", i+1)
		}
	}
}

// scenario 4: revoke.
func TestRevokeCycle(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current", "ksk_next")
	zskSigner := newRSALabels(t, "zsk1")

	inv := []inventory.Entry{
		kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour)),
		kskEntry(t, kskSigner, "ksk_next", "ksk_next", cycleStart.Add(-365*24*time.Hour)),
	}
	bundles := buildCycle(t, zskSigner, "zsk1", "zsk1", 9, cycleStart, 10*24*time.Hour, 20*24*time.Hour)
	ksr := requestDoc("ksr-4", 1, bundles, defaultZSKPolicy())

	orch := newOrchestrator(kskSigner, "revoke", schema.Params{Current: "ksk_current", Next: "ksk_next"}, inv, defaultKSKPolicy(), defaultPolicyConfig())

	skr, _, err := orch.Run(nil, ksr, cycleStart)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i < 8; i++ {
		b := skr.Response.Bundles[i]
		if len(b.Signatures) != 2 {
			t.Fatalf("bundle %d: expected 2 RRSIGs, got %d", i+1, len(b.Signatures))
		}
		key, ok := b.KeyByIdentifier("ksk_current")
		if !ok || key.Flags&model.FlagRevoke == 0 {
			t.Fatalf("bundle %d: expected ksk_current to carry the REVOKE flag", i+1)
		}
	}
	last := skr.Response.Bundles[8]
	if _, ok := last.KeyByIdentifier("ksk_current"); ok {
		t.Fatalf("bundle 9: ksk_current should no longer be published, got %v", last.Keys)
	}
	if _, ok := last.KeyByIdentifier("ksk_next"); !ok {
		t.Fatalf("bundle 9: expected ksk_next to be published, got %v", last.Keys)
	}
}

func countPublished(b model.Bundle, identifier string) bool {
	_, ok := b.KeyByIdentifier(identifier)
	return ok
}

// scenario 5: chain-break.
func TestChainBreakFailsClosed(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current")
	prevZsk := newRSALabels(t, "zsk_prev")

	inv := []inventory.Entry{kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour))}
	prevBundles := buildCycle(t, prevZsk, "zsk_prev", "zsk1", 9, cycleStart, 10*24*time.Hour, 20*24*time.Hour)
	prevKsr := requestDoc("ksr-0", 1, prevBundles, defaultZSKPolicy())

	orch := newOrchestrator(kskSigner, "normal", schema.Params{Current: "ksk_current"}, inv, defaultKSKPolicy(), defaultPolicyConfig())
	prevSkr, _, err := orch.Run(nil, prevKsr, cycleStart)
	if err != nil {
		t.Fatalf("bootstrap Run: %v", err)
	}

	newZsk := newRSALabels(t, "zsk_new")
	start2 := cycleStart.Add(90 * 24 * time.Hour)
	newBundles := buildCycle(t, newZsk, "zsk_new", "zsk1", 9, start2, 10*24*time.Hour, 20*24*time.Hour)
	newKsr := requestDoc("ksr-1", 2, newBundles, defaultZSKPolicy())

	spy := &spySigner{inner: kskSigner}
	orch2 := newOrchestrator(spy, "normal", schema.Params{Current: "ksk_current"}, inv, defaultKSKPolicy(), defaultPolicyConfig())

	_, _, err = orch2.Run(prevSkr, newKsr, start2)
	if err == nil {
		t.Fatal("expected ChainLinkageFailed")
	}
	var chainErr *errs.ChainLinkageFailed
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *errs.ChainLinkageFailed, got %T: %v", err, err)
	}
	if spy.signCalls != 0 {
		t.Fatalf("expected zero signing calls, got %d", spy.signCalls)
	}
}

// scenario 6: horizon-violation.
func TestSignatureHorizonViolation(t *testing.T) {
	kskSigner := newRSALabels(t, "ksk_current")
	zskSigner := newRSALabels(t, "zsk1")

	inv := []inventory.Entry{kskEntry(t, kskSigner, "ksk_current", "ksk_current", cycleStart.Add(-365*24*time.Hour))}

	inception := cycleStart.Add(180 * 24 * time.Hour)
	bundle := selfSignedBundle(t, zskSigner, "bundle-1", "zsk1", "zsk1", inception, inception.Add(20*24*time.Hour))
	ksr := requestDoc("ksr-5", 1, []model.Bundle{bundle}, defaultZSKPolicy())

	cfg := defaultPolicyConfig()
	cfg.NumBundles = 1
	cfg.NumKeysPerBundle = []int{1}
	cfg.NumDifferentKeysInAllBundles = 1

	spy := &spySigner{inner: kskSigner}
	orch := newOrchestrator(spy, "normal", schema.Params{Current: "ksk_current", NumBundles: 1}, inv, defaultKSKPolicy(), cfg)

	_, _, err := orch.Run(nil, ksr, cycleStart)
	if err == nil {
		t.Fatal("expected a SignatureExpireHorizon policy violation")
	}
	if !hasViolation(err, "SignatureExpireHorizon") {
		t.Fatalf("expected a SignatureExpireHorizon violation among: %v", err)
	}
	if spy.signCalls != 0 {
		t.Fatalf("expected zero signing calls, got %d", spy.signCalls)
	}
}

func hasViolation(err error, check string) bool {
	if pv, ok := err.(*errs.PolicyViolation); ok {
		return pv.Check == check
	}
	if merr, ok := err.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			if hasViolation(e, check) {
				return true
			}
		}
	}
	return false
}

// spySigner records Sign invocations so policy-monotonicity tests can
// assert that a failed policy check makes zero HSM calls.
type spySigner struct {
	inner     signer.Signer
	signCalls int
}

func (s *spySigner) List(label string) ([]signer.Handle, error) { return s.inner.List(label) }
func (s *spySigner) PublicKey(h signer.Handle) (signer.PublicKeyMaterial, error) {
	return s.inner.PublicKey(h)
}
func (s *spySigner) Sign(h signer.Handle, algorithm uint8, message []byte) ([]byte, error) {
	s.signCalls++
	return s.inner.Sign(h, algorithm, message)
}
func (s *spySigner) Close() error { return s.inner.Close() }
