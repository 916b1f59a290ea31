package ceremony

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirei/ksrsigner/internal/canon"
	"github.com/kirei/ksrsigner/internal/inventory"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/policy"
	"github.com/kirei/ksrsigner/internal/schema"
	"github.com/kirei/ksrsigner/internal/signer"
)

const owner = "."

// newRSALabels writes a fresh 2048-bit RSA key per label into one
// soft-signer directory and returns the signer over all of them.
func newRSALabels(t *testing.T, labels ...string) signer.Signer {
	dir := t.TempDir()
	for _, label := range labels {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("GenerateKey(%s): %v", label, err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			t.Fatalf("MarshalPKCS8PrivateKey(%s): %v", label, err)
		}
		block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
		path := filepath.Join(dir, label+".pem")
		if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
			t.Fatalf("WriteFile(%s): %v", label, err)
		}
	}
	return signer.NewFileSigner(dir)
}

func defaultZSKPolicy() *model.SignaturePolicy {
	return &model.SignaturePolicy{
		MinSignatureValidity: 19 * 24 * time.Hour,
		MaxSignatureValidity: 21 * 24 * time.Hour,
		MinValidityOverlap:   9 * 24 * time.Hour,
		MaxValidityOverlap:   11 * 24 * time.Hour,
		AlgorithmPolicies: []model.AlgorithmPolicy{
			{Algorithm: 8, RSA: &model.RSAParams{Size: 2048, Exponent: 65537}},
		},
	}
}

func defaultKSKPolicy() *model.SignaturePolicy {
	p := defaultZSKPolicy()
	p.Ttl = 172800 * time.Second // 2 days, distinct from the ZSK fixtures' 3600s TTL
	return p
}

func defaultPolicyConfig() policy.Config {
	cfg := policy.DefaultConfig()
	cfg.NumBundles = 9
	cfg.NumKeysPerBundle = []int{1, 1, 1, 1, 1, 1, 1, 1, 1}
	cfg.NumDifferentKeysInAllBundles = 1
	return cfg
}

// selfSignedBundle signs a one-ZSK bundle's DNSKEY RRset with that same
// ZSK, per the KSR invariant that every bundle carries a ZSK
// self-signature proving private-key possession.
func selfSignedBundle(t *testing.T, s signer.Signer, id, zskLabel, zskIdentifier string, inception, expiration time.Time) model.Bundle {
	handles, err := s.List(zskLabel)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	pub, err := s.PublicKey(handles[0])
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	key := model.Key{
		KeyIdentifier: zskIdentifier,
		TTL:           3600,
		Flags:         model.FlagZoneKey,
		Protocol:      3,
		Algorithm:     pub.Algorithm,
		PublicKey:     pub.RawBytes,
	}
	key.KeyTag = canon.KeyTag(owner, key)

	sig := model.Signature{
		KeyIdentifier:       zskIdentifier,
		TTL:                 3600,
		TypeCovered:         model.TypeDNSKEY,
		Algorithm:           pub.Algorithm,
		OriginalTTL:         3600,
		SignatureInception:  inception,
		SignatureExpiration: expiration,
		KeyTag:              key.KeyTag,
		SignersName:         owner,
	}
	data, err := canon.SignedData(owner, sig, []model.Key{key})
	if err != nil {
		t.Fatalf("SignedData: %v", err)
	}
	raw, err := s.Sign(signer.Handle{Label: zskLabel, Private: true}, pub.Algorithm, data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig.SignatureData = raw

	return model.Bundle{
		ID:         id,
		Inception:  inception,
		Expiration: expiration,
		Keys:       []model.Key{key},
		Signatures: []model.Signature{sig},
	}
}

// buildCycle produces n bundles spaced step apart, each length long,
// all carrying the same self-signed ZSK.
func buildCycle(t *testing.T, s signer.Signer, zskLabel, zskIdentifier string, n int, start time.Time, step, length time.Duration) []model.Bundle {
	bundles := make([]model.Bundle, n)
	for i := 0; i < n; i++ {
		inception := start.Add(time.Duration(i) * step)
		bundles[i] = selfSignedBundle(t, s, fmt.Sprintf("bundle-%d", i+1), zskLabel, zskIdentifier, inception, inception.Add(length))
	}
	return bundles
}

func kskEntry(t *testing.T, s signer.Signer, identifier, label string, validFrom time.Time) inventory.Entry {
	handles, err := s.List(label)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	pub, err := s.PublicKey(handles[0])
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	key := model.Key{
		KeyIdentifier: identifier,
		Flags:         model.FlagZoneKey | model.FlagSEP,
		Protocol:      3,
		Algorithm:     pub.Algorithm,
		PublicKey:     pub.RawBytes,
	}
	tag := canon.KeyTag(owner, key)
	ds, err := canon.DSDigestSHA256(owner, key)
	if err != nil {
		t.Fatalf("DSDigestSHA256: %v", err)
	}
	return inventory.Entry{
		Identifier: identifier,
		Label:      label,
		KeyTag:     tag,
		Algorithm:  pub.Algorithm,
		ValidFrom:  validFrom,
		DSSha256:   ds,
	}
}

func requestDoc(id string, serial int64, bundles []model.Bundle, zskPolicy *model.SignaturePolicy) *model.Document {
	return &model.Document{
		ID:     id,
		Serial: serial,
		Domain: owner,
		Request: &model.Request{
			Policy:  &model.RequestPolicy{ZSK: zskPolicy},
			Bundles: bundles,
		},
	}
}

func newOrchestrator(s signer.Signer, schemaName string, params schema.Params, inv []inventory.Entry, kskPolicy *model.SignaturePolicy, cfg policy.Config) *Orchestrator {
	return &Orchestrator{
		Signer:       s,
		Domain:       owner,
		SchemaName:   schemaName,
		SchemaParams: params,
		Inventory:    inv,
		KSKPolicy:    kskPolicy,
		PolicyConfig: cfg,
	}
}
