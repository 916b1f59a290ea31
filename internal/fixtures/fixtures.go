// Package fixtures builds RSA/ECDSA key material, freshly generated on
// every call, and self-signed request bundles for tests. No other
// package's tests import it; the ceremony and inventory tests use
// their own helpers. Identifiers are minted with google/uuid so fixture
// documents never collide when several are built in the same test
// process.
package fixtures

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kirei/ksrsigner/internal/canon"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/signer"
)

// NewID mints an opaque identifier suitable for a document, bundle, or
// key_identifier fixture value.
func NewID() string {
	return uuid.NewString()
}

// WriteRSAKey generates a fresh RSA key of the given bit size and
// writes it, PKCS#8-encoded, to <dir>/<label>.pem for signer.NewFileSigner
// to pick up.
func WriteRSAKey(dir, label string, bits int) error {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("fixtures: generating RSA key: %w", err)
	}
	return writePKCS8(dir, label, key)
}

// WriteECDSAKey generates a fresh P-256 key and writes it, PKCS#8
// encoded, to <dir>/<label>.pem.
func WriteECDSAKey(dir, label string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("fixtures: generating ECDSA key: %w", err)
	}
	return writePKCS8(dir, label, key)
}

func writePKCS8(dir, label string, key any) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("fixtures: marshaling private key for %q: %w", label, err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	path := filepath.Join(dir, label+".pem")
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// NewSoftSigner opens a file-based Signer backed by dir, the same
// concrete implementation the ceremony package's own tests use.
func NewSoftSigner(dir string) signer.Signer {
	return signer.NewFileSigner(dir)
}

// SelfSignedZSKBundle builds one request bundle carrying a single ZSK
// and its self-signature over the DNSKEY RRset — the structural
// invariant every KSR bundle satisfies (spec §3/§8). label must already
// have a key loaded into s (see WriteRSAKey/WriteECDSAKey).
func SelfSignedZSKBundle(s signer.Signer, owner, label, keyIdentifier, bundleID string, inception, expiration time.Time) (model.Bundle, error) {
	handles, err := s.List(label)
	if err != nil {
		return model.Bundle{}, err
	}
	if len(handles) == 0 {
		return model.Bundle{}, fmt.Errorf("fixtures: no handle for label %q", label)
	}
	pub, err := s.PublicKey(handles[0])
	if err != nil {
		return model.Bundle{}, err
	}

	key := model.Key{
		KeyIdentifier: keyIdentifier,
		TTL:           3600,
		Flags:         model.FlagZoneKey,
		Protocol:      3,
		Algorithm:     pub.Algorithm,
		PublicKey:     pub.RawBytes,
	}
	key.KeyTag = canon.KeyTag(owner, key)

	sig := model.Signature{
		KeyIdentifier:       keyIdentifier,
		TTL:                 3600,
		TypeCovered:         model.TypeDNSKEY,
		Algorithm:           pub.Algorithm,
		OriginalTTL:         3600,
		SignatureInception:  inception,
		SignatureExpiration: expiration,
		KeyTag:              key.KeyTag,
		SignersName:         owner,
	}

	var privHandle signer.Handle
	for _, h := range handles {
		if h.Private {
			privHandle = h
			break
		}
	}

	data, err := canon.SignedData(owner, sig, []model.Key{key})
	if err != nil {
		return model.Bundle{}, err
	}
	sig.SignatureData, err = s.Sign(privHandle, pub.Algorithm, data)
	if err != nil {
		return model.Bundle{}, err
	}

	return model.Bundle{
		ID:         bundleID,
		Inception:  inception,
		Expiration: expiration,
		Keys:       []model.Key{key},
		Signatures: []model.Signature{sig},
	}, nil
}

// Cycle builds n self-signed ZSK bundles spaced step apart, each valid
// for length, all carrying the same key — the common shape for
// "normal"-schema request documents in tests.
func Cycle(s signer.Signer, owner, label, keyIdentifier string, n int, start time.Time, step, length time.Duration) ([]model.Bundle, error) {
	bundles := make([]model.Bundle, n)
	for i := 0; i < n; i++ {
		inception := start.Add(time.Duration(i) * step)
		b, err := SelfSignedZSKBundle(s, owner, label, keyIdentifier, fmt.Sprintf("bundle-%d", i+1), inception, inception.Add(length))
		if err != nil {
			return nil, err
		}
		bundles[i] = b
	}
	return bundles, nil
}
