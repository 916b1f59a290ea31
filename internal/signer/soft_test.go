package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func writePKCS8(t *testing.T, dir, label string, key any) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	path := filepath.Join(dir, label+".pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestFileSignerRSA(t *testing.T) {
	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	writePKCS8(t, dir, "ksk1", key)

	s := NewFileSigner(dir)
	handles, err := s.List("ksk1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}

	pub, err := s.PublicKey(Handle{Label: "ksk1"})
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if pub.Algorithm != 8 {
		t.Fatalf("expected algorithm 8, got %d", pub.Algorithm)
	}

	sig, err := s.Sign(Handle{Label: "ksk1", Private: true}, 8, []byte("message"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) == 0 {
		t.Fatal("empty signature")
	}

	if _, err := s.Sign(Handle{Label: "ksk1", Private: false}, 8, []byte("message")); err == nil {
		t.Fatal("expected error signing with public-only handle")
	}
}

func TestFileSignerECDSA(t *testing.T) {
	dir := t.TempDir()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	writePKCS8(t, dir, "zsk1", key)

	s := NewFileSigner(dir)
	pub, err := s.PublicKey(Handle{Label: "zsk1"})
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if pub.Algorithm != 13 || len(pub.RawBytes) != 64 {
		t.Fatalf("unexpected public key material: alg=%d len=%d", pub.Algorithm, len(pub.RawBytes))
	}

	sig, err := s.Sign(Handle{Label: "zsk1", Private: true}, 13, []byte("message"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("expected 64-byte raw r||s signature, got %d", len(sig))
	}
}

func TestFileSignerUnknownLabel(t *testing.T) {
	s := NewFileSigner(t.TempDir())
	handles, err := s.List("nope")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if handles != nil {
		t.Fatalf("expected nil handles for unknown label, got %v", handles)
	}
	if _, err := s.PublicKey(Handle{Label: "nope"}); err == nil {
		t.Fatal("expected KeyNotFound error")
	}
}
