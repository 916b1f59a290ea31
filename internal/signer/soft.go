package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirei/ksrsigner/internal/errs"
)

// FileSigner is the file-based soft-HSM the design notes call out:
// "the file-based SoftHSM used in tests is just one implementation
// alongside real PKCS#11 devices." Private keys are PEM files named
// "<label>.pem" (PKCS#8) under a directory.
type FileSigner struct {
	dir string

	mu   sync.Mutex
	keys map[string]crypto.Signer // label -> loaded private key
}

// NewFileSigner opens dir, lazily loading keys from it as they are
// requested by label.
func NewFileSigner(dir string) *FileSigner {
	return &FileSigner{dir: dir, keys: make(map[string]crypto.Signer)}
}

func (f *FileSigner) load(label string) (crypto.Signer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if k, ok := f.keys[label]; ok {
		return k, nil
	}

	path := filepath.Join(f.dir, label+".pem")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // unknown label: zero handles, not an error
		}
		return nil, &errs.HsmUnavailable{Label: label, Reason: err.Error()}
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, &errs.HsmUnavailable{Label: label, Reason: "no PEM block found"}
	}

	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, &errs.HsmUnavailable{Label: label, Reason: err.Error()}
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, &errs.HsmUnavailable{Label: label, Reason: "key does not implement crypto.Signer"}
	}

	f.keys[label] = signer
	return signer, nil
}

func parsePrivateKey(der []byte) (any, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("unrecognized private key encoding")
}

func (f *FileSigner) List(label string) ([]Handle, error) {
	key, err := f.load(label)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}
	return []Handle{
		{Label: label, Private: false},
		{Label: label, Private: true},
	}, nil
}

func (f *FileSigner) PublicKey(h Handle) (PublicKeyMaterial, error) {
	key, err := f.load(h.Label)
	if err != nil {
		return PublicKeyMaterial{}, err
	}
	if key == nil {
		return PublicKeyMaterial{}, &errs.KeyNotFound{Label: h.Label}
	}

	switch pub := key.Public().(type) {
	case *rsa.PublicKey:
		return PublicKeyMaterial{Algorithm: 8, RawBytes: encodeRSAPublicKey(pub)}, nil
	case *ecdsa.PublicKey:
		return PublicKeyMaterial{Algorithm: 13, RawBytes: encodeECDSAPublicKey(pub)}, nil
	default:
		return PublicKeyMaterial{}, &errs.HsmUnavailable{Label: h.Label, Reason: "unsupported public key type"}
	}
}

func (f *FileSigner) Sign(h Handle, algorithm uint8, message []byte) ([]byte, error) {
	if !h.Private {
		return nil, &errs.AlgorithmMismatch{Label: h.Label, Requested: algorithm}
	}
	key, err := f.load(h.Label)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, &errs.KeyNotFound{Label: h.Label}
	}

	switch priv := key.(type) {
	case *rsa.PrivateKey:
		if algorithm != 8 {
			return nil, &errs.AlgorithmMismatch{Label: h.Label, Requested: algorithm, Actual: 8}
		}
		digest := sha256.Sum256(message)
		return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])

	case *ecdsa.PrivateKey:
		if algorithm != 13 {
			return nil, &errs.AlgorithmMismatch{Label: h.Label, Requested: algorithm, Actual: 13}
		}
		if priv.Curve != elliptic.P256() {
			return nil, &errs.AlgorithmMismatch{Label: h.Label, Requested: algorithm, Actual: 13}
		}
		digest := sha256.Sum256(message)
		r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
		if err != nil {
			return nil, err
		}
		raw := make([]byte, 64)
		r.FillBytes(raw[:32])
		s.FillBytes(raw[32:])
		return raw, nil

	default:
		return nil, &errs.HsmUnavailable{Label: h.Label, Reason: "unsupported private key type"}
	}
}

func (f *FileSigner) Close() error { return nil }

// encodeRSAPublicKey encodes key per RFC 3110 §2: a length-prefixed
// exponent followed by the modulus.
func encodeRSAPublicKey(pub *rsa.PublicKey) []byte {
	e := big.NewInt(int64(pub.E)).Bytes()
	n := pub.N.Bytes()

	var out []byte
	if len(e) > 255 {
		out = append(out, 0)
		out = append(out, byte(len(e)>>8), byte(len(e)))
	} else {
		out = append(out, byte(len(e)))
	}
	out = append(out, e...)
	out = append(out, n...)
	return out
}

// encodeECDSAPublicKey encodes key per RFC 6605 §4: Q_x || Q_y, no
// compression-format byte.
func encodeECDSAPublicKey(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 64)
	pub.X.FillBytes(out[:32])
	pub.Y.FillBytes(out[32:])
	return out
}
