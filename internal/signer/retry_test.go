package signer

import (
	"testing"
	"time"

	"github.com/kirei/ksrsigner/internal/errs"
)

type flakySigner struct {
	failuresLeft int
	listCalls    int
}

func (f *flakySigner) List(label string) ([]Handle, error) {
	f.listCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, &errs.HsmUnavailable{Label: label, Reason: "session reset"}
	}
	return []Handle{{Label: label, Private: true}}, nil
}

func (f *flakySigner) PublicKey(h Handle) (PublicKeyMaterial, error) {
	return PublicKeyMaterial{}, &errs.KeyNotFound{Label: h.Label}
}

func (f *flakySigner) Sign(h Handle, algorithm uint8, message []byte) ([]byte, error) {
	return nil, &errs.KeyNotFound{Label: h.Label}
}

func (f *flakySigner) Close() error { return nil }

func TestRetryingSignerRecoversFromTransientFailure(t *testing.T) {
	inner := &flakySigner{failuresLeft: 2}
	r := NewRetryingSigner(inner, 10*time.Second)

	handles, err := r.List("ksk1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(handles) != 1 {
		t.Fatalf("expected 1 handle, got %d", len(handles))
	}
	if inner.listCalls != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", inner.listCalls)
	}
}

func TestRetryingSignerPassesThroughPermanentError(t *testing.T) {
	inner := &flakySigner{}
	r := NewRetryingSigner(inner, 10*time.Second)

	if _, err := r.PublicKey(Handle{Label: "ksk1"}); err == nil {
		t.Fatal("expected KeyNotFound to pass through unchanged")
	} else if _, ok := err.(*errs.KeyNotFound); !ok {
		t.Fatalf("expected *errs.KeyNotFound, got %T", err)
	}
}
