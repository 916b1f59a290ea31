package signer

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kirei/ksrsigner/internal/errs"
)

// RetryingSigner wraps a Signer and retries operations that fail with
// *errs.HsmUnavailable using exponential backoff, since an HSM session
// drop or a momentary PKCS#11 slot contention is expected to be
// transient. Any other error is returned immediately.
type RetryingSigner struct {
	inner  Signer
	policy backoff.BackOff
}

// NewRetryingSigner wraps inner with an exponential backoff policy
// bounded by maxElapsed and by at most five retries per call. A
// maxElapsed of zero removes the time bound; the retry cap still
// applies.
func NewRetryingSigner(inner Signer, maxElapsed time.Duration) *RetryingSigner {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxElapsed
	return &RetryingSigner{inner: inner, policy: b}
}

func isTransient(err error) bool {
	var unavailable *errs.HsmUnavailable
	return errors.As(err, &unavailable)
}

func (r *RetryingSigner) List(label string) ([]Handle, error) {
	var out []Handle
	op := func() error {
		var err error
		out, err = r.inner.List(label)
		if err != nil && isTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(r.policy, 5)); err != nil {
		return nil, unwrapPermanent(err)
	}
	return out, nil
}

func (r *RetryingSigner) PublicKey(h Handle) (PublicKeyMaterial, error) {
	var out PublicKeyMaterial
	op := func() error {
		var err error
		out, err = r.inner.PublicKey(h)
		if err != nil && isTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(r.policy, 5)); err != nil {
		return PublicKeyMaterial{}, unwrapPermanent(err)
	}
	return out, nil
}

func (r *RetryingSigner) Sign(h Handle, algorithm uint8, message []byte) ([]byte, error) {
	var out []byte
	op := func() error {
		var err error
		out, err = r.inner.Sign(h, algorithm, message)
		if err != nil && isTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(r.policy, 5)); err != nil {
		return nil, unwrapPermanent(err)
	}
	return out, nil
}

func (r *RetryingSigner) Close() error { return r.inner.Close() }

func unwrapPermanent(err error) error {
	var perr *backoff.PermanentError
	if errors.As(err, &perr) {
		return perr.Err
	}
	return err
}
