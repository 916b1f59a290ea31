// Package canon implements the canonical wire forms DNSSEC requires:
// the DNSKEY RDATA, the RRSIG signed-data a bundle's DNSKEY RRset is
// signed over, key tags and DS digests. Where the shape matches what
// github.com/miekg/dns already implements correctly (key tags, DS
// digests, signature verification against a public key) this package
// is a thin adapter onto that library rather than a reimplementation;
// where the ceremony's Signer capability is opaque (an HSM handle is
// not a crypto.Signer) it builds the exact bytes to be signed by hand.
package canon

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/miekg/dns"

	"github.com/kirei/ksrsigner/internal/model"
)

// ToDNSKEY converts a wire-model Key, owned by owner, into the
// github.com/miekg/dns representation used for key-tag computation, DS
// digests and signature verification.
func ToDNSKEY(owner string, k model.Key) *dns.DNSKEY {
	return &dns.DNSKEY{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(owner),
			Rrtype: dns.TypeDNSKEY,
			Class:  dns.ClassINET,
			Ttl:    k.TTL,
		},
		Flags:     k.Flags,
		Protocol:  k.Protocol,
		Algorithm: k.Algorithm,
		PublicKey: base64.StdEncoding.EncodeToString(k.PublicKey),
	}
}

// KeyTag computes the RFC 4034 Appendix B key tag of k, delegating to
// github.com/miekg/dns's implementation (special-cased for algorithm 1,
// a generic checksum otherwise).
func KeyTag(owner string, k model.Key) uint16 {
	return ToDNSKEY(owner, k).KeyTag()
}

// DSDigestSHA256 computes the SHA-256 delegation-signer digest of k, as
// published by the parent zone.
func DSDigestSHA256(owner string, k model.Key) ([]byte, error) {
	dnskey := ToDNSKEY(owner, k)
	ds := dnskey.ToDS(dns.SHA256)
	if ds == nil {
		return nil, fmt.Errorf("canon: ToDS returned nil for key tag %d", k.KeyTag)
	}
	return hex.DecodeString(ds.Digest)
}
