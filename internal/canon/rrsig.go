package canon

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/kirei/ksrsigner/internal/model"
)

// SignedData builds the exact byte string a DNSKEY-RRSIG's signature is
// computed over (spec §4.1): the RRSIG RDATA fields that precede the
// signature itself, followed by the canonical RRset being signed —
// owner name, type, class, original TTL, RDLENGTH, DNSKEY RDATA, one
// entry per key, sorted by canonical RDATA byte order. This is what
// gets handed to a Signer: the HSM (or soft-file signer) hashes and
// signs it, it never sees anything else about the bundle.
func SignedData(owner string, sig model.Signature, keys []model.Key) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("canon: SignedData: no keys to sign")
	}

	ownerWire, err := canonicalOwnerName(owner)
	if err != nil {
		return nil, fmt.Errorf("canon: SignedData: owner name: %w", err)
	}
	signerWire, err := canonicalOwnerName(sig.SignersName)
	if err != nil {
		return nil, fmt.Errorf("canon: SignedData: signer name: %w", err)
	}

	var buf bytes.Buffer
	// RRSIG RDATA prefix, up to but excluding the Signature field.
	writeUint16(&buf, sig.TypeCovered)
	buf.WriteByte(sig.Algorithm)
	buf.WriteByte(sig.Labels)
	writeUint32(&buf, sig.OriginalTTL)
	writeUint32(&buf, uint32(sig.SignatureExpiration.Unix()))
	writeUint32(&buf, uint32(sig.SignatureInception.Unix()))
	writeUint16(&buf, sig.KeyTag)
	buf.Write(signerWire)

	sorted := make([]model.Key, len(keys))
	copy(sorted, keys)
	SortKeysByRDATA(sorted)

	for _, k := range sorted {
		rdata := DNSKEYWireForm(k)
		buf.Write(ownerWire)
		writeUint16(&buf, model.TypeDNSKEY)
		writeUint16(&buf, 1) // CLASS IN
		writeUint32(&buf, sig.OriginalTTL)
		writeUint16(&buf, uint16(len(rdata)))
		buf.Write(rdata)
	}

	return buf.Bytes(), nil
}

// DNSKEYWireForm is the canonical DNSKEY RDATA: flags(2) || protocol(1)
// || algorithm(1) || public_key(var), network byte order.
func DNSKEYWireForm(k model.Key) []byte {
	buf := make([]byte, 4+len(k.PublicKey))
	binary.BigEndian.PutUint16(buf[0:2], k.Flags)
	buf[2] = k.Protocol
	buf[3] = k.Algorithm
	copy(buf[4:], k.PublicKey)
	return buf
}

// canonicalOwnerName lowercases and wire-encodes a domain name as
// length-prefixed labels, per RFC 4034 §6.2.
func canonicalOwnerName(name string) ([]byte, error) {
	fqdn := dns.Fqdn(strings.ToLower(name))
	wire := make([]byte, 255)
	n, err := dns.PackDomainName(fqdn, wire, 0, nil, false)
	if err != nil {
		return nil, err
	}
	return wire[:n], nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// VerifySignature verifies sig against signerKey over the canonical
// DNSKEY RRset formed by keys, delegating the cryptographic check to
// github.com/miekg/dns (which implements the same canonicalization
// this package hand-builds for the signing path — verification only
// needs public-key material, so there is no opaque-HSM constraint
// forcing a hand-rolled path here).
func VerifySignature(owner string, sig model.Signature, signerKey model.Key, keys []model.Key) error {
	rrsig := &dns.RRSIG{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(owner),
			Rrtype: dns.TypeRRSIG,
			Class:  dns.ClassINET,
			Ttl:    sig.TTL,
		},
		TypeCovered: sig.TypeCovered,
		Algorithm:   sig.Algorithm,
		Labels:      sig.Labels,
		OrigTtl:     sig.OriginalTTL,
		Expiration:  uint32(sig.SignatureExpiration.Unix()),
		Inception:   uint32(sig.SignatureInception.Unix()),
		KeyTag:      sig.KeyTag,
		SignerName:  dns.Fqdn(sig.SignersName),
		Signature:   base64.StdEncoding.EncodeToString(sig.SignatureData),
	}

	dnskey := ToDNSKEY(owner, signerKey)

	sorted := make([]model.Key, len(keys))
	copy(sorted, keys)
	SortKeysByRDATA(sorted)

	rrset := make([]dns.RR, 0, len(sorted))
	for _, k := range sorted {
		rrset = append(rrset, ToDNSKEY(owner, k))
	}

	return rrsig.Verify(dnskey, rrset)
}
