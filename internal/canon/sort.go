package canon

import (
	"bytes"

	"github.com/twotwotwo/sorts"

	"github.com/kirei/ksrsigner/internal/model"
)

// keysByRDATA implements sort.Interface over a Key slice, ordering by
// canonical DNSKEY RDATA byte order (RFC 4034 §6.3).
type keysByRDATA []model.Key

func (k keysByRDATA) Len() int      { return len(k) }
func (k keysByRDATA) Swap(i, j int) { k[i], k[j] = k[j], k[i] }
func (k keysByRDATA) Less(i, j int) bool {
	return bytes.Compare(DNSKEYWireForm(k[i]), DNSKEYWireForm(k[j])) < 0
}

// SortKeysByRDATA sorts keys in place by canonical RDATA byte order, the
// ordering the RRset-to-be-signed and the emitted bundle both use.
// Sorted with github.com/twotwotwo/sorts, the same non-stdlib sorter the
// teacher codebase reaches for over RR collections.
func SortKeysByRDATA(keys []model.Key) {
	sorts.Quicksort(keysByRDATA(keys))
}

// signaturesByTagAlgorithm implements sort.Interface over a Signature
// slice, ordering by (key_tag, algorithm) as spec §5 requires for
// emitted bundles.
type signaturesByTagAlgorithm []model.Signature

func (s signaturesByTagAlgorithm) Len() int      { return len(s) }
func (s signaturesByTagAlgorithm) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s signaturesByTagAlgorithm) Less(i, j int) bool {
	if s[i].KeyTag != s[j].KeyTag {
		return s[i].KeyTag < s[j].KeyTag
	}
	return s[i].Algorithm < s[j].Algorithm
}

// SortSignaturesByTagAlgorithm sorts signatures in place by (key_tag,
// algorithm).
func SortSignaturesByTagAlgorithm(sigs []model.Signature) {
	sorts.Quicksort(signaturesByTagAlgorithm(sigs))
}
