package xmlcodec

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/kirei/ksrsigner/internal/canon"
	"github.com/kirei/ksrsigner/internal/model"
)

// Emit writes doc as indented XML with stable attribute ordering (the
// struct field order below) and 64-column-wrapped base64, so that
// textual diffs between ceremonies are meaningful (spec §4.2).
func Emit(w io.Writer, doc *model.Document) error {
	wks, err := toWire(doc)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(wks); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func toWire(doc *model.Document) (*wireKSR, error) {
	w := &wireKSR{ID: doc.ID, Serial: doc.Serial, Domain: doc.Domain}

	switch {
	case doc.Request != nil:
		wr := &wireRequest{Policy: encodeRequestPolicy(doc.Request.Policy)}
		if doc.Timestamp != nil {
			wr.Timestamp = formatTimestamp(*doc.Timestamp)
		}
		bundles, err := encodeBundles(doc.Request.Bundles, true)
		if err != nil {
			return nil, err
		}
		wr.Bundles = bundles
		w.Request = wr

	case doc.Response != nil:
		wr := &wireResponse{Policy: encodeResponsePolicy(doc.Response.Policy)}
		if doc.Timestamp != nil {
			wr.Timestamp = formatTimestamp(*doc.Timestamp)
		}
		bundles, err := encodeBundles(doc.Response.Bundles, false)
		if err != nil {
			return nil, err
		}
		wr.Bundles = bundles
		w.Response = wr

	default:
		return nil, fmt.Errorf("xmlcodec: Emit: document has neither Request nor Response")
	}

	return w, nil
}

func encodeRequestPolicy(p *model.RequestPolicy) wireRequestPolicy {
	return wireRequestPolicy{ZSK: encodeSignaturePolicy(p.ZSK)}
}

func encodeResponsePolicy(p *model.ResponsePolicy) wireResponsePolicy {
	return wireResponsePolicy{
		KSK: encodeSignaturePolicy(p.KSK),
		ZSK: encodeSignaturePolicy(p.ZSK),
	}
}

func encodeSignaturePolicy(p *model.SignaturePolicy) wireSignaturePolicy {
	w := wireSignaturePolicy{
		PublishSafety:        FormatISO8601Duration(p.PublishSafety),
		RetireSafety:         FormatISO8601Duration(p.RetireSafety),
		MaxSignatureValidity: FormatISO8601Duration(p.MaxSignatureValidity),
		MinSignatureValidity: FormatISO8601Duration(p.MinSignatureValidity),
		MaxValidityOverlap:   FormatISO8601Duration(p.MaxValidityOverlap),
		MinValidityOverlap:   FormatISO8601Duration(p.MinValidityOverlap),
	}
	for _, ap := range p.AlgorithmPolicies {
		wa := wireSignatureAlgorithm{Algorithm: ap.Algorithm}
		switch {
		case ap.RSA != nil:
			wa.RSA = &wireRSA{Size: ap.RSA.Size, Exponent: ap.RSA.Exponent}
		case ap.DSA != nil:
			wa.DSA = &wireDSA{Size: ap.DSA.Size}
		case ap.ECDSA != nil:
			wa.ECDSA = &wireECDSA{Size: ap.ECDSA.Size}
		}
		w.SignatureAlgorithms = append(w.SignatureAlgorithms, wa)
	}
	return w
}

func encodeBundles(bundles []model.Bundle, includeSigners bool) ([]wireBundle, error) {
	out := make([]wireBundle, 0, len(bundles))
	for _, b := range bundles {
		keys := make([]model.Key, len(b.Keys))
		copy(keys, b.Keys)
		canon.SortKeysByRDATA(keys)

		sigs := make([]model.Signature, len(b.Signatures))
		copy(sigs, b.Signatures)
		canon.SortSignaturesByTagAlgorithm(sigs)

		wb := wireBundle{
			ID:         b.ID,
			Inception:  formatTimestamp(b.Inception),
			Expiration: formatTimestamp(b.Expiration),
		}
		if includeSigners {
			for _, s := range b.SignerHints {
				wb.Signers = append(wb.Signers, wireSigner{KeyIdentifier: s})
			}
		}
		for _, k := range keys {
			wb.Keys = append(wb.Keys, wireKey{
				KeyIdentifier: k.KeyIdentifier,
				KeyTag:        k.KeyTag,
				TTL:           k.TTL,
				Flags:         k.Flags,
				Protocol:      k.Protocol,
				Algorithm:     k.Algorithm,
				PublicKey:     base64Text(k.PublicKey),
			})
		}
		for _, s := range sigs {
			wb.Signatures = append(wb.Signatures, wireSignature{
				KeyIdentifier:       s.KeyIdentifier,
				TTL:                 s.TTL,
				TypeCovered:         "DNSKEY",
				Algorithm:           s.Algorithm,
				Labels:              s.Labels,
				OriginalTTL:         s.OriginalTTL,
				SignatureInception:  formatTimestamp(s.SignatureInception),
				SignatureExpiration: formatTimestamp(s.SignatureExpiration),
				KeyTag:              s.KeyTag,
				SignersName:         s.SignersName,
				SignatureData:       base64Text(s.SignatureData),
			})
		}
		out = append(out, wb)
	}
	return out, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
