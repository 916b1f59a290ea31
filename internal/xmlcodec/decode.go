package xmlcodec

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/model"
)

// Parse decodes a KSR or SKR XML document into the wire model. It
// fails with *errs.MalformedXml on schema violations, *errs.
// UnsupportedAlgorithm when approvedAlgorithms is non-empty and a
// bundle uses an algorithm outside it, and *errs.
// DuplicateKeyIdentifier on intra-bundle key_identifier collisions.
// approvedAlgorithms may be nil to skip that check (e.g. when parsing
// an SKR the inventory, not the approved-algorithms policy, governs
// acceptable algorithms).
func Parse(r io.Reader, approvedAlgorithms []uint8) (*model.Document, error) {
	var w wireKSR
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&w); err != nil {
		return nil, &errs.MalformedXml{Reason: err.Error()}
	}

	if w.ID == "" {
		return nil, &errs.MalformedXml{Reason: "KSR/id attribute is required"}
	}
	if (w.Request == nil) == (w.Response == nil) {
		return nil, &errs.MalformedXml{Reason: "exactly one of Request or Response must be present"}
	}

	doc := &model.Document{
		ID:     w.ID,
		Serial: w.Serial,
		Domain: w.Domain,
	}

	approved := make(map[uint8]bool, len(approvedAlgorithms))
	for _, a := range approvedAlgorithms {
		approved[a] = true
	}
	checkAlgorithm := func(alg uint8, bundleID string) error {
		if len(approved) == 0 {
			return nil
		}
		if !approved[alg] {
			return &errs.UnsupportedAlgorithm{Algorithm: alg, BundleID: bundleID}
		}
		return nil
	}

	switch {
	case w.Request != nil:
		if w.Request.Timestamp != "" {
			ts, err := parseTimestamp(w.Request.Timestamp)
			if err != nil {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("Request/timestamp: %v", err)}
			}
			doc.Timestamp = &ts
		}
		policy, err := decodeRequestPolicy(w.Request.Policy)
		if err != nil {
			return nil, &errs.MalformedXml{Reason: err.Error()}
		}
		bundles, err := decodeBundles(w.Request.Bundles, checkAlgorithm)
		if err != nil {
			return nil, err
		}
		doc.Request = &model.Request{Policy: policy, Bundles: bundles}

	case w.Response != nil:
		if w.Response.Timestamp != "" {
			ts, err := parseTimestamp(w.Response.Timestamp)
			if err != nil {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("Response/timestamp: %v", err)}
			}
			doc.Timestamp = &ts
		}
		policy, err := decodeResponsePolicy(w.Response.Policy)
		if err != nil {
			return nil, &errs.MalformedXml{Reason: err.Error()}
		}
		bundles, err := decodeBundles(w.Response.Bundles, checkAlgorithm)
		if err != nil {
			return nil, err
		}
		doc.Response = &model.Response{Policy: policy, Bundles: bundles}
	}

	return doc, nil
}

func decodeRequestPolicy(w wireRequestPolicy) (*model.RequestPolicy, error) {
	zsk, err := decodeSignaturePolicy(w.ZSK)
	if err != nil {
		return nil, fmt.Errorf("RequestPolicy/ZSK: %w", err)
	}
	return &model.RequestPolicy{ZSK: zsk}, nil
}

func decodeResponsePolicy(w wireResponsePolicy) (*model.ResponsePolicy, error) {
	ksk, err := decodeSignaturePolicy(w.KSK)
	if err != nil {
		return nil, fmt.Errorf("ResponsePolicy/KSK: %w", err)
	}
	zsk, err := decodeSignaturePolicy(w.ZSK)
	if err != nil {
		return nil, fmt.Errorf("ResponsePolicy/ZSK: %w", err)
	}
	return &model.ResponsePolicy{KSK: ksk, ZSK: zsk}, nil
}

func decodeSignaturePolicy(w wireSignaturePolicy) (*model.SignaturePolicy, error) {
	p := &model.SignaturePolicy{}
	var err error
	if p.PublishSafety, err = ParseISO8601Duration(w.PublishSafety); err != nil {
		return nil, fmt.Errorf("PublishSafety: %w", err)
	}
	if p.RetireSafety, err = ParseISO8601Duration(w.RetireSafety); err != nil {
		return nil, fmt.Errorf("RetireSafety: %w", err)
	}
	if p.MaxSignatureValidity, err = ParseISO8601Duration(w.MaxSignatureValidity); err != nil {
		return nil, fmt.Errorf("MaxSignatureValidity: %w", err)
	}
	if p.MinSignatureValidity, err = ParseISO8601Duration(w.MinSignatureValidity); err != nil {
		return nil, fmt.Errorf("MinSignatureValidity: %w", err)
	}
	if p.MaxValidityOverlap, err = ParseISO8601Duration(w.MaxValidityOverlap); err != nil {
		return nil, fmt.Errorf("MaxValidityOverlap: %w", err)
	}
	if p.MinValidityOverlap, err = ParseISO8601Duration(w.MinValidityOverlap); err != nil {
		return nil, fmt.Errorf("MinValidityOverlap: %w", err)
	}
	if len(w.SignatureAlgorithms) == 0 {
		return nil, fmt.Errorf("at least one SignatureAlgorithm is required")
	}
	for _, a := range w.SignatureAlgorithms {
		ap := model.AlgorithmPolicy{Algorithm: a.Algorithm}
		switch {
		case a.RSA != nil:
			ap.RSA = &model.RSAParams{Size: a.RSA.Size, Exponent: a.RSA.Exponent}
		case a.DSA != nil:
			ap.DSA = &model.DSAParams{Size: a.DSA.Size}
		case a.ECDSA != nil:
			ap.ECDSA = &model.ECDSAParams{Size: a.ECDSA.Size}
		default:
			return nil, fmt.Errorf("SignatureAlgorithm algorithm=%d has no RSA/DSA/ECDSA parameters", a.Algorithm)
		}
		p.AlgorithmPolicies = append(p.AlgorithmPolicies, ap)
	}
	return p, nil
}

func decodeBundles(wbundles []wireBundle, checkAlgorithm func(alg uint8, bundleID string) error) ([]model.Bundle, error) {
	bundles := make([]model.Bundle, 0, len(wbundles))
	for _, wb := range wbundles {
		if wb.ID == "" {
			return nil, &errs.MalformedXml{Reason: "bundle id is required"}
		}
		inception, err := parseTimestamp(wb.Inception)
		if err != nil {
			return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q Inception: %v", wb.ID, err)}
		}
		expiration, err := parseTimestamp(wb.Expiration)
		if err != nil {
			return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q Expiration: %v", wb.ID, err)}
		}

		b := model.Bundle{ID: wb.ID, Inception: inception, Expiration: expiration}
		for _, s := range wb.Signers {
			b.SignerHints = append(b.SignerHints, s.KeyIdentifier)
		}

		seen := make(map[string]bool, len(wb.Keys))
		for _, wk := range wb.Keys {
			if wk.KeyIdentifier == "" {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q has a Key with no keyIdentifier", wb.ID)}
			}
			if seen[wk.KeyIdentifier] {
				return nil, &errs.DuplicateKeyIdentifier{BundleID: wb.ID, KeyIdentifier: wk.KeyIdentifier}
			}
			seen[wk.KeyIdentifier] = true

			if err := checkAlgorithm(wk.Algorithm, wb.ID); err != nil {
				return nil, err
			}

			b.Keys = append(b.Keys, model.Key{
				KeyIdentifier: wk.KeyIdentifier,
				KeyTag:        wk.KeyTag,
				TTL:           wk.TTL,
				Flags:         wk.Flags,
				Protocol:      wk.Protocol,
				Algorithm:     wk.Algorithm,
				PublicKey:     []byte(wk.PublicKey),
			})
		}

		for _, ws := range wb.Signatures {
			if ws.KeyIdentifier == "" {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q has a Signature with no keyIdentifier", wb.ID)}
			}
			if ws.TypeCovered != "DNSKEY" {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q Signature TypeCovered must be DNSKEY, got %q", wb.ID, ws.TypeCovered)}
			}
			sigIncep, err := parseTimestamp(ws.SignatureInception)
			if err != nil {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q Signature/SignatureInception: %v", wb.ID, err)}
			}
			sigExpir, err := parseTimestamp(ws.SignatureExpiration)
			if err != nil {
				return nil, &errs.MalformedXml{Reason: fmt.Sprintf("bundle %q Signature/SignatureExpiration: %v", wb.ID, err)}
			}
			b.Signatures = append(b.Signatures, model.Signature{
				KeyIdentifier:       ws.KeyIdentifier,
				TTL:                 ws.TTL,
				TypeCovered:         model.TypeDNSKEY,
				Algorithm:           ws.Algorithm,
				Labels:              ws.Labels,
				OriginalTTL:         ws.OriginalTTL,
				SignatureInception:  sigIncep,
				SignatureExpiration: sigExpir,
				KeyTag:              ws.KeyTag,
				SignersName:         ws.SignersName,
				SignatureData:       []byte(ws.SignatureData),
			})
		}

		bundles = append(bundles, b)
	}
	return bundles, nil
}

// parseTimestamp accepts RFC 3339 ("2023-01-01T00:00:00Z", what this
// codec emits) and bare UNIX seconds (what some upstream tooling
// writes), since the original kskm KSR/SKR corpus is not perfectly
// uniform on this point.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
