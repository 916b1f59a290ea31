package xmlcodec

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirei/ksrsigner/internal/model"
)

func timeCmpOpt() cmp.Option {
	return cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
}

func sampleRequestDoc() *model.Document {
	inc := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := inc.Add(20 * 24 * time.Hour)

	zsk := &model.SignaturePolicy{
		PublishSafety:        24 * time.Hour,
		RetireSafety:         24 * time.Hour,
		MaxSignatureValidity: 21 * 24 * time.Hour,
		MinSignatureValidity: 19 * 24 * time.Hour,
		MaxValidityOverlap:   11 * 24 * time.Hour,
		MinValidityOverlap:   9 * 24 * time.Hour,
		AlgorithmPolicies: []model.AlgorithmPolicy{
			{Algorithm: 8, RSA: &model.RSAParams{Size: 2048, Exponent: 65537}},
		},
	}

	return &model.Document{
		ID:     "ksr-test-1",
		Serial: 1,
		Domain: ".",
		Request: &model.Request{
			Policy: &model.RequestPolicy{ZSK: zsk},
			Bundles: []model.Bundle{
				{
					ID:         "bundle-1",
					Inception:  inc,
					Expiration: exp,
					Keys: []model.Key{
						{
							KeyIdentifier: "zsk1",
							KeyTag:        12345,
							TTL:           172800,
							Flags:         256,
							Protocol:      3,
							Algorithm:     8,
							PublicKey:     []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
						},
					},
					Signatures: []model.Signature{
						{
							KeyIdentifier:       "zsk1",
							TTL:                 172800,
							TypeCovered:         model.TypeDNSKEY,
							Algorithm:           8,
							Labels:              0,
							OriginalTTL:         172800,
							SignatureInception:  inc,
							SignatureExpiration: exp,
							KeyTag:              12345,
							SignersName:         ".",
							SignatureData:       bytes.Repeat([]byte{0xAB}, 48),
						},
					},
				},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	doc := sampleRequestDoc()

	var buf bytes.Buffer
	if err := Emit(&buf, doc); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got, err := Parse(&buf, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff(doc, got, timeCmpOpt()); diff != "" {
		t.Fatalf("round trip mismatch:\n%s", diff)
	}
}

func TestParseRejectsUnsupportedAlgorithm(t *testing.T) {
	doc := sampleRequestDoc()
	var buf bytes.Buffer
	if err := Emit(&buf, doc); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	_, err := Parse(&buf, []uint8{13}) // algorithm 8 used, only 13 approved
	if err == nil {
		t.Fatal("expected UnsupportedAlgorithm error, got nil")
	}
}

func TestParseRejectsDuplicateKeyIdentifier(t *testing.T) {
	doc := sampleRequestDoc()
	doc.Request.Bundles[0].Keys = append(doc.Request.Bundles[0].Keys, doc.Request.Bundles[0].Keys[0])

	var buf bytes.Buffer
	if err := Emit(&buf, doc); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	_, err := Parse(&buf, nil)
	if err == nil {
		t.Fatal("expected DuplicateKeyIdentifier error, got nil")
	}
}

func TestBase64LineWrapping(t *testing.T) {
	doc := sampleRequestDoc()
	doc.Request.Bundles[0].Keys[0].PublicKey = bytes.Repeat([]byte{0x42}, 300)

	var buf bytes.Buffer
	if err := Emit(&buf, doc); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got, err := Parse(bytes.NewReader(buf.Bytes()), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got.Request.Bundles[0].Keys[0].PublicKey, doc.Request.Bundles[0].Keys[0].PublicKey) {
		t.Fatal("public key mangled by line-wrapped base64 round trip")
	}
}
