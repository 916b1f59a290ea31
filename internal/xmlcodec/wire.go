package xmlcodec

import "encoding/xml"

// These types mirror the KSR/SKR XML schema (spec §6) exactly; they are
// private to this package. internal/model is the public, encoding-free
// representation the rest of the core works with.

type wireKSR struct {
	XMLName  xml.Name        `xml:"KSR"`
	ID       string          `xml:"id,attr"`
	Serial   int64           `xml:"serial,attr"`
	Domain   string          `xml:"domain,attr"`
	Request  *wireRequest    `xml:"Request"`
	Response *wireResponse   `xml:"Response"`
}

type wireRequest struct {
	Timestamp string            `xml:"timestamp,attr,omitempty"`
	Policy    wireRequestPolicy `xml:"RequestPolicy"`
	Bundles   []wireBundle      `xml:"RequestBundle"`
}

type wireResponse struct {
	Timestamp string             `xml:"timestamp,attr,omitempty"`
	Policy    wireResponsePolicy `xml:"ResponsePolicy"`
	Bundles   []wireBundle       `xml:"ResponseBundle"`
}

type wireRequestPolicy struct {
	ZSK wireSignaturePolicy `xml:"ZSK"`
}

type wireResponsePolicy struct {
	KSK wireSignaturePolicy `xml:"KSK"`
	ZSK wireSignaturePolicy `xml:"ZSK"`
}

type wireSignaturePolicy struct {
	PublishSafety         string                  `xml:"PublishSafety"`
	RetireSafety          string                  `xml:"RetireSafety"`
	MaxSignatureValidity  string                  `xml:"MaxSignatureValidity"`
	MinSignatureValidity  string                  `xml:"MinSignatureValidity"`
	MaxValidityOverlap    string                  `xml:"MaxValidityOverlap"`
	MinValidityOverlap    string                  `xml:"MinValidityOverlap"`
	SignatureAlgorithms   []wireSignatureAlgorithm `xml:"SignatureAlgorithm"`
}

type wireSignatureAlgorithm struct {
	Algorithm uint8     `xml:"algorithm,attr"`
	RSA       *wireRSA  `xml:"RSA"`
	DSA       *wireDSA  `xml:"DSA"`
	ECDSA     *wireECDSA `xml:"ECDSA"`
}

type wireRSA struct {
	Size     int `xml:"size,attr"`
	Exponent int `xml:"exponent,attr"`
}

type wireDSA struct {
	Size int `xml:"size,attr"`
}

type wireECDSA struct {
	Size int `xml:"size,attr"`
}

type wireBundle struct {
	ID         string         `xml:"id,attr"`
	Inception  string         `xml:"Inception"`
	Expiration string         `xml:"Expiration"`
	Signers    []wireSigner   `xml:"Signer"`
	Keys       []wireKey      `xml:"Key"`
	Signatures []wireSignature `xml:"Signature"`
}

type wireSigner struct {
	KeyIdentifier string `xml:"keyIdentifier,attr"`
}

type wireKey struct {
	KeyIdentifier string `xml:"keyIdentifier,attr"`
	KeyTag        uint16 `xml:"keyTag,attr"`
	TTL           uint32 `xml:"TTL"`
	Flags         uint16 `xml:"Flags"`
	Protocol      uint8  `xml:"Protocol"`
	Algorithm     uint8  `xml:"Algorithm"`
	PublicKey     base64Text `xml:"PublicKey"`
}

type wireSignature struct {
	KeyIdentifier       string     `xml:"keyIdentifier,attr"`
	TTL                 uint32     `xml:"TTL"`
	TypeCovered         string     `xml:"TypeCovered"`
	Algorithm           uint8      `xml:"Algorithm"`
	Labels              uint8      `xml:"Labels"`
	OriginalTTL         uint32     `xml:"OriginalTTL"`
	SignatureInception  string     `xml:"SignatureInception"`
	SignatureExpiration string     `xml:"SignatureExpiration"`
	KeyTag              uint16     `xml:"KeyTag"`
	SignersName         string     `xml:"SignersName"`
	SignatureData       base64Text `xml:"SignatureData"`
}
