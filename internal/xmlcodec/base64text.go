package xmlcodec

import (
	"encoding/base64"
	"encoding/xml"
	"strings"
)

// base64Text is a []byte that marshals as base64 text wrapped at 64
// columns (spec §4.2: "base64 is line-wrapped at 64 columns"), and
// unmarshals tolerating the line wrapping and any surrounding
// whitespace a previous ceremony's emission, or a human editor, added.
type base64Text []byte

const base64LineWidth = 64

func (b base64Text) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	encoded := base64.StdEncoding.EncodeToString(b)
	var wrapped strings.Builder
	for i := 0; i < len(encoded); i += base64LineWidth {
		end := i + base64LineWidth
		if end > len(encoded) {
			end = len(encoded)
		}
		if i > 0 {
			wrapped.WriteByte('\n')
		}
		wrapped.WriteString(encoded[i:end])
	}
	return e.EncodeElement(wrapped.String(), start)
}

func (b *base64Text) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	cleaned := strings.Join(strings.Fields(raw), "")
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}
