package message

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const declaration = `<?xml version="1.0" encoding="UTF-8"?>`

// outEnvelope is the serialized form of an outgoing envelope. The prefix is
// written literally and bound by the Xmlns attribute.
type outEnvelope struct {
	XMLName xml.Name
	Xmlns   string   `xml:"xmlns:soap,attr"`
	Header  struct{} `xml:"soap:Header"`
	Body    RawXML   `xml:"soap:Body"`
}

// Build wraps body in a SOAP envelope of the given dialect and returns the
// complete request text. The body is marshalled with encoding/xml; RawXML
// fields inside it are copied without re-encoding.
func Build(v Version, body any) ([]byte, error) {
	if body == nil {
		return nil, fmt.Errorf("empty SOAP body")
	}
	inner, err := xml.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SOAP body: %w", err)
	}

	env := outEnvelope{
		XMLName: xml.Name{Local: "soap:Envelope"},
		Xmlns:   v.Namespace(),
		Body:    RawXML{Inner: inner},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SOAP envelope: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(declaration) + len(out))
	buf.WriteString(declaration)
	buf.Write(out)
	return buf.Bytes(), nil
}

// NewRUCQuery creates a taxpayer lookup body
func NewRUCQuery(id, ruc string) *RUCQuery {
	return &RUCQuery{Xmlns: NsSIFEN, ID: id, RUC: ruc}
}

// NewDocumentSubmission creates a single document reception body around the
// serialized signed rDE
func NewDocumentSubmission(id string, signedRDE []byte) *DocumentSubmission {
	return &DocumentSubmission{Xmlns: NsSIFEN, ID: id, XDE: RawXML{Inner: signedRDE}}
}

// NewLotSubmission creates a lot reception body around the encoded lot
func NewLotSubmission(id, encodedLot string) *LotSubmission {
	return &LotSubmission{Xmlns: NsSIFEN, ID: id, XDE: encodedLot}
}

// NewLotQuery creates a lot status query body
func NewLotQuery(id, protocol string) *LotQuery {
	return &LotQuery{Xmlns: NsSIFEN, ID: id, Protocol: protocol}
}

// NewDocumentQuery creates a document query body
func NewDocumentQuery(id, cdc string) *DocumentQuery {
	return &DocumentQuery{Xmlns: NsSIFEN, ID: id, CDC: cdc}
}
