package message

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ErrUnparseableEnvelope is returned when the response decodes in neither
// SOAP dialect
var ErrUnparseableEnvelope = errors.New("unparseable SOAP envelope")

// Envelope is a decoded response envelope tagged with its dialect
type Envelope struct {
	Version Version
	Body    *etree.Element
}

// Fault is a SOAP fault in either dialect
type Fault struct {
	Code   string
	Reason string
	Detail string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("SOAP fault %s: %s", f.Code, f.Reason)
}

// decodeRule is one row of the dialect decision table: when the raw text
// contains sniff (or sniff is empty), try the dialects in order.
type decodeRule struct {
	sniff string
	try   []Version
}

// decodeRules is evaluated top to bottom; the first matching row wins.
// SOAP 1.2 is the default because most operations request it, but gateways
// answer in 1.1 under some error conditions.
var decodeRules = []decodeRule{
	{sniff: NsSOAP12, try: []Version{SOAP12, SOAP11}},
	{sniff: NsSOAP11, try: []Version{SOAP11, SOAP12}},
	{sniff: "", try: []Version{SOAP12, SOAP11}},
}

// Decode parses a response without knowing its dialect in advance
func Decode(raw []byte) (*Envelope, error) {
	text := string(raw)
	var errs []error
	for _, rule := range decodeRules {
		if rule.sniff != "" && !strings.Contains(text, rule.sniff) {
			continue
		}
		for _, v := range rule.try {
			env, err := DecodeAs(v, raw)
			if err == nil {
				return env, nil
			}
			errs = append(errs, fmt.Errorf("SOAP %s: %w", v, err))
		}
		break
	}
	return nil, fmt.Errorf("%w: %w", ErrUnparseableEnvelope, errors.Join(errs...))
}

// DecodeAs parses raw as an envelope of dialect v only
func DecodeAs(v Version, raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty response")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, errors.New("root element is not Envelope")
	}
	if ns := root.NamespaceURI(); ns != v.Namespace() {
		return nil, fmt.Errorf("envelope namespace %q", ns)
	}

	var body *etree.Element
	for _, c := range root.ChildElements() {
		if c.Tag == "Body" && c.NamespaceURI() == v.Namespace() {
			body = c
			break
		}
	}
	if body == nil {
		return nil, errors.New("envelope has no Body")
	}
	return &Envelope{Version: v, Body: body}, nil
}

// Result returns the Body child with the given local name, or nil when the
// response does not carry it. A nil result is indeterminate, not an error.
func (e *Envelope) Result(name string) *etree.Element {
	if e == nil || e.Body == nil {
		return nil
	}
	for _, c := range e.Body.ChildElements() {
		if c.Tag == name {
			return c
		}
	}
	return nil
}

// ResultInto decodes the named Body child into v. It reports false when the
// node is absent.
func (e *Envelope) ResultInto(name string, v any) (bool, error) {
	el := e.Result(name)
	if el == nil {
		return false, nil
	}
	if err := Unmarshal(el, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return true, nil
}

// Unmarshal decodes an element with encoding/xml. Namespace declarations
// in scope are copied onto the detached element first.
func Unmarshal(el *etree.Element, v any) error {
	c := el.Copy()
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			isDecl := a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
			if isDecl && c.SelectAttr(a.FullKey()) == nil {
				c.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
	doc := etree.NewDocument()
	doc.SetRoot(c)
	data, err := doc.WriteToBytes()
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

// Fault returns the SOAP fault carried by the body, or nil
func (e *Envelope) Fault() *Fault {
	el := e.Result("Fault")
	if el == nil {
		return nil
	}
	f := &Fault{}
	if e.Version == SOAP11 {
		f.Code = childText(el, "faultcode")
		f.Reason = childText(el, "faultstring")
		if d := el.SelectElement("detail"); d != nil {
			f.Detail = strings.TrimSpace(allText(d))
		}
		return f
	}
	if code := el.SelectElement("Code"); code != nil {
		f.Code = childText(code, "Value")
	}
	if reason := el.SelectElement("Reason"); reason != nil {
		f.Reason = childText(reason, "Text")
	}
	if d := el.SelectElement("Detail"); d != nil {
		f.Detail = strings.TrimSpace(allText(d))
	}
	return f
}

// Text returns the trimmed text of the first element named name anywhere in
// the Body, or "" when absent
func (e *Envelope) Text(name string) string {
	if e == nil || e.Body == nil {
		return ""
	}
	if el := find(e.Body, name); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func childText(el *etree.Element, name string) string {
	if c := el.SelectElement(name); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func allText(el *etree.Element) string {
	var b strings.Builder
	b.WriteString(el.Text())
	for _, c := range el.ChildElements() {
		b.WriteString(allText(c))
		b.WriteString(c.Tail())
	}
	return b.String()
}

func find(el *etree.Element, name string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == name {
			return c
		}
		if found := find(c, name); found != nil {
			return found
		}
	}
	return nil
}
