package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Parse reads an rDE (or a bare DE) produced elsewhere. SIFEN namespace
// prefixes such as ns0: are rewritten to the default namespace, the CDC is
// checked against its check digit and against the fields it encodes, and a
// document that already carries a Signature is returned in the Signed state.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: malformed XML: %v", ErrInvalidDocumentFields, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocumentFields)
	}
	normalizePrefixes(root)

	rde := findDescendant(root, "rDE")
	if rde == nil {
		de := findDescendant(root, "DE")
		if de == nil {
			return nil, fmt.Errorf("%w: no rDE or DE element", ErrInvalidDocumentFields)
		}
		rde = wrap(de)
	}
	rde = rde.Copy()
	if rde.SelectAttr("xmlns") == nil {
		rde.CreateAttr("xmlns", Namespace)
	}

	de := rde.SelectElement("DE")
	if de == nil {
		return nil, fmt.Errorf("%w: rDE has no DE child", ErrInvalidDocumentFields)
	}
	id := de.SelectAttrValue("Id", "")
	if !ValidateIdentifier(id) {
		return nil, fmt.Errorf("%w: %q", ErrChecksumMismatch, id)
	}

	f, err := identifierFields(de)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	derived, err := DeriveIdentifier(f)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	if derived != id {
		return nil, fmt.Errorf("%w: Id %s, fields give %s", ErrChecksumMismatch, id, derived)
	}

	d := &Document{fields: f, id: id, state: Unsigned, parsed: rde}
	if findDescendant(rde, "Signature") != nil {
		d.state = Signed
		d.signed = rde
	}
	return d, nil
}

// normalizePrefixes drops prefixes bound to the SIFEN namespace. URIs are
// resolved for the whole tree before anything is rewritten because the
// prefix declarations being removed are what the resolution depends on.
func normalizePrefixes(root *etree.Element) {
	var prefixed []*etree.Element
	walk(root, func(el *etree.Element) {
		if el.Space != "" && el.NamespaceURI() == Namespace {
			prefixed = append(prefixed, el)
		}
	})
	if len(prefixed) == 0 {
		return
	}

	for _, el := range prefixed {
		el.Space = ""
	}
	walk(root, func(el *etree.Element) {
		for _, a := range append([]etree.Attr(nil), el.Attr...) {
			if a.Space == "xmlns" && a.Value == Namespace {
				el.RemoveAttr(a.FullKey())
			}
		}
	})
	if root.SelectAttr("xmlns") == nil {
		root.CreateAttr("xmlns", Namespace)
	}
}

// wrap builds an rDE around a bare DE
func wrap(de *etree.Element) *etree.Element {
	rde := etree.NewElement("rDE")
	rde.CreateAttr("xmlns", Namespace)
	rde.CreateAttr("xmlns:xsi", NamespaceXSI)
	rde.CreateAttr("xsi:schemaLocation", SchemaLocation)
	rde.CreateElement("dVerFor").SetText(FormatVersion)
	c := de.Copy()
	c.RemoveAttr("xmlns")
	rde.AddChild(c)
	return rde
}

// identifierFields reads the CDC inputs back from a DE
func identifierFields(de *etree.Element) (Fields, error) {
	var f Fields
	var err error
	num := func(path ...string) int {
		if err != nil {
			return 0
		}
		s := text(de, path...)
		v, perr := strconv.Atoi(s)
		if perr != nil {
			err = fmt.Errorf("%w: %s %q is not numeric", ErrInvalidDocumentFields, strings.Join(path, "/"), s)
		}
		return v
	}

	f.Type = Type(num("gTimb", "iTiDE"))
	f.IssuerDV = num("gDatGralOpe", "gEmis", "dDVEmi")
	f.Establishment = num("gTimb", "dEst")
	f.PointOfSale = num("gTimb", "dPunExp")
	f.Number = num("gTimb", "dNumDoc")
	f.StampNumber = num("gTimb", "dNumTim")
	f.TaxpayerType = TaxpayerType(num("gDatGralOpe", "gEmis", "iTipCont"))
	f.EmissionType = EmissionType(num("gOpeDE", "iTipEmi"))
	f.SecurityCode = num("gOpeDE", "dCodSeg")
	if err != nil {
		return Fields{}, err
	}

	f.IssuerRUC = text(de, "gDatGralOpe", "gEmis", "dRucEm")
	f.IssuerName = text(de, "gDatGralOpe", "gEmis", "dNomEmi")
	f.Currency = text(de, "gDatGralOpe", "gOpeCom", "cMoneOpe")
	f.Receiver.RUC = text(de, "gDatGralOpe", "gDatRec", "dRucRec")
	f.Receiver.Name = text(de, "gDatGralOpe", "gDatRec", "dNomRec")

	f.IssuedAt, err = parseIssueDate(text(de, "gDatGralOpe", "dFeEmiDE"))
	if err != nil {
		return Fields{}, err
	}
	return f, nil
}

// text returns the trimmed text at a child path, or "" when absent
func text(el *etree.Element, path ...string) string {
	for _, p := range path {
		if el = el.SelectElement(p); el == nil {
			return ""
		}
	}
	return strings.TrimSpace(el.Text())
}

// Text returns the trimmed text of the first descendant named tag
func Text(el *etree.Element, tag string) string {
	if found := findDescendant(el, tag); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

func walk(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, c := range el.ChildElements() {
		walk(c, fn)
	}
}

// findDescendant does a depth-first search by local name, including el
func findDescendant(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findDescendant(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// Find returns the first element named tag in el's subtree, matching on the
// local name only
func Find(el *etree.Element, tag string) *etree.Element {
	return findDescendant(el, tag)
}
