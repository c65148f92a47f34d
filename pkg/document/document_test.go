package document

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() Fields {
	return Fields{
		Type:          TypeInvoice,
		IssuerRUC:     "80089752",
		IssuerDV:      8,
		Establishment: 1,
		PointOfSale:   1,
		Number:        1,
		TaxpayerType:  TaxpayerCompany,
		IssuedAt:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		EmissionType:  EmissionNormal,
		SecurityCode:  123,
		StampNumber:   12345678,
		StampStart:    time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		IssuerName:    "DE generado en ambiente de prueba",
		IssuerAddress: "Avda. España 123",
		Receiver: Receiver{
			RUC:  "80012345",
			DV:   0,
			Name: "Cliente de Prueba SA",
		},
		Items: []Item{
			{Code: "A1", Description: "Producto gravado 10", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(11000), VATRate: 10},
			{Code: "A2", Description: "Producto gravado 5", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10500), VATRate: 5},
			{Code: "A3", Description: "Producto exento", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(3000), VATRate: 0},
		},
	}
}

func serialize(t *testing.T, el *etree.Element) string {
	t.Helper()
	doc := etree.NewDocument()
	doc.SetRoot(el)
	s, err := doc.WriteToString()
	require.NoError(t, err)
	return s
}

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		number string
		want   int
	}{
		{"80089752", 8},
		{"0", 0},
		{"1", 9},
		{"11", 6},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			dv, err := CheckDigit(tt.number)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dv)
		})
	}

	_, err := CheckDigit("12a4")
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)
	_, err = CheckDigit("")
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)
}

func TestDeriveIdentifier(t *testing.T) {
	f := testFields()

	id, err := DeriveIdentifier(f)
	require.NoError(t, err)
	assert.Len(t, id, IdentifierLength)
	assert.True(t, strings.HasPrefix(id, "01"+"80089752"+"8"+"001"+"001"+"0000001"+"2"+"20240115"+"1"+"000000123"))
	assert.True(t, ValidateIdentifier(id))

	again, err := DeriveIdentifier(f)
	require.NoError(t, err)
	assert.Equal(t, id, again, "derivation must be deterministic")

	f.Number = 2
	other, err := DeriveIdentifier(f)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestDeriveIdentifier_PadsShortRUC(t *testing.T) {
	f := testFields()
	f.IssuerRUC = "1234"
	dv, err := CheckDigit("1234")
	require.NoError(t, err)
	f.IssuerDV = dv

	id, err := DeriveIdentifier(f)
	require.NoError(t, err)
	assert.Equal(t, "0100001234", id[:10])
}

func TestDeriveIdentifier_InvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Fields)
	}{
		{"unknown type", func(f *Fields) { f.Type = 3 }},
		{"empty RUC", func(f *Fields) { f.IssuerRUC = "" }},
		{"long RUC", func(f *Fields) { f.IssuerRUC = "123456789" }},
		{"wrong DV", func(f *Fields) { f.IssuerDV = 7 }},
		{"zero establishment", func(f *Fields) { f.Establishment = 0 }},
		{"point of sale too large", func(f *Fields) { f.PointOfSale = 1000 }},
		{"number too large", func(f *Fields) { f.Number = 10000000 }},
		{"taxpayer type", func(f *Fields) { f.TaxpayerType = 0 }},
		{"missing date", func(f *Fields) { f.IssuedAt = time.Time{} }},
		{"emission type", func(f *Fields) { f.EmissionType = 9 }},
		{"security code", func(f *Fields) { f.SecurityCode = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFields()
			tt.mutate(&f)
			_, err := DeriveIdentifier(f)
			assert.ErrorIs(t, err, ErrInvalidDocumentFields)
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	id, err := DeriveIdentifier(testFields())
	require.NoError(t, err)

	assert.True(t, ValidateIdentifier(id))
	assert.False(t, ValidateIdentifier(id[:43]))
	assert.False(t, ValidateIdentifier(id+"0"))

	last := id[43] - '0'
	flipped := id[:43] + string(rune('0'+(last+1)%10))
	assert.False(t, ValidateIdentifier(flipped))
	assert.False(t, ValidateIdentifier(strings.Repeat("x", 44)))
}

func TestNew_ItemValidation(t *testing.T) {
	f := testFields()
	f.Items = nil
	_, err := New(f)
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)

	f = testFields()
	f.Items[0].VATRate = 7
	_, err = New(f)
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)

	f = testFields()
	f.Items[1].Quantity = decimal.Zero
	_, err = New(f)
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)
}

func TestTotals(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	tot := doc.Totals()
	assert.Equal(t, "35500", tot.Operation.String())
	assert.Equal(t, "22000", tot.Sub10.String())
	assert.Equal(t, "10500", tot.Sub5.String())
	assert.Equal(t, "3000", tot.Exempt.String())
	assert.Equal(t, "2000", tot.VAT10.String())
	assert.Equal(t, "500", tot.VAT5.String())
	assert.Equal(t, "2500", tot.VAT.String())
	assert.Equal(t, "30000", tot.TaxableBase.String())
}

func TestElement(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)
	assert.Equal(t, Unsigned, doc.State())

	signedAt := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	rde := doc.Element(signedAt)
	assert.Equal(t, "rDE", rde.Tag)
	assert.Equal(t, Namespace, rde.SelectAttrValue("xmlns", ""))

	de := rde.SelectElement("DE")
	require.NotNil(t, de)
	assert.Equal(t, doc.ID(), de.SelectAttrValue("Id", ""))
	assert.Equal(t, "2024-01-15T11:00:00", Text(de, "dFecFirma"))
	assert.Equal(t, "2024-01-15T10:30:00", Text(de, "dFeEmiDE"))
	assert.Equal(t, "35500", Text(de, "dTotGralOpe"))
	assert.Equal(t, "2500", Text(de, "dTotIVA"))
	assert.Len(t, de.SelectElement("gDtipDE").SelectElements("gCamItem"), 3)

	// each call yields an independent tree
	rde.SelectElement("DE").CreateElement("extra")
	assert.Nil(t, Find(doc.Element(signedAt), "extra"))
}

func TestSeal(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	el := doc.Element(time.Now())
	require.NoError(t, doc.Seal(el))
	assert.Equal(t, Signed, doc.State())

	err = doc.Seal(el)
	assert.ErrorIs(t, err, ErrAlreadySigned)
}

func TestParse_RoundTrip(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	xml := serialize(t, doc.Element(time.Now()))
	parsed, err := Parse([]byte(xml))
	require.NoError(t, err)

	assert.Equal(t, doc.ID(), parsed.ID())
	assert.Equal(t, Unsigned, parsed.State())
	assert.True(t, parsed.Parsed())
	assert.Equal(t, "80089752", parsed.Fields().IssuerRUC)
	assert.Equal(t, 1, parsed.Fields().Number)
}

func TestParse_StripsNamespacePrefix(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	xml := serialize(t, doc.Element(time.Now()))
	xml = strings.Replace(xml, `xmlns="`+Namespace+`"`, `xmlns:ns0="`+Namespace+`"`, 1)
	xml = regexp.MustCompile(`<(/?)([A-Za-z])`).ReplaceAllString(xml, "<${1}ns0:${2}")
	require.Contains(t, xml, "<ns0:DE ")

	parsed, err := Parse([]byte(xml))
	require.NoError(t, err)
	assert.Equal(t, doc.ID(), parsed.ID())

	out := serialize(t, parsed.Element(time.Now()))
	assert.NotContains(t, out, "ns0:")
	assert.Contains(t, out, `xmlns="`+Namespace+`"`)
}

func TestParse_BareDE(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	de := doc.Element(time.Now()).SelectElement("DE").Copy()
	de.CreateAttr("xmlns", Namespace)

	parsed, err := Parse([]byte(serialize(t, de)))
	require.NoError(t, err)
	el := parsed.Element(time.Now())
	assert.Equal(t, "rDE", el.Tag)
	assert.Equal(t, FormatVersion, Text(el, "dVerFor"))
}

func TestParse_ChecksumMismatch(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	t.Run("check digit", func(t *testing.T) {
		el := doc.Element(time.Now())
		de := el.SelectElement("DE")
		id := doc.ID()
		last := id[43] - '0'
		de.CreateAttr("Id", id[:43]+string(rune('0'+(last+1)%10)))

		_, err := Parse([]byte(serialize(t, el)))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("fields", func(t *testing.T) {
		el := doc.Element(time.Now())
		Find(el, "dNumDoc").SetText("0000002")

		_, err := Parse([]byte(serialize(t, el)))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})
}

func TestParse_PreSigned(t *testing.T) {
	doc, err := New(testFields())
	require.NoError(t, err)

	el := doc.Element(time.Now())
	sig := el.CreateElement("Signature")
	sig.CreateAttr("xmlns", NamespaceDSig)

	parsed, err := Parse([]byte(serialize(t, el)))
	require.NoError(t, err)
	assert.Equal(t, Signed, parsed.State())
	assert.Equal(t, doc.ID(), parsed.ID())

	assert.ErrorIs(t, parsed.Seal(el), ErrAlreadySigned)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("<rDE><DE"))
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)

	_, err = Parse([]byte("<other/>"))
	assert.ErrorIs(t, err, ErrInvalidDocumentFields)
}
