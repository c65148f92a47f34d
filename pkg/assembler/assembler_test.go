package assembler

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-sifen/pkg/compression"
	"github.com/sirosfoundation/go-sifen/pkg/document"
	"github.com/sirosfoundation/go-sifen/pkg/security"
)

func newTestSigner(t *testing.T) *security.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "80089752-8"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	signer, err := security.NewSigner(security.Credential{Key: key, Certificate: cert})
	require.NoError(t, err)
	return signer
}

func newTestDocument(t *testing.T, number int) *document.Document {
	t.Helper()
	doc, err := document.New(document.Fields{
		Type:          document.TypeInvoice,
		IssuerRUC:     "80089752",
		IssuerDV:      8,
		Establishment: 1,
		PointOfSale:   1,
		Number:        number,
		TaxpayerType:  document.TaxpayerCompany,
		IssuedAt:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		EmissionType:  document.EmissionNormal,
		SecurityCode:  100000 + number,
		IssuerName:    "DE generado en ambiente de prueba",
		Receiver:      document.Receiver{RUC: "80012345", DV: 0, Name: "Cliente SA"},
		Items: []document.Item{
			{Code: "1", Description: "Servicio", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(110000), VATRate: 10},
		},
	})
	require.NoError(t, err)
	return doc
}

func TestAssembler_Document(t *testing.T) {
	a := New(newTestSigner(t))
	doc := newTestDocument(t, 1)

	signed, err := a.Document(doc)
	require.NoError(t, err)
	assert.Equal(t, doc.ID(), signed.ID)
	assert.Equal(t, document.Signed, doc.State())
	assert.NotContains(t, string(signed.XML), "\n")
	assert.False(t, strings.HasPrefix(string(signed.XML), "<?xml"))
	assert.Equal(t, 1, strings.Count(string(signed.XML), "<Signature "))

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromBytes(signed.XML))
	_, err = security.Verify(parsed.Root())
	assert.NoError(t, err)

	_, err = a.Document(doc)
	assert.ErrorIs(t, err, security.ErrAlreadySigned)
}

func TestAssembler_Lot(t *testing.T) {
	a := New(newTestSigner(t))
	docs := []*document.Document{newTestDocument(t, 3), newTestDocument(t, 1), newTestDocument(t, 2)}

	lot, err := a.Lot("000000000000123", docs)
	require.NoError(t, err)
	assert.Equal(t, "000000000000123", lot.ID)
	assert.True(t, strings.HasPrefix(lot.Text, `<?xml version="1.0" encoding="UTF-8"?><rLoteDE `))
	assert.NotContains(t, lot.Text, "\n")
	assert.Contains(t, lot.Text, `xsi:schemaLocation="`+LotSchemaLocation+`"`)

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromString(lot.Text))
	root := parsed.Root()
	require.Equal(t, "rLoteDE", root.Tag)
	children := root.ChildElements()
	require.Len(t, children, 4)
	assert.Equal(t, "dVerFor", children[0].Tag)
	assert.Equal(t, document.FormatVersion, children[0].Text())

	for i, rde := range children[1:] {
		assert.Equal(t, docs[i].ID(), rde.SelectElement("DE").SelectAttrValue("Id", ""), "input order")
		_, err := security.Verify(rde)
		assert.NoError(t, err)
		assert.Equal(t, document.Signed, docs[i].State())
	}
	assert.Equal(t, []string{docs[0].ID(), docs[1].ID(), docs[2].ID()}, lot.Documents)

	rdes, err := ParseLot(lot.Text)
	require.NoError(t, err)
	require.Len(t, rdes, 3)
	assert.Equal(t, docs[2].ID(), rdes[2].SelectElement("DE").SelectAttrValue("Id", ""))
}

func TestAssembler_Lot_EncodeRoundTrip(t *testing.T) {
	a := New(newTestSigner(t))
	docs := []*document.Document{newTestDocument(t, 21), newTestDocument(t, 22), newTestDocument(t, 23)}

	lot, err := a.Lot("000000000000042", docs)
	require.NoError(t, err)

	encoded, err := compression.EncodeLot(lot.Text)
	require.NoError(t, err)
	decoded, err := compression.DecodeLot(encoded)
	require.NoError(t, err)
	assert.Equal(t, lot.Text, decoded)

	rdes, err := ParseLot(decoded)
	require.NoError(t, err)
	require.Len(t, rdes, 3)
	for i, rde := range rdes {
		assert.Equal(t, docs[i].ID(), rde.SelectElement("DE").SelectAttrValue("Id", ""))
		_, err := security.Verify(rde)
		assert.NoError(t, err)
	}
}

func TestParseLot_Errors(t *testing.T) {
	_, err := ParseLot("<rDE/>")
	assert.ErrorIs(t, err, document.ErrInvalidDocumentFields)

	_, err = ParseLot(`<rLoteDE xmlns="` + document.Namespace + `"><dVerFor>150</dVerFor></rLoteDE>`)
	assert.ErrorIs(t, err, ErrEmptyLot)
}

func TestAssembler_Lot_AllOrNothing(t *testing.T) {
	signer := newTestSigner(t)
	a := New(signer)

	preSigned := newTestDocument(t, 2)
	_, err := a.Document(preSigned)
	require.NoError(t, err)

	first := newTestDocument(t, 1)
	last := newTestDocument(t, 3)
	_, err = a.Lot("1", []*document.Document{first, preSigned, last})
	assert.ErrorIs(t, err, security.ErrAlreadySigned)
	assert.Equal(t, document.Unsigned, first.State())
	assert.Equal(t, document.Unsigned, last.State())
}

func TestAssembler_Lot_Limits(t *testing.T) {
	a := New(newTestSigner(t), WithMaxLotDocuments(2))
	docs := []*document.Document{newTestDocument(t, 1), newTestDocument(t, 2), newTestDocument(t, 3)}

	_, err := a.Lot("1", docs)
	assert.ErrorIs(t, err, ErrLotTooLarge)
	for _, d := range docs {
		assert.Equal(t, document.Unsigned, d.State())
	}

	_, err = a.Lot("1", nil)
	assert.ErrorIs(t, err, document.ErrInvalidDocumentFields)
	assert.ErrorIs(t, err, ErrEmptyLot)

	_, err = a.Lot("1", []*document.Document{docs[0], docs[0]})
	assert.ErrorIs(t, err, document.ErrInvalidDocumentFields)
}

func TestAssembler_Lot_MaxDocuments(t *testing.T) {
	docs := make([]*document.Document, MaxLotDocuments+1)
	for i := range docs {
		docs[i] = newTestDocument(t, i+1)
	}
	_, err := New(newTestSigner(t), WithMaxLotDocuments(500)).Lot("1", docs)
	assert.ErrorIs(t, err, ErrLotTooLarge)
}

func TestAssembler_QR(t *testing.T) {
	const csc = "ABCD0000000000000000000000000000"
	a := New(newTestSigner(t), WithQR("0001", csc, QRBaseURLTest))
	doc := newTestDocument(t, 7)

	signed, err := a.Document(doc)
	require.NoError(t, err)

	children := signed.Element.ChildElements()
	last := children[len(children)-1]
	require.Equal(t, "gCamFuFD", last.Tag)
	link := last.SelectElement("dCarQR").Text()

	require.True(t, strings.HasPrefix(link, QRBaseURLTest+"nVersion=150&Id="+doc.ID()+"&"))
	assert.Contains(t, link, "&dRucRec=80012345&")
	assert.Contains(t, link, "&dTotGralOpe=110000&dTotIVA=10000&cItems=1&")
	assert.Contains(t, link, "&DigestValue="+hex.EncodeToString([]byte(security.DigestValue(signed.Element)))+"&IdCSC=0001&")

	params, hash, ok := strings.Cut(strings.TrimPrefix(link, QRBaseURLTest), "&cHashQR=")
	require.True(t, ok)
	sum := sha256.Sum256([]byte(params + csc))
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)

	// the QR field sits outside the signed DE
	_, err = security.Verify(signed.Element)
	assert.NoError(t, err)
}

func TestQR_Errors(t *testing.T) {
	doc := newTestDocument(t, 1)
	unsigned := doc.Element(time.Now())

	_, err := (&QR{CSCID: "0001", CSC: "x"}).Link(unsigned)
	assert.ErrorIs(t, err, document.ErrInvalidDocumentFields)

	_, err = (&QR{}).Link(unsigned)
	assert.ErrorIs(t, err, document.ErrInvalidDocumentFields)

	_, err = New(newTestSigner(t), WithQR("", "", "")).Document(doc)
	assert.ErrorIs(t, err, document.ErrInvalidDocumentFields)
	assert.Equal(t, document.Unsigned, doc.State())
}
