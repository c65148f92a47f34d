package document

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// SIFEN namespaces and schema constants
const (
	Namespace      = "http://ekuatia.set.gov.py/sifen/xsd"
	NamespaceXSI   = "http://www.w3.org/2001/XMLSchema-instance"
	NamespaceDSig  = "http://www.w3.org/2000/09/xmldsig#"
	FormatVersion  = "150"
	SchemaLocation = Namespace + " siRecepDE_v150.xsd"

	dateTimeLayout = "2006-01-02T15:04:05"
	dateLayout     = "2006-01-02"
)

var (
	// ErrInvalidDocumentFields is returned when required fields are missing
	// or outside their allowed ranges
	ErrInvalidDocumentFields = errors.New("invalid document fields")
	// ErrChecksumMismatch is returned when an externally supplied CDC does
	// not match its check digit or the fields it was derived from
	ErrChecksumMismatch = errors.New("identifier checksum mismatch")
	// ErrAlreadySigned is returned when a signed document is signed again
	ErrAlreadySigned = errors.New("document is already signed")
)

// Type is the electronic document type (iTiDE)
type Type int

const (
	TypeInvoice       Type = 1
	TypeSelfInvoice   Type = 4
	TypeCreditNote    Type = 5
	TypeDebitNote     Type = 6
	TypeRemissionNote Type = 7
)

// String returns the SIFEN description of the type (dDesTiDE)
func (t Type) String() string {
	switch t {
	case TypeInvoice:
		return "Factura electrónica"
	case TypeSelfInvoice:
		return "Autofactura electrónica"
	case TypeCreditNote:
		return "Nota de crédito electrónica"
	case TypeDebitNote:
		return "Nota de débito electrónica"
	case TypeRemissionNote:
		return "Nota de remisión electrónica"
	default:
		return "Desconocido"
	}
}

// TaxpayerType is iTipCont
type TaxpayerType int

const (
	TaxpayerIndividual TaxpayerType = 1
	TaxpayerCompany    TaxpayerType = 2
)

// EmissionType is iTipEmi
type EmissionType int

const (
	EmissionNormal      EmissionType = 1
	EmissionContingency EmissionType = 2
)

// String returns dDesTipEmi
func (e EmissionType) String() string {
	if e == EmissionContingency {
		return "Contingencia"
	}
	return "Normal"
}

// SigningState tracks whether a document carries a signature
type SigningState int

const (
	Unsigned SigningState = iota
	Signed
)

func (s SigningState) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// Receiver is the buyer of the operation (gDatRec)
type Receiver struct {
	RUC          string
	DV           int
	Name         string
	TaxpayerType TaxpayerType
	Country      string
}

// Item is one line of the document (gCamItem)
type Item struct {
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	// VATRate is 0 (exempt), 5 or 10
	VATRate int
}

// Fields holds everything needed to build a DE. The first group feeds the
// CDC, the rest is document content.
type Fields struct {
	Type          Type
	IssuerRUC     string
	IssuerDV      int
	Establishment int
	PointOfSale   int
	Number        int
	TaxpayerType  TaxpayerType
	IssuedAt      time.Time
	EmissionType  EmissionType
	SecurityCode  int

	StampNumber   int
	StampStart    time.Time
	IssuerName    string
	IssuerAddress string
	IssuerPhone   string
	IssuerEmail   string
	ActivityCode  string
	ActivityName  string
	Currency      string
	Receiver      Receiver
	Items         []Item
}

// Totals are the document level sums (gTotSub)
type Totals struct {
	Exempt      decimal.Decimal
	Sub5        decimal.Decimal
	Sub10       decimal.Decimal
	Operation   decimal.Decimal
	VAT5        decimal.Decimal
	VAT10       decimal.Decimal
	VAT         decimal.Decimal
	Base5       decimal.Decimal
	Base10      decimal.Decimal
	TaxableBase decimal.Decimal
}

// Document is one electronic document and its identifier.
// A Document is owned by the request that created it.
type Document struct {
	fields Fields
	id     string
	state  SigningState
	parsed *etree.Element
	signed *etree.Element
}

// New validates the fields and derives the CDC
func New(f Fields) (*Document, error) {
	id, err := DeriveIdentifier(f)
	if err != nil {
		return nil, err
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidDocumentFields)
	}
	for i, it := range f.Items {
		if it.Description == "" {
			return nil, fmt.Errorf("%w: item %d has no description", ErrInvalidDocumentFields, i)
		}
		if !it.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidDocumentFields, i)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: item %d unit price is negative", ErrInvalidDocumentFields, i)
		}
		switch it.VATRate {
		case 0, 5, 10:
		default:
			return nil, fmt.Errorf("%w: item %d VAT rate %d", ErrInvalidDocumentFields, i, it.VATRate)
		}
	}
	if f.Currency == "" {
		f.Currency = "PYG"
	}
	if f.Receiver.Country == "" {
		f.Receiver.Country = "PRY"
	}
	return &Document{fields: f, id: id, state: Unsigned}, nil
}

// ID returns the 44-digit CDC
func (d *Document) ID() string {
	return d.id
}

// State returns the signing state
func (d *Document) State() SigningState {
	return d.state
}

// Fields returns a copy of the document fields. Parsed documents only carry
// the identifier fields.
func (d *Document) Fields() Fields {
	f := d.fields
	f.Items = append([]Item(nil), d.fields.Items...)
	return f
}

// Parsed reports whether the document came from external XML
func (d *Document) Parsed() bool {
	return d.parsed != nil
}

// Element returns a fresh rDE tree for the document. signedAt fills
// dFecFirma for documents built from fields; parsed documents return a copy
// of their original tree.
func (d *Document) Element(signedAt time.Time) *etree.Element {
	if d.signed != nil {
		return d.signed.Copy()
	}
	if d.parsed != nil {
		return d.parsed.Copy()
	}
	return d.build(signedAt)
}

// Seal records the signed rDE tree and moves the document to the Signed
// state. It fails with ErrAlreadySigned when called twice.
func (d *Document) Seal(signed *etree.Element) error {
	if d.state == Signed {
		return fmt.Errorf("%w: %s", ErrAlreadySigned, d.id)
	}
	if signed == nil {
		return fmt.Errorf("%w: nil signed element", ErrInvalidDocumentFields)
	}
	d.signed = signed.Copy()
	d.state = Signed
	return nil
}

// Totals computes the document sums from its items
func (d *Document) Totals() Totals {
	var t Totals
	places := d.amountPlaces()
	for _, it := range d.fields.Items {
		line := lineTotal(it, places)
		base, vat := splitVAT(line, it.VATRate, places)
		t.Operation = t.Operation.Add(line)
		switch it.VATRate {
		case 5:
			t.Sub5 = t.Sub5.Add(line)
			t.VAT5 = t.VAT5.Add(vat)
			t.Base5 = t.Base5.Add(base)
		case 10:
			t.Sub10 = t.Sub10.Add(line)
			t.VAT10 = t.VAT10.Add(vat)
			t.Base10 = t.Base10.Add(base)
		default:
			t.Exempt = t.Exempt.Add(line)
		}
	}
	t.VAT = t.VAT5.Add(t.VAT10)
	t.TaxableBase = t.Base5.Add(t.Base10)
	return t
}

// amountPlaces is 0 for guaraníes and 2 otherwise
func (d *Document) amountPlaces() int32 {
	if d.fields.Currency == "" || d.fields.Currency == "PYG" {
		return 0
	}
	return 2
}

func lineTotal(it Item, places int32) decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice).Round(places)
}

// splitVAT separates a VAT-inclusive amount into taxable base and tax
func splitVAT(amount decimal.Decimal, rate int, places int32) (base, vat decimal.Decimal) {
	if rate == 0 {
		return decimal.Zero, decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	base = amount.Mul(hundred).Div(hundred.Add(decimal.NewFromInt(int64(rate)))).Round(places)
	return base, amount.Sub(base)
}

func (d *Document) build(signedAt time.Time) *etree.Element {
	f := d.fields
	places := d.amountPlaces()
	amount := func(v decimal.Decimal) string { return v.StringFixed(places) }

	rde := etree.NewElement("rDE")
	rde.CreateAttr("xmlns", Namespace)
	rde.CreateAttr("xmlns:xsi", NamespaceXSI)
	rde.CreateAttr("xsi:schemaLocation", SchemaLocation)
	rde.CreateElement("dVerFor").SetText(FormatVersion)

	de := rde.CreateElement("DE")
	de.CreateAttr("Id", d.id)
	de.CreateElement("dDVId").SetText(d.id[IdentifierLength-1:])
	de.CreateElement("dFecFirma").SetText(signedAt.Format(dateTimeLayout))
	de.CreateElement("dSisFact").SetText("1")

	ope := de.CreateElement("gOpeDE")
	ope.CreateElement("iTipEmi").SetText(strconv.Itoa(int(f.EmissionType)))
	ope.CreateElement("dDesTipEmi").SetText(f.EmissionType.String())
	ope.CreateElement("dCodSeg").SetText(fmt.Sprintf("%09d", f.SecurityCode))

	timb := de.CreateElement("gTimb")
	timb.CreateElement("iTiDE").SetText(strconv.Itoa(int(f.Type)))
	timb.CreateElement("dDesTiDE").SetText(f.Type.String())
	timb.CreateElement("dNumTim").SetText(fmt.Sprintf("%08d", f.StampNumber))
	timb.CreateElement("dEst").SetText(fmt.Sprintf("%03d", f.Establishment))
	timb.CreateElement("dPunExp").SetText(fmt.Sprintf("%03d", f.PointOfSale))
	timb.CreateElement("dNumDoc").SetText(fmt.Sprintf("%07d", f.Number))
	if !f.StampStart.IsZero() {
		timb.CreateElement("dFeIniT").SetText(f.StampStart.Format(dateLayout))
	}

	gral := de.CreateElement("gDatGralOpe")
	gral.CreateElement("dFeEmiDE").SetText(f.IssuedAt.Format(dateTimeLayout))

	com := gral.CreateElement("gOpeCom")
	if f.Type == TypeInvoice || f.Type == TypeSelfInvoice {
		com.CreateElement("iTipTra").SetText("1")
		com.CreateElement("dDesTipTra").SetText("Venta de mercadería")
	}
	com.CreateElement("iTImp").SetText("1")
	com.CreateElement("dDesTImp").SetText("IVA")
	com.CreateElement("cMoneOpe").SetText(f.Currency)
	com.CreateElement("dDesMoneOpe").SetText(currencyName(f.Currency))

	emis := gral.CreateElement("gEmis")
	emis.CreateElement("dRucEm").SetText(f.IssuerRUC)
	emis.CreateElement("dDVEmi").SetText(strconv.Itoa(f.IssuerDV))
	emis.CreateElement("iTipCont").SetText(strconv.Itoa(int(f.TaxpayerType)))
	emis.CreateElement("dNomEmi").SetText(f.IssuerName)
	emis.CreateElement("dDirEmi").SetText(f.IssuerAddress)
	emis.CreateElement("dNumCas").SetText("0")
	emis.CreateElement("cDepEmi").SetText("1")
	emis.CreateElement("dDesDepEmi").SetText("CAPITAL")
	emis.CreateElement("cCiuEmi").SetText("1")
	emis.CreateElement("dDesCiuEmi").SetText("ASUNCION (DISTRITO)")
	emis.CreateElement("dTelEmi").SetText(f.IssuerPhone)
	emis.CreateElement("dEmailE").SetText(f.IssuerEmail)
	if f.ActivityCode != "" {
		act := emis.CreateElement("gActEco")
		act.CreateElement("cActEco").SetText(f.ActivityCode)
		act.CreateElement("dDesActEco").SetText(f.ActivityName)
	}

	rec := gral.CreateElement("gDatRec")
	if f.Receiver.RUC != "" {
		rec.CreateElement("iNatRec").SetText("1")
	} else {
		rec.CreateElement("iNatRec").SetText("2")
	}
	rec.CreateElement("iTiOpe").SetText("1")
	rec.CreateElement("cPaisRec").SetText(f.Receiver.Country)
	if f.Receiver.RUC != "" {
		tc := f.Receiver.TaxpayerType
		if tc == 0 {
			tc = TaxpayerCompany
		}
		rec.CreateElement("iTiContRec").SetText(strconv.Itoa(int(tc)))
		rec.CreateElement("dRucRec").SetText(f.Receiver.RUC)
		rec.CreateElement("dDVRec").SetText(strconv.Itoa(f.Receiver.DV))
	}
	rec.CreateElement("dNomRec").SetText(f.Receiver.Name)

	dtip := de.CreateElement("gDtipDE")
	if f.Type == TypeInvoice {
		fe := dtip.CreateElement("gCamFE")
		fe.CreateElement("iIndPres").SetText("1")
		fe.CreateElement("dDesIndPres").SetText("Operación presencial")
	}
	cond := dtip.CreateElement("gCamCond")
	cond.CreateElement("iCondOpe").SetText("1")
	cond.CreateElement("dDCondOpe").SetText("Contado")

	for _, it := range f.Items {
		line := lineTotal(it, places)
		base, vat := splitVAT(line, it.VATRate, places)

		item := dtip.CreateElement("gCamItem")
		item.CreateElement("dCodInt").SetText(it.Code)
		item.CreateElement("dDesProSer").SetText(it.Description)
		item.CreateElement("cUniMed").SetText("77")
		item.CreateElement("dDesUniMed").SetText("UNI")
		item.CreateElement("dCantProSer").SetText(it.Quantity.String())

		val := item.CreateElement("gValorItem")
		val.CreateElement("dPUniProSer").SetText(amount(it.UnitPrice))
		val.CreateElement("dTotBruOpeItem").SetText(amount(line))
		val.CreateElement("gValorRestaItem").CreateElement("dTotOpeItem").SetText(amount(line))

		iva := item.CreateElement("gCamIVA")
		if it.VATRate == 0 {
			iva.CreateElement("iAfecIVA").SetText("3")
			iva.CreateElement("dDesAfecIVA").SetText("Exento")
			iva.CreateElement("dPropIVA").SetText("0")
		} else {
			iva.CreateElement("iAfecIVA").SetText("1")
			iva.CreateElement("dDesAfecIVA").SetText("Gravado IVA")
			iva.CreateElement("dPropIVA").SetText("100")
		}
		iva.CreateElement("dTasaIVA").SetText(strconv.Itoa(it.VATRate))
		iva.CreateElement("dBasGravIVA").SetText(amount(base))
		iva.CreateElement("dLiqIVAItem").SetText(amount(vat))
	}

	t := d.Totals()
	tot := de.CreateElement("gTotSub")
	tot.CreateElement("dSubExe").SetText(amount(t.Exempt))
	tot.CreateElement("dSub5").SetText(amount(t.Sub5))
	tot.CreateElement("dSub10").SetText(amount(t.Sub10))
	tot.CreateElement("dTotOpe").SetText(amount(t.Operation))
	tot.CreateElement("dTotGralOpe").SetText(amount(t.Operation))
	tot.CreateElement("dIVA5").SetText(amount(t.VAT5))
	tot.CreateElement("dIVA10").SetText(amount(t.VAT10))
	tot.CreateElement("dTotIVA").SetText(amount(t.VAT))
	tot.CreateElement("dBaseGrav5").SetText(amount(t.Base5))
	tot.CreateElement("dBaseGrav10").SetText(amount(t.Base10))
	tot.CreateElement("dTBasGraIVA").SetText(amount(t.TaxableBase))

	return rde
}

func currencyName(code string) string {
	switch code {
	case "PYG":
		return "Guarani"
	case "USD":
		return "US Dollar"
	case "EUR":
		return "Euro"
	case "BRL":
		return "Brazilian Real"
	default:
		return code
	}
}
