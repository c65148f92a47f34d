package assembler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/sirosfoundation/go-sifen/pkg/document"
	"github.com/sirosfoundation/go-sifen/pkg/security"
)

// QR base URLs of the public consultation service
const (
	QRBaseURLTest       = "https://ekuatia.set.gov.py/consultas-test/qr?"
	QRBaseURLProduction = "https://ekuatia.set.gov.py/consultas/qr?"
)

// QR computes the dCarQR field of a signed document. CSC is the secret
// security code issued to the taxpayer and CSCID its four digit id.
type QR struct {
	CSCID   string
	CSC     string
	BaseURL string
}

// Link returns the QR text for a signed rDE
func (q *QR) Link(rde *etree.Element) (string, error) {
	if q.CSC == "" || q.CSCID == "" {
		return "", fmt.Errorf("%w: QR requires CSC and CSC id", document.ErrInvalidDocumentFields)
	}
	de := rde.SelectElement("DE")
	if de == nil {
		return "", fmt.Errorf("%w: %s has no DE child", document.ErrInvalidDocumentFields, rde.Tag)
	}
	digest := security.DigestValue(rde)
	if digest == "" {
		return "", fmt.Errorf("%w: QR requires a signed document", document.ErrInvalidDocumentFields)
	}

	params := q.params(de, digest)
	sum := sha256.Sum256([]byte(params + q.CSC))

	base := q.BaseURL
	if base == "" {
		base = QRBaseURLTest
	}
	if !strings.HasSuffix(base, "?") {
		base += "?"
	}
	return base + params + "&cHashQR=" + hex.EncodeToString(sum[:]), nil
}

func (q *QR) params(de *etree.Element, digest string) string {
	var b strings.Builder
	add := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}

	add("nVersion", document.FormatVersion)
	add("Id", de.SelectAttrValue("Id", ""))
	add("dFeEmiDE", hex.EncodeToString([]byte(document.Text(de, "dFeEmiDE"))))
	if ruc := document.Text(de, "dRucRec"); ruc != "" {
		add("dRucRec", ruc)
	} else {
		id := document.Text(de, "dNumIDRec")
		if id == "" {
			id = "0"
		}
		add("dNumIDRec", id)
	}
	add("dTotGralOpe", amountText(document.Text(de, "dTotGralOpe")))
	add("dTotIVA", amountText(document.Text(de, "dTotIVA")))

	items := 0
	if dtip := de.SelectElement("gDtipDE"); dtip != nil {
		items = len(dtip.SelectElements("gCamItem"))
	}
	add("cItems", strconv.Itoa(items))
	add("DigestValue", hex.EncodeToString([]byte(digest)))
	add("IdCSC", q.CSCID)
	return b.String()
}

func amountText(s string) string {
	if s == "" {
		return "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.String()
}

// Append adds gCamFuFD/dCarQR as the last child of rDE
func (q *QR) Append(rde *etree.Element) error {
	link, err := q.Link(rde)
	if err != nil {
		return err
	}
	if old := rde.SelectElement("gCamFuFD"); old != nil {
		rde.RemoveChild(old)
	}
	rde.CreateElement("gCamFuFD").CreateElement("dCarQR").SetText(link)
	return nil
}
