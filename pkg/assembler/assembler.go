package assembler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-sifen/pkg/document"
	"github.com/sirosfoundation/go-sifen/pkg/security"
)

// MaxLotDocuments is the largest lot the authority accepts
const MaxLotDocuments = 50

// LotSchemaLocation is the xsi:schemaLocation of rLoteDE
const LotSchemaLocation = document.Namespace + " rLoteDE_v150.xsd"

var (
	// ErrLotTooLarge is returned for lots above the configured maximum
	ErrLotTooLarge = errors.New("lot exceeds maximum number of documents")
	// ErrEmptyLot is returned for lots without documents
	ErrEmptyLot = errors.New("lot has no documents")
)

// Signed is one signed rDE together with its serialized text
type Signed struct {
	ID      string
	Element *etree.Element
	XML     []byte
}

// Lot is an assembled rLoteDE. Text is the serialized form that is encoded
// for transmission; it is produced once and never re-serialized.
type Lot struct {
	ID        string
	Documents []string
	Element   *etree.Element
	Text      string
}

// Assembler builds signed documents and lots
type Assembler struct {
	signer *security.Signer
	qr     *QR
	maxLot int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Assembler
type Option func(*Assembler)

// WithQR appends the gCamFuFD QR field to every signed document
func WithQR(cscID, csc, baseURL string) Option {
	return func(a *Assembler) {
		a.qr = &QR{CSCID: cscID, CSC: csc, BaseURL: baseURL}
	}
}

// WithMaxLotDocuments lowers the lot size limit. Values outside
// 1..MaxLotDocuments are ignored.
func WithMaxLotDocuments(n int) Option {
	return func(a *Assembler) {
		if n > 0 && n <= MaxLotDocuments {
			a.maxLot = n
		}
	}
}

// WithClock sets the time used for dFecFirma
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) { a.logger = logger }
}

// New creates an Assembler that signs with signer
func New(signer *security.Signer, opts ...Option) *Assembler {
	a := &Assembler{
		signer: signer,
		maxLot: MaxLotDocuments,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Document signs doc and returns the signed rDE. Documents already in the
// Signed state are rejected with security.ErrAlreadySigned.
func (a *Assembler) Document(doc *document.Document) (*Signed, error) {
	rde, err := a.sign(doc)
	if err != nil {
		return nil, err
	}
	if err := doc.Seal(rde); err != nil {
		return nil, err
	}
	data, err := Serialize(rde, false)
	if err != nil {
		return nil, err
	}
	return &Signed{ID: doc.ID(), Element: rde, XML: data}, nil
}

// Lot signs every document and wraps them in rLoteDE in input order. Either
// all documents are signed and sealed or none is.
func (a *Assembler) Lot(id string, docs []*document.Document) (*Lot, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %w", document.ErrInvalidDocumentFields, ErrEmptyLot)
	}
	if len(docs) > a.maxLot {
		return nil, fmt.Errorf("%w: %d documents, maximum %d", ErrLotTooLarge, len(docs), a.maxLot)
	}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("%w: nil document in lot", document.ErrInvalidDocumentFields)
		}
		if doc.State() == document.Signed {
			return nil, fmt.Errorf("%w: %s", security.ErrAlreadySigned, doc.ID())
		}
		if seen[doc.ID()] {
			return nil, fmt.Errorf("%w: duplicate document %s", document.ErrInvalidDocumentFields, doc.ID())
		}
		seen[doc.ID()] = true
	}

	root := etree.NewElement("rLoteDE")
	root.CreateAttr("xmlns", document.Namespace)
	root.CreateAttr("xmlns:xsi", document.NamespaceXSI)
	root.CreateAttr("xsi:schemaLocation", LotSchemaLocation)
	root.CreateElement("dVerFor").SetText(document.FormatVersion)

	signed := make([]*etree.Element, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		rde, err := a.sign(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d (%s): %w", i+1, doc.ID(), err)
		}
		signed[i] = rde
		ids[i] = doc.ID()
		root.AddChild(rde.Copy())
	}

	text, err := Serialize(root, true)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		if err := doc.Seal(signed[i]); err != nil {
			return nil, err
		}
	}

	a.logger.Debug("assembled lot", slog.String("id", id), slog.Int("documents", len(docs)))
	return &Lot{ID: id, Documents: ids, Element: root, Text: string(text)}, nil
}

// sign returns a signed copy of the document tree without sealing it
func (a *Assembler) sign(doc *document.Document) (*etree.Element, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", document.ErrInvalidDocumentFields)
	}
	if doc.State() == document.Signed {
		return nil, fmt.Errorf("%w: %s", security.ErrAlreadySigned, doc.ID())
	}
	rde := doc.Element(a.now())
	if err := a.signer.Sign(rde); err != nil {
		return nil, err
	}
	if a.qr != nil {
		if err := a.qr.Append(rde); err != nil {
			return nil, err
		}
	}
	return rde, nil
}

// Serialize writes el without indentation. The XML declaration is written
// when declaration is set.
func Serialize(el *etree.Element, declaration bool) ([]byte, error) {
	doc := etree.NewDocument()
	doc.WriteSettings = etree.WriteSettings{
		CanonicalEndTags: true,
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	if declaration {
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	}
	doc.SetRoot(el.Copy())
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", el.Tag, err)
	}
	return data, nil
}

// ParseLot reads lot text and returns its rDE elements in order
func ParseLot(text string) ([]*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrInvalidDocumentFields, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "rLoteDE" {
		return nil, fmt.Errorf("%w: root element is not rLoteDE", document.ErrInvalidDocumentFields)
	}
	rdes := root.SelectElements("rDE")
	if len(rdes) == 0 {
		return nil, fmt.Errorf("%w: %w", document.ErrInvalidDocumentFields, ErrEmptyLot)
	}
	return rdes, nil
}
