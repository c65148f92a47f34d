package sifen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-sifen/pkg/assembler"
	"github.com/sirosfoundation/go-sifen/pkg/compression"
	"github.com/sirosfoundation/go-sifen/pkg/document"
	"github.com/sirosfoundation/go-sifen/pkg/message"
	"github.com/sirosfoundation/go-sifen/pkg/security"
	"github.com/sirosfoundation/go-sifen/pkg/transport"
)

// Base URLs of the authority
const (
	BaseURLTest       = "https://" + transport.TestHost
	BaseURLProduction = "https://" + transport.ProductionHost
)

// Paths holds the per-operation path suffixes appended to the base URL
type Paths struct {
	RUC           string `yaml:"ruc"`
	Document      string `yaml:"document"`
	Lot           string `yaml:"lot"`
	LotQuery      string `yaml:"lot_query"`
	DocumentQuery string `yaml:"document_query"`
}

// DefaultPaths returns the published service paths
func DefaultPaths() Paths {
	return Paths{
		RUC:           "/de/ws/consultas/consulta-ruc.wsdl",
		Document:      "/de/ws/sync/recibe.wsdl",
		Lot:           "/de/ws/async/recibe-lote.wsdl",
		LotQuery:      "/de/ws/consultas/consulta-lote.wsdl",
		DocumentQuery: "/de/ws/consultas/consulta.wsdl",
	}
}

// WithDefaults fills empty paths with the published ones
func (p Paths) WithDefaults() Paths {
	d := DefaultPaths()
	if p.RUC == "" {
		p.RUC = d.RUC
	}
	if p.Document == "" {
		p.Document = d.Document
	}
	if p.Lot == "" {
		p.Lot = d.Lot
	}
	if p.LotQuery == "" {
		p.LotQuery = d.LotQuery
	}
	if p.DocumentQuery == "" {
		p.DocumentQuery = d.DocumentQuery
	}
	return p
}

// Config configures a Client
type Config struct {
	BaseURL   string
	Paths     Paths
	Transport *transport.Config
	// Signer is required for document and lot reception only
	Signer          *security.Signer
	QR              *assembler.QR
	MaxLotDocuments int
	Observer        Observer
	Logger          *slog.Logger
}

// Exchanger performs the SOAP round trip. *transport.Client implements it.
type Exchanger interface {
	Prepare(target string, body any) (*transport.Request, error)
	Do(ctx context.Context, req *transport.Request) (*transport.Result, error)
}

// Client runs SIFEN operations. It holds no per-request state and is safe
// for concurrent use.
type Client struct {
	baseURL   string
	paths     Paths
	exchanger Exchanger
	assembler *assembler.Assembler
	hasSigner bool
	observer  Observer
	logger    *slog.Logger
	newDID    func() string
	now       func() time.Time
}

// Option configures a Client beyond Config
type Option func(*Client)

// WithExchanger replaces the HTTPS transport
func WithExchanger(e Exchanger) Option {
	return func(c *Client) { c.exchanger = e }
}

// WithDIDGenerator replaces the dId generator
func WithDIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newDID = fn }
}

// WithClock sets the time source for events and signing time
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", transport.ErrInvalidTarget)
	}
	if _, err := transport.Resolve(base); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:  base,
		paths:    cfg.Paths.WithDefaults(),
		observer: cfg.Observer,
		logger:   logger.With(slog.String("component", "sifen")),
		newDID:   NewDID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exchanger == nil {
		c.exchanger = transport.NewClient(cfg.Transport, c.logger)
	}

	if cfg.Signer != nil {
		aopts := []assembler.Option{assembler.WithClock(c.now), assembler.WithLogger(c.logger)}
		if cfg.QR != nil {
			aopts = append(aopts, assembler.WithQR(cfg.QR.CSCID, cfg.QR.CSC, cfg.QR.BaseURL))
		}
		if cfg.MaxLotDocuments > 0 {
			aopts = append(aopts, assembler.WithMaxLotDocuments(cfg.MaxLotDocuments))
		}
		c.assembler = assembler.New(cfg.Signer, aopts...)
		c.hasSigner = true
	}
	return c, nil
}

// URL returns the target URL for a path suffix
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// RUCResult is the outcome of a taxpayer lookup
type RUCResult struct {
	Outcome
	Taxpayer *message.TaxpayerRUC
}

// LookupRUC queries the taxpayer registry. ruc is the number without its
// check digit.
func (c *Client) LookupRUC(ctx context.Context, ruc string) (*RUCResult, error) {
	r := c.begin(OpLookupRUC, c.paths.RUC)
	if err := validateRUC(ruc); err != nil {
		return nil, r.fail(StateBuilding, err, nil, nil)
	}

	res := &RUCResult{}
	out, err := c.run(ctx, r, message.NewRUCQuery(r.did, ruc), func(env *message.Envelope, o *Outcome) error {
		var body message.RUCResult
		ok, err := env.ResultInto(message.ResultRUC, &body)
		if !ok || err != nil {
			return err
		}
		o.Code, o.Message = body.Code, body.Message
		res.Taxpayer = body.Taxpayer
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Outcome = *out
	return res, nil
}

// DocumentResult is the outcome of a single document reception
type DocumentResult struct {
	Outcome
	CDC string
	// SignedXML is the rDE exactly as embedded in the request
	SignedXML []byte
	Status    string
	Protocol  string
	Messages  []message.ProcessingMessage
}

// SubmitDocument signs doc and sends it to the synchronous reception
// service. Documents already signed fail in the Signing stage before any
// network traffic.
func (c *Client) SubmitDocument(ctx context.Context, doc *document.Document) (*DocumentResult, error) {
	r := c.begin(OpSubmitDocument, c.paths.Document)
	if doc == nil {
		return nil, r.fail(StateBuilding, fmt.Errorf("%w: nil document", document.ErrInvalidDocumentFields), nil, nil)
	}
	if !c.hasSigner {
		return nil, r.fail(StateSigning, fmt.Errorf("%w: no signer configured", security.ErrSigningCredential), nil, nil)
	}

	signed, err := c.assembler.Document(doc)
	if err != nil {
		return nil, r.fail(stageOf(err), err, nil, nil)
	}

	res := &DocumentResult{CDC: signed.ID, SignedXML: signed.XML}
	out, err := c.run(ctx, r, message.NewDocumentSubmission(r.did, signed.XML), func(env *message.Envelope, o *Outcome) error {
		var body message.DocumentResult
		ok, err := env.ResultInto(message.ResultDocument, &body)
		if !ok || err != nil {
			return err
		}
		p := body.Protocol
		res.Status, res.Protocol, res.Messages = p.Status, p.Protocol, p.Messages
		if len(p.Messages) > 0 {
			o.Code, o.Message = p.Messages[0].Code, p.Messages[0].Message
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Outcome = *out
	return res, nil
}

// LotResult is the outcome of a lot reception. Per-document results are
// obtained later with QueryLot.
type LotResult struct {
	Outcome
	Lot *assembler.Lot
	// Protocol is the lot number to pass to QueryLot
	Protocol string
}

// SubmitLot signs the documents, assembles and encodes the lot and sends it
// to the asynchronous reception service. The lot id is the request dId.
func (c *Client) SubmitLot(ctx context.Context, docs []*document.Document) (*LotResult, error) {
	r := c.begin(OpSubmitLot, c.paths.Lot)
	if !c.hasSigner {
		return nil, r.fail(StateSigning, fmt.Errorf("%w: no signer configured", security.ErrSigningCredential), nil, nil)
	}

	lot, err := c.assembler.Lot(r.did, docs)
	if err != nil {
		return nil, r.fail(stageOf(err), err, nil, nil)
	}
	payload, err := compression.EncodeLot(lot.Text)
	if err != nil {
		return nil, r.fail(StateEncoding, err, nil, nil)
	}

	res := &LotResult{Lot: lot}
	out, err := c.run(ctx, r, message.NewLotSubmission(r.did, payload), func(env *message.Envelope, o *Outcome) error {
		var body message.LotResult
		ok, err := env.ResultInto(message.ResultLot, &body)
		if !ok || err != nil {
			return err
		}
		o.Code, o.Message = body.Code, body.Message
		res.Protocol = body.Protocol
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Outcome = *out
	return res, nil
}

// LotQueryResult is the outcome of a lot status query
type LotQueryResult struct {
	Outcome
	Documents []message.LotDocumentResult
}

// QueryLot asks for the per-document results of a lot
func (c *Client) QueryLot(ctx context.Context, protocol string) (*LotQueryResult, error) {
	r := c.begin(OpQueryLot, c.paths.LotQuery)
	if !isDigits(protocol) {
		return nil, r.fail(StateBuilding, fmt.Errorf("%w: lot number %q", document.ErrInvalidDocumentFields, protocol), nil, nil)
	}

	res := &LotQueryResult{}
	out, err := c.run(ctx, r, message.NewLotQuery(r.did, protocol), func(env *message.Envelope, o *Outcome) error {
		var body message.LotQueryResult
		ok, err := env.ResultInto(message.ResultLotQuery, &body)
		if !ok || err != nil {
			return err
		}
		o.Code, o.Message = body.Code, body.Message
		res.Documents = body.Documents
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Outcome = *out
	return res, nil
}

// DocumentQueryResult is the outcome of a document query by CDC
type DocumentQueryResult struct {
	Outcome
	// Content is the xContenDE markup returned for a known document
	Content []byte
}

// QueryDocument asks for a document by its CDC
func (c *Client) QueryDocument(ctx context.Context, cdc string) (*DocumentQueryResult, error) {
	r := c.begin(OpQueryDocument, c.paths.DocumentQuery)
	if !document.ValidateIdentifier(cdc) {
		return nil, r.fail(StateBuilding, fmt.Errorf("%w: %q", document.ErrChecksumMismatch, cdc), nil, nil)
	}

	res := &DocumentQueryResult{}
	out, err := c.run(ctx, r, message.NewDocumentQuery(r.did, cdc), func(env *message.Envelope, o *Outcome) error {
		var body message.DocumentInfoResult
		ok, err := env.ResultInto(message.ResultDocumentInfo, &body)
		if !ok || err != nil {
			return err
		}
		o.Code, o.Message = body.Code, body.Message
		res.Content = body.Content.Inner
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Outcome = *out
	return res, nil
}

// request is the state of one lifecycle invocation
type request struct {
	c         *Client
	op        Operation
	url       string
	did       string
	requestID string
	route     string
}

func (c *Client) begin(op Operation, path string) *request {
	return &request{
		c:         c,
		op:        op,
		url:       c.URL(path),
		did:       c.newDID(),
		requestID: uuid.NewString(),
	}
}

func (r *request) event(t EventType, s State) Event {
	return Event{
		Type:      t,
		Time:      r.c.now(),
		RequestID: r.requestID,
		Operation: r.op,
		URL:       r.url,
		Route:     r.route,
		State:     s,
	}
}

func (c *Client) emit(e Event) {
	if c.observer != nil {
		c.observer.Observe(e)
	}
}

func (r *request) fail(stage State, err error, req []byte, res *transport.Result) error {
	reqErr := &RequestError{
		Op:        r.op,
		Stage:     stage,
		RequestID: r.requestID,
		URL:       r.url,
		Request:   req,
		Err:       err,
	}
	if res != nil {
		reqErr.Response = res.Raw
		reqErr.HTTPStatus = res.HTTPStatus
	}
	e := r.event(EventRequestFailed, StateFailed)
	e.Err = err
	e.HTTPStatus = reqErr.HTTPStatus
	r.c.emit(e)
	return reqErr
}

// run performs Transmitting and ParsingResponse for a built body. extract
// fills Code and Message from the envelope; when it leaves Code empty the
// outcome is Rejected.
func (c *Client) run(ctx context.Context, r *request, body any, extract func(*message.Envelope, *Outcome) error) (*Outcome, error) {
	req, err := c.exchanger.Prepare(r.url, body)
	if err != nil {
		return nil, r.fail(StateBuilding, err, nil, nil)
	}
	r.route = req.Route.Name

	e := r.event(EventRequestBuilt, StateBuilding)
	e.Bytes = len(req.Payload)
	c.emit(e)

	c.emit(r.event(EventRequestSent, StateTransmitting))
	res, err := c.exchanger.Do(ctx, req)
	if err != nil {
		return nil, r.fail(StateTransmitting, err, req.Payload, nil)
	}

	e = r.event(EventResponseReceived, StateParsingResponse)
	e.HTTPStatus = res.HTTPStatus
	e.Bytes = len(res.Raw)
	e.Elapsed = res.Elapsed
	c.emit(e)

	env, err := message.Decode(res.Raw)
	if err != nil {
		return nil, r.fail(StateParsingResponse, err, req.Payload, res)
	}

	out := &Outcome{
		Operation:  r.op,
		RequestID:  r.requestID,
		DID:        r.did,
		URL:        r.url,
		HTTPStatus: res.HTTPStatus,
		Request:    req.Payload,
		Response:   res.Raw,
		Envelope:   env,
		Fault:      env.Fault(),
	}
	if err := extract(env, out); err != nil {
		c.logger.Warn("result node could not be decoded",
			slog.String("request_id", r.requestID),
			slog.String("operation", string(r.op)),
			slog.String("error", err.Error()))
		out.Code, out.Message = "", ""
	}
	out.State = StateCompleted
	if out.Code == "" {
		out.State = StateRejected
	}

	e = r.event(EventParseResult, out.State)
	e.HTTPStatus = res.HTTPStatus
	e.Code = out.Code
	c.emit(e)
	return out, nil
}

func validateRUC(ruc string) error {
	if len(ruc) == 0 || len(ruc) > 8 || !isDigits(ruc) {
		return fmt.Errorf("%w: RUC %q", document.ErrInvalidDocumentFields, ruc)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsRequestError reports whether err is a *RequestError and returns it
func IsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	ok := errors.As(err, &re)
	return re, ok
}
