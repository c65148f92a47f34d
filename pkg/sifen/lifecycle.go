package sifen

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-sifen/pkg/assembler"
	"github.com/sirosfoundation/go-sifen/pkg/document"
	"github.com/sirosfoundation/go-sifen/pkg/message"
	"github.com/sirosfoundation/go-sifen/pkg/security"
)

// State is a step of the request lifecycle
type State int

const (
	StateBuilding State = iota
	StateSigning
	StateEncoding
	StateTransmitting
	StateParsingResponse
	StateCompleted
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSigning:
		return "signing"
	case StateEncoding:
		return "encoding"
	case StateTransmitting:
		return "transmitting"
	case StateParsingResponse:
		return "parsing-response"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s ends a lifecycle
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

// Operation names a SIFEN web service call
type Operation string

const (
	OpLookupRUC      Operation = "ruc-lookup"
	OpSubmitDocument Operation = "document-reception"
	OpSubmitLot      Operation = "lot-reception"
	OpQueryLot       Operation = "lot-query"
	OpQueryDocument  Operation = "document-query"
)

// Outcome is the common part of every operation result. State is
// StateCompleted when the authority's result code was found, whatever its
// business meaning, and StateRejected when a response arrived without one.
// An empty Code is indeterminate, not a rejection by the authority.
type Outcome struct {
	Operation  Operation
	RequestID  string
	DID        string
	URL        string
	State      State
	HTTPStatus int
	// Request and Response are the literal bytes sent and received
	Request  []byte
	Response []byte
	Envelope *message.Envelope
	Fault    *message.Fault
	Code     string
	Message  string
}

// Indeterminate reports whether no result code was obtained
func (o *Outcome) Indeterminate() bool {
	return o.Code == ""
}

// RequestError is returned for every Failed lifecycle. It carries the stage
// that failed and whatever bytes were exchanged before the failure.
type RequestError struct {
	Op         Operation
	Stage      State
	RequestID  string
	URL        string
	Request    []byte
	Response   []byte
	HTTPStatus int
	Err        error
}

func (e *RequestError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("sifen %s failed while %s (HTTP %d): %v", e.Op, e.Stage, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("sifen %s failed while %s: %v", e.Op, e.Stage, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// stageOf attributes an assembly error to Building or Signing
func stageOf(err error) State {
	switch {
	case errors.Is(err, security.ErrAlreadySigned), errors.Is(err, security.ErrSigningCredential):
		return StateSigning
	case errors.Is(err, document.ErrInvalidDocumentFields),
		errors.Is(err, document.ErrChecksumMismatch),
		errors.Is(err, assembler.ErrLotTooLarge),
		errors.Is(err, assembler.ErrEmptyLot):
		return StateBuilding
	default:
		return StateSigning
	}
}

const didModulus = 1_000_000_000_000_000

// NewDID returns a random 15 digit request identifier (dId)
func NewDID() string {
	u := uuid.New()
	return fmt.Sprintf("%015d", binary.BigEndian.Uint64(u[:8])%didModulus)
}
