// Package fault tags errors from external collaborators with a Kind so retry
// policy can be decided from the kind alone instead of from message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting purposes.
type Kind int

const (
	Unknown Kind = iota
	Transient
	RateLimited
	InvalidResponse
	MalformedJSON
	MalformedStatement
	NotFound
	Config
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case InvalidResponse:
		return "invalid_response"
	case MalformedJSON:
		return "malformed_json"
	case MalformedStatement:
		return "malformed_statement"
	case NotFound:
		return "not_found"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidResponseFormat means the model output held no JSON object.
	ErrInvalidResponseFormat = New(InvalidResponse, "extractor", errors.New("no JSON object in model response"))
	// ErrMalformedJSON means the JSON-shaped span failed to decode.
	ErrMalformedJSON = New(MalformedJSON, "extractor", errors.New("model response JSON could not be decoded"))
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
