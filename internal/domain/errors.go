package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failed conversion.
type Kind int

const (
	// KindClient is a malformed or incomplete request; nothing was rendered.
	KindClient Kind = iota + 1
	// KindRender is a declared failure reported by the engine.
	KindRender
	// KindUnexpected is any fault raised during the render call itself.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindRender:
		return "render"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidRequest signals a request body that is not JSON or lacks html_content.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoPDFOutput signals that the engine finished without producing a PDF document.
	ErrNoPDFOutput = errors.New("renderer produced no PDF output")
	// ErrUnsupportedEncoding signals an input encoding label that cannot be decoded.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// ConversionError is the failure half of a conversion result.
type ConversionError struct {
	Kind       Kind
	Diagnostic string
	Err        error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Diagnostic)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// NewClientError builds a KindClient error.
func NewClientError(diagnostic string, err error) *ConversionError {
	return &ConversionError{Kind: KindClient, Diagnostic: diagnostic, Err: err}
}

// NewRenderError builds a KindRender error.
func NewRenderError(diagnostic string, err error) *ConversionError {
	return &ConversionError{Kind: KindRender, Diagnostic: diagnostic, Err: err}
}

// NewUnexpectedError builds a KindUnexpected error.
func NewUnexpectedError(diagnostic string, err error) *ConversionError {
	return &ConversionError{Kind: KindUnexpected, Diagnostic: diagnostic, Err: err}
}

// KindOf returns the classification of err, or 0 when err is not a ConversionError.
func KindOf(err error) Kind {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// DiagnosticOf returns the diagnostic of a ConversionError, or err's text.
func DiagnosticOf(err error) string {
	if err == nil {
		return ""
	}
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Diagnostic
	}
	return err.Error()
}

// StatusError is returned by an engine that ran to completion but reported
// a failure status instead of a document.
type StatusError struct {
	Diagnostic string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Diagnostic == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Diagnostic
}

func (e *StatusError) Unwrap() error { return e.Err }

// Declared wraps err as a declared engine failure.
func Declared(diagnostic string, err error) error {
	return &StatusError{Diagnostic: diagnostic, Err: err}
}
