// Package render wraps the delegated HTML-to-PDF engines behind a single
// adapter that classifies their failures.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/chrome"
	"brochure-pdf/internal/infra/logging"
)

// DefaultEncoding is assumed when the caller passes an empty encoding label.
const DefaultEncoding = "utf-8"

var pdfSignature = []byte("%PDF-")

// Engine is an external HTML-to-PDF capability. An engine that completes but
// reports a failure status returns a *domain.StatusError; any other error is
// treated as a fault raised during the call.
type Engine interface {
	Name() string
	Render(ctx context.Context, html string) ([]byte, error)
	Stats() EngineStats
	Close() error
}

// Renderer is what the entry points consume.
type Renderer interface {
	Render(ctx context.Context, html, encoding string) ([]byte, error)
}

// EngineStats is reported by GET /ops/renderer/stats.
type EngineStats struct {
	Engine      string        `json:"engine"`
	TimeoutSecs int           `json:"timeout_secs"`
	Pool        *chrome.Stats `json:"pool,omitempty"`
}

// Adapter classifies engine outcomes into domain conversion errors.
type Adapter struct {
	engine  Engine
	timeout time.Duration
}

var _ Renderer = (*Adapter)(nil)

// NewAdapter wraps engine. A positive timeout bounds every render call.
func NewAdapter(engine Engine, timeout time.Duration) *Adapter {
	return &Adapter{engine: engine, timeout: timeout}
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine { return a.engine }

// Stats reports the wrapped engine's stats.
func (a *Adapter) Stats() EngineStats { return a.engine.Stats() }

// Render converts htmlText, interpreted in the given encoding, to PDF bytes.
// Every non-nil error is a *domain.ConversionError of KindRender or KindUnexpected.
func (a *Adapter) Render(ctx context.Context, htmlText, encoding string) (pdf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Renderer panicked", "engine", a.engine.Name(), "panic", r)
			pdf = nil
			err = domain.NewUnexpectedError(fmt.Sprint(r), nil)
		}
	}()

	text, err := decode(htmlText, encoding)
	if err != nil {
		return nil, domain.NewUnexpectedError(err.Error(), err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	out, err := a.engine.Render(ctx, text)
	if err != nil {
		return nil, classify(err)
	}
	if !IsPDF(out) {
		return nil, domain.NewRenderError(domain.ErrNoPDFOutput.Error(), domain.ErrNoPDFOutput)
	}
	return out, nil
}

func classify(err error) error {
	var status *domain.StatusError
	if errors.As(err, &status) {
		return domain.NewRenderError(status.Error(), err)
	}
	return domain.NewUnexpectedError(err.Error(), err)
}

// decode transcodes text from the named WHATWG encoding to UTF-8.
func decode(text, encoding string) (string, error) {
	label := strings.TrimSpace(encoding)
	if label == "" {
		label = DefaultEncoding
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedEncoding, encoding)
	}
	if name, _ := htmlindex.Name(enc); name == DefaultEncoding {
		return text, nil
	}
	out, err := enc.NewDecoder().String(text)
	if err != nil {
		return "", fmt.Errorf("decode %s input: %w", label, err)
	}
	return out, nil
}

// IsPDF reports whether data starts with the PDF signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfSignature)
}
