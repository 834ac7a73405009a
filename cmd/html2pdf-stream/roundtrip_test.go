package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/http/server"
	"brochure-pdf/internal/render"
)

// digestRenderer produces a PDF-looking document derived only from its input.
type digestRenderer struct{}

func (digestRenderer) Render(_ context.Context, html, encoding string) ([]byte, error) {
	sum := sha256.Sum256([]byte(encoding + "\x00" + html))
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% %x\n%%%%EOF\n", sum)), nil
}

func TestHTTPAndStreamProduceIdenticalBytes(t *testing.T) {
	const html = "<html><body>Hello</body></html>"
	cfg := config.Default()
	cfg.Cache.PDFCacheEnabled = false

	app := server.New(server.Deps{Config: cfg, Renderer: digestRenderer{}})
	req := httptest.NewRequest(http.MethodPost, "/generate-pdf", strings.NewReader(`{"html_content":"<html><body>Hello</body></html>"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	fromHTTP, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(strings.NewReader(html), &stdout, &stderr, digestRenderer{}, render.DefaultEncoding); code != 0 {
		t.Fatalf("stream exit %d: %s", code, stderr.String())
	}

	if !bytes.Equal(fromHTTP, stdout.Bytes()) {
		t.Fatalf("HTTP body and stream output differ:\nhttp:   %q\nstream: %q", fromHTTP, stdout.Bytes())
	}
}
