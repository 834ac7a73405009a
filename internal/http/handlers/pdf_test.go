package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/cache"
	"brochure-pdf/internal/render"
)

type fakeRenderer struct {
	pdf   []byte
	err   error
	calls int
	html  string
}

func (f *fakeRenderer) Render(_ context.Context, html, _ string) ([]byte, error) {
	f.calls++
	f.html = html
	return f.pdf, f.err
}

func (f *fakeRenderer) Stats() render.EngineStats {
	return render.EngineStats{Engine: "fake", TimeoutSecs: 7}
}

var samplePDF = []byte("%PDF-1.4\n%fake\n%%EOF\n")

// newTestApp mirrors the server's flat JSON error handler.
func newTestApp(svc *PDFService) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})
	app.Post("/generate-pdf", svc.HandleGeneratePDF)
	app.Get("/stats", svc.HandleRendererStats)
	app.Post("/populate", HandleBrochurePopulate)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, string, map[string]string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b), map[string]string{
		"type":        resp.Header.Get("Content-Type"),
		"disposition": resp.Header.Get("Content-Disposition"),
	}
}

func errorMessage(t *testing.T, body string) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	return payload["error"]
}

func TestHandleGeneratePDF_Success(t *testing.T) {
	fr := &fakeRenderer{pdf: samplePDF}
	app := newTestApp(NewPDFService(config.Default(), fr, nil))

	code, body, headers := postJSON(t, app, "/generate-pdf", `{"html_content":"<p>Test</p>"}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, string(samplePDF), body)
	assert.Equal(t, "application/pdf", headers["type"])
	assert.Equal(t, `attachment; filename="brochure.pdf"`, headers["disposition"])
	assert.Equal(t, "<p>Test</p>", fr.html)
}

func TestHandleGeneratePDF_InvalidRequests(t *testing.T) {
	bodies := map[string]string{
		"empty object": `{}`,
		"null content": `{"html_content":null}`,
		"not json":     `<html></html>`,
		"array":        `[1,2]`,
		"wrong type":   `{"html_content":42}`,
		"empty body":   ``,
		"truncated":    `{"html_content":"<p>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			fr := &fakeRenderer{pdf: samplePDF}
			app := newTestApp(NewPDFService(config.Default(), fr, nil))

			code, resp, _ := postJSON(t, app, "/generate-pdf", body)
			assert.Equal(t, fiber.StatusBadRequest, code)
			assert.Equal(t, domain.InvalidRequestMessage, errorMessage(t, resp))
			assert.Zero(t, fr.calls, "renderer must not be invoked")
		})
	}
}

func TestHandleGeneratePDF_EmptyStringIsRendered(t *testing.T) {
	fr := &fakeRenderer{pdf: samplePDF}
	app := newTestApp(NewPDFService(config.Default(), fr, nil))

	code, _, _ := postJSON(t, app, "/generate-pdf", `{"html_content":""}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 1, fr.calls)
}

func TestHandleGeneratePDF_RenderErrorHidesDiagnostic(t *testing.T) {
	fr := &fakeRenderer{err: domain.NewRenderError("secret engine detail", nil)}
	app := newTestApp(NewPDFService(config.Default(), fr, nil))

	code, body, _ := postJSON(t, app, "/generate-pdf", `{"html_content":"<p>x</p>"}`)
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, MsgRenderFailed, errorMessage(t, body))
	assert.NotContains(t, body, "secret engine detail")
}

func TestHandleGeneratePDF_UnexpectedErrorExposesDiagnostic(t *testing.T) {
	fr := &fakeRenderer{err: domain.NewUnexpectedError("chrome failed to start", nil)}
	app := newTestApp(NewPDFService(config.Default(), fr, nil))

	code, body, _ := postJSON(t, app, "/generate-pdf", `{"html_content":"<p>x</p>"}`)
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, "Error generating PDF: chrome failed to start", errorMessage(t, body))

	fr.err = errors.New("plain failure")
	_, body, _ = postJSON(t, app, "/generate-pdf", `{"html_content":"<p>x</p>"}`)
	assert.Equal(t, "Error generating PDF: plain failure", errorMessage(t, body))
}

func TestHandleGeneratePDF_CustomDownloadName(t *testing.T) {
	cfg := config.Default()
	cfg.PDF.DownloadName = "flyer.pdf"
	app := newTestApp(NewPDFService(cfg, &fakeRenderer{pdf: samplePDF}, nil))

	_, _, headers := postJSON(t, app, "/generate-pdf", `{"html_content":"<p>x</p>"}`)
	assert.Equal(t, `attachment; filename="flyer.pdf"`, headers["disposition"])
}

func TestHandleGeneratePDF_CacheHitSkipsRenderer(t *testing.T) {
	mrs := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	defer rdb.Close()

	fr := &fakeRenderer{pdf: samplePDF}
	svc := NewPDFService(config.Default(), fr, cache.New(rdb, 0))
	app := newTestApp(svc)

	for i := 0; i < 2; i++ {
		code, body, _ := postJSON(t, app, "/generate-pdf", `{"html_content":"<p>cached</p>"}`)
		require.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, string(samplePDF), body)
	}
	assert.Equal(t, 1, fr.calls)
	assert.True(t, mrs.Exists(cache.Key("fake", "<p>cached</p>")))
}

func TestHandleGeneratePDF_FailuresAreNotCached(t *testing.T) {
	mrs := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})
	defer rdb.Close()

	fr := &fakeRenderer{err: domain.NewRenderError("bad", nil)}
	app := newTestApp(NewPDFService(config.Default(), fr, cache.New(rdb, 0)))

	postJSON(t, app, "/generate-pdf", `{"html_content":"<p>x</p>"}`)
	assert.Empty(t, mrs.Keys())
}

func TestHandleRendererStats(t *testing.T) {
	app := newTestApp(NewPDFService(config.Default(), &fakeRenderer{}, nil))

	resp, err := app.Test(httptest.NewRequest("GET", "/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var st render.EngineStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "fake", st.Engine)
	assert.Equal(t, 7, st.TimeoutSecs)
	assert.Nil(t, st.Pool)
}
