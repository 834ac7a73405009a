package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/chrome"
	"brochure-pdf/internal/infra/logging"
)

const acquireTimeout = 5 * time.Second

// tabPool is the part of *chrome.Pool used for rendering.
type tabPool interface {
	Acquire(ctx context.Context) (*chrome.Tab, error)
	Release(tab *chrome.Tab, renderErr error)
	Restart(gen uint64) error
}

// printTab renders html in an already open tab.
var printTab = renderPDFInExistingTab

// ChromedpEngine prints documents with headless Chrome over the DevTools
// protocol. With chrome_pool_size > 0 tabs come from a shared browser;
// otherwise every render starts its own browser.
type ChromedpEngine struct {
	cfg config.Config

	poolMu  sync.Mutex
	pool    *chrome.Pool
	poolErr error
}

// NewChromedpEngine returns an engine for cfg. The pool is created lazily.
func NewChromedpEngine(cfg config.Config) *ChromedpEngine {
	return &ChromedpEngine{cfg: cfg}
}

func (e *ChromedpEngine) Name() string { return config.EngineChromedp }

func (e *ChromedpEngine) getPool() (*chrome.Pool, error) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()

	if e.cfg.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if e.pool != nil {
		return e.pool, nil
	}
	if e.poolErr != nil {
		return nil, e.poolErr
	}
	pool, err := chrome.NewPool(e.cfg)
	if err != nil {
		e.poolErr = err
		return nil, err
	}
	e.pool = pool
	return e.pool, nil
}

// Render prints html to PDF. Protocol error responses are declared failures.
func (e *ChromedpEngine) Render(ctx context.Context, html string) ([]byte, error) {
	pool, err := e.getPool()
	if err != nil {
		return nil, fmt.Errorf("chrome pool init: %w", err)
	}

	var pdfBuf []byte
	if pool == nil {
		pdfBuf, err = e.renderWithChrome(ctx, html)
	} else {
		pdfBuf, err = e.renderInPool(ctx, pool, html)
	}
	if err != nil {
		var cdpErr *cdproto.Error
		if errors.As(err, &cdpErr) {
			return nil, domain.Declared(cdpErr.Message, err)
		}
		return nil, err
	}
	return pdfBuf, nil
}

func (e *ChromedpEngine) renderInPool(ctx context.Context, pool tabPool, html string) (pdfBuf []byte, renderErr error) {
	acquireCtx, acquireCancel := context.WithTimeout(ctx, acquireTimeout)
	defer acquireCancel()

	tab, err := pool.Acquire(acquireCtx)
	if err != nil {
		return nil, err
	}
	defer func() { pool.Release(tab, renderErr) }()

	tabCtx, cancel := mergeCancel(tab.Ctx, ctx)
	defer cancel()

	pdfBuf, renderErr = printTab(tabCtx, html, e.cfg.Paper(), e.cfg.PDF.Margin, e.settle())

	// A dead browser is replaced for the next request; this one still fails.
	if renderErr != nil && ctx.Err() == nil && chrome.IsSessionInterrupted(renderErr) {
		logging.Warn("Chrome session interrupted; restarting pool", "error", renderErr, "generation", tab.Gen)
		if err := pool.Restart(tab.Gen); err != nil {
			logging.Error("Chrome pool restart failed", "error", err)
		}
	}
	return pdfBuf, renderErr
}

// renderWithChrome starts a throwaway browser with its own profile directory.
func (e *ChromedpEngine) renderWithChrome(ctx context.Context, html string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.PDF.UserDataDir, "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chrome.AllocatorOptions(e.cfg, tmpDir)...)
	defer allocCancel()
	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	return renderPDFInExistingTab(chromeCtx, html, e.cfg.Paper(), e.cfg.PDF.Margin, e.settle())
}

func (e *ChromedpEngine) settle() time.Duration {
	return time.Duration(e.cfg.PDF.SettleMillis) * time.Millisecond
}

// renderPDFInExistingTab loads html into the tab behind ctx and prints it.
func renderPDFInExistingTab(ctx context.Context, html string, paper config.PaperSize, margin float64, settle time.Duration) ([]byte, error) {
	var pdfBuf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitForRenderReady(ctx, settle)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paper.Width).
				WithPaperHeight(paper.Height).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

// waitForRenderReady gives late layout (web fonts, images) a moment to settle.
func waitForRenderReady(ctx context.Context, settle time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if settle <= 0 {
		return nil
	}
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// mergeCancel derives a context from tab that is also canceled when req is done.
func mergeCancel(tab, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(req, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Stats reports the pool state, or a disabled pool when pooling is off.
func (e *ChromedpEngine) Stats() EngineStats {
	s := EngineStats{Engine: e.Name(), TimeoutSecs: e.cfg.PDF.TimeoutSecs}

	e.poolMu.Lock()
	pool := e.pool
	e.poolMu.Unlock()
	if pool != nil {
		ps := pool.Stats(e.cfg.PDF.TimeoutSecs)
		s.Pool = &ps
	}
	return s
}

// Close shuts the pooled browser down, if any.
func (e *ChromedpEngine) Close() error {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool != nil {
		e.pool.Close()
	}
	return nil
}
