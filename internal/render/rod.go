package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/logging"
)

// ErrNoBrowser is returned when no Chrome binary is configured, found on the
// system or allowed to be downloaded.
var ErrNoBrowser = errors.New("no chrome binary available")

// RodEngine prints documents through go-rod, keeping one browser connected
// between renders. A browser that stops answering is dropped and the next
// render launches a new one.
type RodEngine struct {
	cfg config.Config

	mu      sync.Mutex
	session *rodSession
}

// rodSession is one launched and connected browser.
type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	close    func() error
}

// NewRodEngine returns an engine for cfg. The browser is launched on first use.
func NewRodEngine(cfg config.Config) *RodEngine {
	return &RodEngine{cfg: cfg}
}

func (e *RodEngine) Name() string { return config.EngineRod }

func (e *RodEngine) ensureSession() (*rodSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return e.session, nil
	}

	bin := e.cfg.PDF.ChromePath
	if bin == "" {
		if path, ok := launcher.LookPath(); ok {
			bin = path
		} else if !e.cfg.PDF.DownloadBrowser {
			return nil, ErrNoBrowser
		}
	}

	l := launcher.New().Headless(true).NoSandbox(e.cfg.PDF.ChromeNoSandbox)
	if bin != "" {
		l = l.Bin(bin)
	}
	if e.cfg.PDF.UserDataDir != "" {
		l = l.UserDataDir(e.cfg.PDF.UserDataDir)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	e.session = &rodSession{
		browser:  browser,
		launcher: l,
		close: func() error {
			err := browser.Close()
			l.Kill()
			return err
		},
	}
	return e.session, nil
}

// discard drops s if it is still the current session.
func (e *RodEngine) discard(s *rodSession) {
	e.mu.Lock()
	if e.session != s {
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.mu.Unlock()

	if err := s.close(); err != nil {
		logging.Warn("Closing lost rod browser failed", "error", err)
	}
}

// sessionLost reports a failure of the browser connection rather than of the
// document or the request.
func sessionLost(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var cdpErr *cdp.Error
	return !errors.As(err, &cdpErr)
}

// Render prints html to PDF. CDP error responses are declared failures.
func (e *RodEngine) Render(ctx context.Context, html string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := e.ensureSession()
	if err != nil {
		return nil, err
	}

	pdfBuf, err := e.print(ctx, s.browser, html)
	if err != nil {
		var cdpErr *cdp.Error
		if errors.As(err, &cdpErr) {
			return nil, domain.Declared(cdpErr.Message, err)
		}
		if sessionLost(ctx, err) {
			logging.Warn("Rod browser session lost; relaunching on next render", "error", err)
			e.discard(s)
		}
		return nil, err
	}
	return pdfBuf, nil
}

func (e *RodEngine) print(ctx context.Context, browser *rod.Browser, html string) ([]byte, error) {
	pg, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer pg.Close()
	pg = pg.Context(ctx)

	if err := pg.SetDocumentContent(html); err != nil {
		return nil, err
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, err
	}

	paper := e.cfg.Paper()
	margin := e.cfg.PDF.Margin
	reader, err := pg.PDF(&proto.PagePrintToPDF{
		PaperWidth:      floatPtr(paper.Width),
		PaperHeight:     floatPtr(paper.Height),
		MarginTop:       floatPtr(margin),
		MarginBottom:    floatPtr(margin),
		MarginLeft:      floatPtr(margin),
		MarginRight:     floatPtr(margin),
		PrintBackground: true,
	})
	if err != nil {
		return nil, err
	}
	pdfBuf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read PDF stream: %w", err)
	}
	return pdfBuf, nil
}

func floatPtr(v float64) *float64 { return &v }

func (e *RodEngine) Stats() EngineStats {
	return EngineStats{Engine: e.Name(), TimeoutSecs: e.cfg.PDF.TimeoutSecs}
}

// Close disconnects and kills the browser.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.close()
}
