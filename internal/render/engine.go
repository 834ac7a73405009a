package render

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/infra/logging"
)

// NewEngine builds the engine selected by cfg.PDF.Engine. For chromedp with
// no chrome_path and download_browser set, a Chromium build is fetched first.
func NewEngine(cfg config.Config) (Engine, error) {
	switch cfg.PDF.Engine {
	case config.EngineChromedp, "":
		if cfg.PDF.ChromePath == "" && cfg.PDF.DownloadBrowser {
			path, err := resolveBrowser()
			if err != nil {
				return nil, err
			}
			cfg.PDF.ChromePath = path
		}
		return NewChromedpEngine(cfg), nil
	case config.EngineRod:
		return NewRodEngine(cfg), nil
	case config.EngineExec:
		if cfg.PDF.ExecCommand == "" {
			return nil, fmt.Errorf("exec engine: no command configured")
		}
		return NewExecEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unknown render engine %q", cfg.PDF.Engine)
	}
}

// New builds the configured engine and wraps it in an Adapter bounded by pdf.timeout_secs.
func New(cfg config.Config) (*Adapter, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	logging.Info("Renderer ready", "engine", engine.Name(), "timeout_secs", cfg.PDF.TimeoutSecs)
	return NewAdapter(engine, cfg.Timeout()), nil
}

// resolveBrowser downloads a compatible Chromium into the rod cache if it is
// not already there and returns the executable path.
func resolveBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("download browser: %w", err)
	}
	logging.Info("Using downloaded browser", "path", path)
	return path, nil
}
