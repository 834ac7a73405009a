// Command html2pdf-stream reads HTML from stdin and writes the rendered PDF to
// stdout. Failures are reported on stderr with exit status 1.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/automaxprocs/maxprocs"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/logging"
	"brochure-pdf/internal/render"
)

const (
	renderFailureFormat = "Error generating PDF: %s\n"
	unexpectedFormat    = "An unexpected error occurred: %s\n"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.LoadOptional(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, unexpectedFormat, err)
		return 1
	}
	logging.InitQuietLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logging.Info(fmt.Sprintf(format, args...))
	}))

	r, err := render.New(streamConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, unexpectedFormat, err)
		return 1
	}
	defer r.Engine().Close()

	return run(os.Stdin, os.Stdout, os.Stderr, r, inputEncoding())
}

// streamConfig keeps the CLI off the exec engine, which would normally point
// back at this command.
func streamConfig(cfg config.Config) config.Config {
	if cfg.PDF.Engine == config.EngineExec {
		logging.Warn("exec engine is not available to the stream command, using chromedp")
		cfg.PDF.Engine = config.EngineChromedp
	}
	return cfg
}

func inputEncoding() string {
	if v := strings.TrimSpace(os.Getenv("HTML2PDF_INPUT_ENCODING")); v != "" {
		return v
	}
	return render.DefaultEncoding
}

// run converts everything read from stdin and returns the process exit status.
func run(stdin io.Reader, stdout, stderr io.Writer, r render.Renderer, encoding string) int {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, unexpectedFormat, err)
		return 1
	}

	pdf, err := r.Render(context.Background(), string(raw), encoding)
	if err != nil {
		diag := domain.DiagnosticOf(err)
		if domain.KindOf(err) == domain.KindRender {
			logging.Error("PDF rendering failed", "diagnostic", diag)
			fmt.Fprintf(stderr, renderFailureFormat, diag)
		} else {
			logging.Error("PDF generation raised an error", "error", diag)
			fmt.Fprintf(stderr, unexpectedFormat, diag)
		}
		return 1
	}

	w := bufio.NewWriter(stdout)
	if _, err := w.Write(pdf); err != nil {
		fmt.Fprintf(stderr, unexpectedFormat, err)
		return 1
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(stderr, unexpectedFormat, err)
		return 1
	}
	logging.Info("PDF written", "bytes", len(pdf))
	return 0
}
