package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
)

const execWaitDelay = 500 * time.Millisecond

// ExecEngine pipes HTML into an external converter process (for example the
// html2pdf-stream binary) and reads the PDF from its stdout.
type ExecEngine struct {
	command     string
	args        []string
	timeoutSecs int
}

// NewExecEngine returns an engine running cfg.PDF.ExecCommand.
func NewExecEngine(cfg config.Config) *ExecEngine {
	return &ExecEngine{
		command:     cfg.PDF.ExecCommand,
		args:        append([]string(nil), cfg.PDF.ExecArgs...),
		timeoutSecs: cfg.PDF.TimeoutSecs,
	}
}

func (e *ExecEngine) Name() string { return config.EngineExec }

// Render runs the converter once. A non-zero exit is a declared failure
// carrying the process's stderr; failing to start or being killed is a fault.
func (e *ExecEngine) Render(ctx context.Context, html string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = execWaitDelay

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("converter %q: %w", e.command, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			diag := strings.TrimSpace(stderr.String())
			if diag == "" {
				diag = exitErr.Error()
			}
			return nil, domain.Declared(diag, err)
		}
		return nil, fmt.Errorf("start converter %q: %w", e.command, err)
	}
	return stdout.Bytes(), nil
}

func (e *ExecEngine) Stats() EngineStats {
	return EngineStats{Engine: e.Name(), TimeoutSecs: e.timeoutSecs}
}

func (e *ExecEngine) Close() error { return nil }
