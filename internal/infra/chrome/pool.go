package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/infra/logging"
)

var (
	// ErrPoolDisabled is returned by NewPool when chrome_pool_size is not positive.
	ErrPoolDisabled = errors.New("chrome pool disabled")
	// ErrPoolClosed is returned when acquiring from or restarting a closed pool.
	ErrPoolClosed = errors.New("chrome pool closed")
)

// Pool keeps one headless browser alive and hands out at most
// chrome_pool_size tabs at a time.
type Pool struct {
	cfg config.Config

	mu            sync.Mutex
	sem           chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	profileDir    string
	started       bool
	closed        bool
	gen           uint64
	restarts      int
	lastRestart   time.Time
}

// Tab is a browser tab leased from the pool. Ctx is valid until Release.
// Gen identifies the browser the tab was opened on.
type Tab struct {
	Ctx    context.Context
	Gen    uint64
	cancel context.CancelFunc
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	TimeoutSecs  int       `json:"timeout_secs"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart,omitempty"`
}

// NewPool prepares a browser allocator with a private profile directory.
// The browser process itself starts on the first Acquire.
func NewPool(cfg config.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}

	p := &Pool{cfg: cfg, sem: make(chan struct{}, size)}
	if err := p.start(); err != nil {
		return nil, err
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	logging.Info("Chrome pool ready", "size", size, "profile_dir", p.profileDir)
	return p, nil
}

// start must be called with p.mu held or before p is shared.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}

	opts := AllocatorOptions(p.cfg, dir)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.profileDir = dir
	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.started = false
	p.gen++
	return nil
}

// ensureStarted launches the browser once so that every tab shares it.
// Tabs created from a context that never ran would each spawn their own browser.
// Must be called with p.mu held.
func (p *Pool) ensureStarted() error {
	if p.started {
		return nil
	}
	if p.browserCtx == nil {
		return ErrPoolClosed
	}
	if err := chromedp.Run(p.browserCtx); err != nil {
		return fmt.Errorf("start chrome: %w", err)
	}
	p.started = true
	return nil
}

func (p *Pool) stop() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Acquire blocks until a tab is free, ctx is done or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	sem := p.sem
	p.mu.Unlock()
	if closed || sem == nil {
		return nil, ErrPoolClosed
	}

	select {
	case <-sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		sem <- struct{}{}
		return nil, ErrPoolClosed
	}
	if err := p.ensureStarted(); err != nil {
		sem <- struct{}{}
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(p.browserCtx)
	return &Tab{Ctx: tabCtx, Gen: p.gen, cancel: cancel}, nil
}

// Release closes the tab and returns its slot. renderErr is logged when the
// session was interrupted so restarts can be correlated.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab == nil {
		return
	}
	if tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil && IsSessionInterrupted(renderErr) {
		logging.Warn("Chrome tab released after interrupted session", "error", renderErr)
	}

	p.mu.Lock()
	sem := p.sem
	p.mu.Unlock()
	select {
	case sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser that tabs of generation gen were opened on,
// along with its profile directory. It does nothing when that browser has
// already been replaced. In-flight tabs fail and are released normally by
// their callers.
func (p *Pool) Restart(gen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if gen != p.gen {
		return nil
	}

	p.stop()
	if err := p.start(); err != nil {
		return fmt.Errorf("restart chrome pool: %w", err)
	}
	p.restarts++
	p.lastRestart = time.Now()
	logging.Warn("Chrome pool restarted", "restarts", p.restarts, "profile_dir", p.profileDir)
	return nil
}

// Close stops the browser and removes the profile directory. It is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stop()
}

// Stats reports capacity and usage. timeoutSecs is echoed for the stats endpoint.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Enabled:      !p.closed && p.sem != nil,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
	if p.sem != nil {
		s.Capacity = cap(p.sem)
		s.Idle = len(p.sem)
		s.InUse = s.Capacity - s.Idle
	}
	if p.closed {
		s.ProfileDir = ""
	}
	return s
}

func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	} else if err := os.MkdirAll(base, 0o700); err != nil {
		return "", fmt.Errorf("create chrome profile base %q: %w", base, err)
	}
	dir, err := os.MkdirTemp(base, "chromedata-*")
	if err != nil {
		return "", fmt.Errorf("create chrome profile dir: %w", err)
	}
	return dir, nil
}

// AllocatorOptions returns the exec allocator flags shared by pooled and
// per-request browsers.
func AllocatorOptions(cfg config.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

var interruptedMarkers = []string{
	"target closed",
	"session closed",
	"websocket",
	"broken pipe",
	"connection reset",
	"invalid context",
}

// IsSessionInterrupted reports errors caused by a lost browser session rather
// than by the document being rendered.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range interruptedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
