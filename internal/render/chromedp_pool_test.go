package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/chrome"
)

type fakeTabPool struct {
	mu       sync.Mutex
	gen      uint64
	leased   int
	released int
	restarts []uint64
}

func (f *fakeTabPool) Acquire(context.Context) (*chrome.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leased++
	return &chrome.Tab{Ctx: context.Background(), Gen: f.gen}, nil
}

func (f *fakeTabPool) Release(*chrome.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakeTabPool) Restart(gen uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, gen)
	if gen == f.gen {
		f.gen++
	}
	return nil
}

func withPrintTab(t *testing.T, fn func(context.Context, string, config.PaperSize, float64, time.Duration) ([]byte, error)) {
	t.Helper()
	orig := printTab
	printTab = fn
	t.Cleanup(func() { printTab = orig })
}

func TestRenderInPool_PanicReleasesTab(t *testing.T) {
	withPrintTab(t, func(context.Context, string, config.PaperSize, float64, time.Duration) ([]byte, error) {
		panic("cdp decoder blew up")
	})
	pool := &fakeTabPool{gen: 1}
	e := NewChromedpEngine(testPDFCfg())

	a := NewAdapter(engineFunc(func(ctx context.Context, html string) ([]byte, error) {
		return e.renderInPool(ctx, pool, html)
	}), time.Second)

	for i := 0; i < 3; i++ {
		_, err := a.Render(context.Background(), "<p>x</p>", "")
		require.Error(t, err)
		assert.Equal(t, domain.KindUnexpected, domain.KindOf(err))
	}
	assert.Equal(t, 3, pool.leased)
	assert.Equal(t, 3, pool.released, "every leased tab must be released")
}

func TestRenderInPool_InterruptedSessionRestartsOnce(t *testing.T) {
	withPrintTab(t, func(context.Context, string, config.PaperSize, float64, time.Duration) ([]byte, error) {
		return nil, errors.New("target closed")
	})
	pool := &fakeTabPool{gen: 4}
	e := NewChromedpEngine(testPDFCfg())

	_, err := e.renderInPool(context.Background(), pool, "<p>x</p>")
	require.Error(t, err, "the interrupted request still fails")
	assert.Equal(t, []uint64{4}, pool.restarts)
	assert.Equal(t, uint64(5), pool.gen)
	assert.Equal(t, 1, pool.released)
}

func TestRenderInPool_CanceledRequestDoesNotRestart(t *testing.T) {
	withPrintTab(t, func(ctx context.Context, _ string, _ config.PaperSize, _ float64, _ time.Duration) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	pool := &fakeTabPool{}
	e := NewChromedpEngine(testPDFCfg())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := e.renderInPool(ctx, pool, "<p>x</p>")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pool.restarts)
	assert.Equal(t, 1, pool.released)
}

func TestRenderInPool_Success(t *testing.T) {
	withPrintTab(t, func(context.Context, string, config.PaperSize, float64, time.Duration) ([]byte, error) {
		return minimalPDF, nil
	})
	pool := &fakeTabPool{}
	pdf, err := NewChromedpEngine(testPDFCfg()).renderInPool(context.Background(), pool, "<p>x</p>")
	require.NoError(t, err)
	assert.Equal(t, minimalPDF, pdf)
	assert.Equal(t, 1, pool.released)
}

// engineFunc adapts a render function to Engine for adapter-level tests.
type engineFunc func(ctx context.Context, html string) ([]byte, error)

func (f engineFunc) Name() string { return "func" }
func (f engineFunc) Render(ctx context.Context, html string) ([]byte, error) {
	return f(ctx, html)
}
func (f engineFunc) Stats() EngineStats { return EngineStats{Engine: "func"} }
func (f engineFunc) Close() error       { return nil }
