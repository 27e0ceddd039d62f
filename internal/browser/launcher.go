// Package browser drives real browsers through playwright for the portal
// scenarios.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/config"
	"github.com/testforge/portalsuite/internal/runner"
)

// Timeouts used by page waits
type Timeouts struct {
	Optimistic time.Duration
	Visible    time.Duration
	Overlay    time.Duration
	Processing time.Duration
	Navigation time.Duration
}

// TimeoutsFrom reads the wait timeouts from configuration
func TimeoutsFrom(cfg config.BrowserConfig) Timeouts {
	return Timeouts{
		Optimistic: cfg.OptimisticTimeout,
		Visible:    cfg.VisibleTimeout,
		Overlay:    cfg.OverlayTimeout,
		Processing: cfg.ProcessingTimeout,
		Navigation: cfg.NavigationTimeout,
	}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// launchSpec maps a variant name onto a browser engine and release channel
type launchSpec struct {
	engine  string
	channel string
}

func specFor(variant string) (launchSpec, error) {
	switch v := strings.ToLower(variant); v {
	case "", "chromium":
		return launchSpec{engine: "chromium"}, nil
	case "firefox", "webkit":
		return launchSpec{engine: v}, nil
	case "chrome", "msedge":
		return launchSpec{engine: "chromium", channel: v}, nil
	default:
		return launchSpec{}, fmt.Errorf("unknown browser %q", variant)
	}
}

// Engines lists the driver engines the variants need, deduplicated
func Engines(variants []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, v := range variants {
		s, err := specFor(v)
		if err != nil {
			return nil, err
		}
		if s.channel != "" || seen[s.engine] {
			continue
		}
		seen[s.engine] = true
		out = append(out, s.engine)
	}
	return out, nil
}

// Install downloads the playwright driver and the browsers the variants need
func Install(variants []string, logger *zap.Logger) error {
	engines, err := Engines(variants)
	if err != nil {
		return err
	}
	logger.Info("Installing browser drivers", zap.Strings("browsers", engines))
	if err := playwright.Install(&playwright.RunOptions{Browsers: engines}); err != nil {
		return fmt.Errorf("installing playwright browsers: %w", err)
	}
	return nil
}

// Launcher starts browsers on demand and hands out fresh pages
type Launcher struct {
	cfg      config.BrowserConfig
	timeouts Timeouts
	logger   *zap.Logger

	mu       sync.Mutex
	pw       *playwright.Playwright
	browsers map[string]playwright.Browser
}

// NewLauncher starts the playwright driver
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) (*Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	return &Launcher{
		cfg:      cfg,
		timeouts: TimeoutsFrom(cfg),
		logger:   logger,
		pw:       pw,
		browsers: make(map[string]playwright.Browser),
	}, nil
}

func (l *Launcher) browser(variant string) (playwright.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.browsers[variant]; ok && b.IsConnected() {
		return b, nil
	}

	spec, err := specFor(variant)
	if err != nil {
		return nil, err
	}

	var bt playwright.BrowserType
	switch spec.engine {
	case "firefox":
		bt = l.pw.Firefox
	case "webkit":
		bt = l.pw.WebKit
	default:
		bt = l.pw.Chromium
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
		SlowMo:   playwright.Float(l.cfg.SlowMo),
	}
	if spec.channel != "" {
		opts.Channel = playwright.String(spec.channel)
	}

	b, err := bt.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("launching %s: %w", variant, err)
	}
	l.logger.Info("Browser launched", zap.String("browser", variant), zap.Bool("headless", l.cfg.Headless))
	l.browsers[variant] = b
	return b, nil
}

// Open returns a page in a new, isolated browser context
func (l *Launcher) Open(_ context.Context, variant string) (runner.PageHandle, error) {
	b, err := l.browser(variant)
	if err != nil {
		return nil, err
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1600, Height: 900},
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(l.timeouts.Visible.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(l.timeouts.Navigation.Milliseconds()))

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return &Page{pw: page, ctx: bctx, timeouts: l.timeouts, logger: l.logger}, nil
}

// Close shuts every browser down and stops the driver
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, b := range l.browsers {
		if err := b.Close(); err != nil {
			l.logger.Warn("Closing browser failed", zap.String("browser", name), zap.Error(err))
		}
	}
	l.browsers = map[string]playwright.Browser{}

	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}
