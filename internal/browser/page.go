package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/runner"
)

// ModalSelector matches every open bootstrap modal
const ModalSelector = "//div[contains(@class, 'modal fade show')]"

// Page wraps a playwright page with the waits the portals need
type Page struct {
	pw       playwright.Page
	ctx      playwright.BrowserContext
	timeouts Timeouts
	logger   *zap.Logger
}

// From returns the browser page behind a runner page handle
func From(h runner.PageHandle) (*Page, error) {
	p, ok := h.(*Page)
	if !ok || p == nil {
		return nil, errors.New("case needs a browser page")
	}
	return p, nil
}

// PW exposes the underlying playwright page for building locators
func (p *Page) PW() playwright.Page {
	return p.pw
}

// Timeouts returns the configured wait timeouts
func (p *Page) Timeouts() Timeouts {
	return p.timeouts
}

// Goto navigates and waits for the load event
func (p *Page) Goto(url string) error {
	if _, err := p.pw.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   ms(p.timeouts.Navigation),
	}); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current page
func (p *Page) Reload() error {
	if _, err := p.pw.Reload(playwright.PageReloadOptions{Timeout: ms(p.timeouts.Navigation)}); err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}
	return nil
}

// Pause waits a fixed time for screens that settle without a signal
func (p *Page) Pause(d time.Duration) {
	p.pw.WaitForTimeout(float64(d.Milliseconds()))
}

func (p *Page) waitFor(loc playwright.Locator, state *playwright.WaitForSelectorState, timeout time.Duration) error {
	return loc.WaitFor(playwright.LocatorWaitForOptions{State: state, Timeout: ms(timeout)})
}

// WaitVisible waits for loc to be visible. A zero timeout uses the default.
func (p *Page) WaitVisible(loc playwright.Locator, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeouts.Visible
	}
	if err := p.waitFor(loc, playwright.WaitForSelectorStateVisible, timeout); err != nil {
		return fmt.Errorf("waiting for element to be visible: %w", err)
	}
	return nil
}

// WaitHidden waits for loc to be hidden or gone
func (p *Page) WaitHidden(loc playwright.Locator, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeouts.Visible
	}
	if err := p.waitFor(loc, playwright.WaitForSelectorStateHidden, timeout); err != nil {
		return fmt.Errorf("waiting for element to be hidden: %w", err)
	}
	return nil
}

// WaitAttached waits for loc to exist in the DOM
func (p *Page) WaitAttached(loc playwright.Locator, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeouts.Visible
	}
	if err := p.waitFor(loc, playwright.WaitForSelectorStateAttached, timeout); err != nil {
		return fmt.Errorf("waiting for element to be attached: %w", err)
	}
	return nil
}

// IsVisibleWithin reports whether loc becomes visible before the optimistic
// timeout. It never fails.
func (p *Page) IsVisibleWithin(loc playwright.Locator, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = p.timeouts.Optimistic
	}
	return p.waitFor(loc, playwright.WaitForSelectorStateVisible, timeout) == nil
}

// WaitOverlay waits for a loading overlay to go away
func (p *Page) WaitOverlay(overlay playwright.Locator) error {
	if err := p.waitFor(overlay, playwright.WaitForSelectorStateHidden, p.timeouts.Overlay); err != nil {
		return fmt.Errorf("waiting for loading overlay: %w", err)
	}
	return nil
}

// WaitProcessing waits for a processing indicator that may never appear. If
// it shows up within the optimistic timeout it must detach before the
// processing timeout; otherwise the wait is a no-op.
func (p *Page) WaitProcessing(indicator playwright.Locator) {
	if !p.IsVisibleWithin(indicator, 0) {
		return
	}
	if err := p.waitFor(indicator, playwright.WaitForSelectorStateDetached, p.timeouts.Processing); err != nil {
		p.logger.Debug("Processing indicator still present", zap.Error(err))
	}
}

// Click clicks loc
func (p *Page) Click(loc playwright.Locator) error {
	if err := loc.Click(); err != nil {
		return fmt.Errorf("clicking element: %w", err)
	}
	return nil
}

// Fill focuses loc, clears it and fills in text
func (p *Page) Fill(loc playwright.Locator, text string) error {
	if err := p.Click(loc); err != nil {
		return err
	}
	if err := loc.Clear(); err != nil {
		return fmt.Errorf("clearing field: %w", err)
	}
	if err := loc.Fill(text); err != nil {
		return fmt.Errorf("filling field: %w", err)
	}
	return nil
}

// Type focuses loc and types text one key at a time, for fields that react
// to individual keystrokes
func (p *Page) Type(loc playwright.Locator, text string, delay time.Duration) error {
	if err := p.Click(loc); err != nil {
		return err
	}
	if err := loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(delay.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("typing into field: %w", err)
	}
	return nil
}

// Press sends a single key to loc
func (p *Page) Press(loc playwright.Locator, key string) error {
	if err := loc.Press(key); err != nil {
		return fmt.Errorf("pressing %s: %w", key, err)
	}
	return nil
}

// Text returns the textContent of loc
func (p *Page) Text(loc playwright.Locator) (string, error) {
	s, err := loc.TextContent()
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return s, nil
}

// InnerText returns the rendered text of loc
func (p *Page) InnerText(loc playwright.Locator) (string, error) {
	s, err := loc.InnerText()
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return s, nil
}

// Value returns the current value of an input
func (p *Page) Value(loc playwright.Locator) (string, error) {
	s, err := loc.InputValue()
	if err != nil {
		return "", fmt.Errorf("reading input value: %w", err)
	}
	return s, nil
}

// WaitValue polls an input until its value matches re
func (p *Page) WaitValue(ctx context.Context, loc playwright.Locator, re *regexp.Regexp, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if v, err := loc.InputValue(); err == nil && re.MatchString(v) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for input value matching %s: %w", re, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Select chooses an option of a select element by value
func (p *Page) Select(loc playwright.Locator, value string) error {
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}); err != nil {
		return fmt.Errorf("selecting %q: %w", value, err)
	}
	return nil
}

// Check ticks a checkbox or radio button
func (p *Page) Check(loc playwright.Locator) error {
	if err := loc.Check(); err != nil {
		return fmt.Errorf("checking element: %w", err)
	}
	return nil
}

// TopModal returns an XPath selecting the open modal drawn on top
func (p *Page) TopModal(timeout time.Duration) (string, error) {
	modals := p.pw.Locator(ModalSelector)
	if err := p.WaitVisible(modals.First(), timeout); err != nil {
		return "", fmt.Errorf("no modal open: %w", err)
	}

	n, err := modals.Count()
	if err != nil {
		return "", fmt.Errorf("counting modals: %w", err)
	}

	zs := make([]int, n)
	for i := 0; i < n; i++ {
		zs[i] = -1
		m := modals.Nth(i)
		if err := p.waitFor(m, playwright.WaitForSelectorStateVisible, 2*time.Second); err != nil {
			continue
		}
		v, err := m.Evaluate("el => parseInt(window.getComputedStyle(el).zIndex) || 0", nil)
		if err != nil {
			p.logger.Debug("Reading modal z-index failed", zap.Int("modal", i+1), zap.Error(err))
			continue
		}
		zs[i] = toInt(v)
	}

	return fmt.Sprintf("(%s)[%d]", ModalSelector, topIndex(zs)+1), nil
}

// InModal locates selector inside the top modal
func (p *Page) InModal(selector string) (playwright.Locator, error) {
	modal, err := p.TopModal(10 * time.Second)
	if err != nil {
		return nil, err
	}
	return p.pw.Locator(modal + selector), nil
}

// topIndex returns the index of the highest z-index; the first one wins ties
func topIndex(zs []int) int {
	best, idx := -1, 0
	for i, z := range zs {
		if z > best {
			best, idx = z, i
		}
	}
	return idx
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Screenshot writes a full-page PNG to path
func (p *Page) Screenshot(path string) error {
	if _, err := p.pw.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("taking screenshot: %w", err)
	}
	return nil
}

// Close closes the page and its browser context
func (p *Page) Close() error {
	if err := p.pw.Close(); err != nil {
		p.ctx.Close()
		return fmt.Errorf("closing page: %w", err)
	}
	return p.ctx.Close()
}
