// Package portal holds the page objects and scenarios for the two portals
// under test.
package portal

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/testforge/portalsuite/internal/browser"
)

// Typing delays for fields that search as the user types
const (
	typeFast = 50 * time.Millisecond
	typeSlow = 100 * time.Millisecond
)

func roleName(name string) playwright.PageGetByRoleOptions {
	return playwright.PageGetByRoleOptions{Name: name}
}

func frameRole(name string, exact bool) playwright.FrameLocatorGetByRoleOptions {
	return playwright.FrameLocatorGetByRoleOptions{Name: name, Exact: playwright.Bool(exact)}
}

// legacyPage is the frame-based layout of portal 1
type legacyPage struct {
	p      *browser.Page
	frame  playwright.FrameLocator
	search playwright.FrameLocator

	overlay playwright.Locator
	frozen  playwright.Locator
}

func newLegacyPage(p *browser.Page) legacyPage {
	pw := p.PW()
	frame := pw.FrameLocator(`iframe[name="frame"]`)
	return legacyPage{
		p:       p,
		frame:   frame,
		search:  frame.FrameLocator("#ISelGer"),
		overlay: frame.Locator("#DivProgressbar"),
		frozen:  pw.GetByRole(*playwright.AriaRoleHeading, roleName("Nenhum favorito ainda")),
	}
}

// waitLoaded waits for the loading overlay inside the main frame
func (l legacyPage) waitLoaded() error {
	return l.p.WaitOverlay(l.overlay)
}

// recoverFrozenScreen reloads when the portal shows its empty favourites
// screen instead of the dashboard
func (l legacyPage) recoverFrozenScreen() error {
	if l.p.IsVisibleWithin(l.frozen, 0) {
		return l.p.Reload()
	}
	return nil
}

// pickSearchResult clicks an exact match in the search popup frame. The
// popup closes by itself for unique matches, so a missing cell is not an
// error.
func (l legacyPage) pickSearchResult(name string, waitLoad bool) {
	cell := l.search.GetByRole(*playwright.AriaRoleCell, frameRole(name, true)).First()
	if l.p.WaitVisible(cell, 10*time.Second) != nil {
		return
	}
	if l.p.Click(cell) != nil {
		return
	}
	if waitLoad {
		l.waitLoaded()
	}
}

// sidebarSearch opens a menu entry through the portal's search box
func (l legacyPage) sidebarSearch(term string, menu, entry playwright.Locator) error {
	box := l.p.PW().GetByRole(*playwright.AriaRoleTextbox, roleName("Procurar"))
	if err := l.p.Type(box, term, typeSlow); err != nil {
		return err
	}
	if err := l.p.Click(menu); err != nil {
		return err
	}
	return l.p.Click(entry)
}

// modalPage is the single-page layout of portal 2
type modalPage struct {
	p          *browser.Page
	processing playwright.Locator
}

func newModalPage(p *browser.Page) modalPage {
	return modalPage{
		p:          p,
		processing: p.PW().Locator(`//div[@class="blockUI blockMsg blockPage"]`),
	}
}

// waitProcessing waits for the blocking "processing" message, if any
func (m modalPage) waitProcessing() {
	m.p.WaitProcessing(m.processing)
}

func (m modalPage) clickInModal(selector string) error {
	loc, err := m.p.InModal(selector)
	if err != nil {
		return err
	}
	return m.p.Click(loc)
}

func (m modalPage) fillInModal(selector, value string) error {
	loc, err := m.p.InModal(selector)
	if err != nil {
		return err
	}
	return m.p.Fill(loc, value)
}
