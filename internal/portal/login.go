package portal

import (
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/testforge/portalsuite/internal/browser"
	"github.com/testforge/portalsuite/internal/config"
)

// Credentials used to sign in to both portals
type Credentials struct {
	Username string
	Password string
}

// CredentialsFrom reads the shared test account from configuration
func CredentialsFrom(cfg config.PortalConfig) Credentials {
	return Credentials{Username: cfg.Username, Password: cfg.Password}
}

type loginForm struct {
	p        *browser.Page
	username playwright.Locator
	password playwright.Locator
	submit   playwright.Locator
}

func newLoginForm(p *browser.Page) loginForm {
	pw := p.PW()
	return loginForm{
		p:        p,
		username: pw.GetByRole(*playwright.AriaRoleTextbox, roleName("Email")),
		password: pw.GetByRole(*playwright.AriaRoleTextbox, roleName("Senha")),
		submit:   pw.GetByRole(*playwright.AriaRoleButton, roleName("Entrar")),
	}
}

func (f loginForm) signIn(c Credentials) error {
	if c.Username == "" || c.Password == "" {
		return errors.New("test credentials are not configured")
	}
	if err := f.p.Fill(f.username, c.Username); err != nil {
		return err
	}
	if err := f.p.Press(f.username, "Enter"); err != nil {
		return err
	}
	if err := f.p.Fill(f.password, c.Password); err != nil {
		return err
	}
	return f.p.Click(f.submit)
}

// Portal1Login signs in to the legacy portal through its single sign-on
// button
type Portal1Login struct {
	legacyPage
	form     loginForm
	baseURL  string
	sso      playwright.Locator
	mainMenu playwright.Locator
}

func NewPortal1Login(p *browser.Page, baseURL string) *Portal1Login {
	pw := p.PW()
	return &Portal1Login{
		legacyPage: newLegacyPage(p),
		form:       newLoginForm(p),
		baseURL:    baseURL,
		sso:        pw.GetByRole(*playwright.AriaRoleButton, roleName("Entrar com NsApps")),
		mainMenu:   pw.Locator(".v-list.pt-0.v-list--dense.theme--light"),
	}
}

// Login opens the portal, signs in and waits for the main menu
func (l *Portal1Login) Login(c Credentials) error {
	if err := l.p.Goto(l.baseURL); err != nil {
		return err
	}
	if err := l.p.Click(l.sso); err != nil {
		return err
	}
	if err := l.form.signIn(c); err != nil {
		return err
	}
	if err := l.recoverFrozenScreen(); err != nil {
		return err
	}
	return l.p.WaitVisible(l.mainMenu, 0)
}

// Portal2Login signs in to the modal-based portal
type Portal2Login struct {
	modalPage
	form    loginForm
	baseURL string
	welcome playwright.Locator
}

func NewPortal2Login(p *browser.Page, baseURL string) *Portal2Login {
	return &Portal2Login{
		modalPage: newModalPage(p),
		form:      newLoginForm(p),
		baseURL:   baseURL,
		welcome:   p.PW().Locator("span.subheader-title", playwright.PageLocatorOptions{HasText: "Seja bem-vindo"}),
	}
}

// Login opens the portal, signs in and waits for the welcome header
func (l *Portal2Login) Login(c Credentials) error {
	if err := l.p.Goto(l.baseURL); err != nil {
		return err
	}
	if err := l.form.signIn(c); err != nil {
		return err
	}
	return l.p.WaitVisible(l.welcome, 100*time.Second)
}
