package portal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/testforge/portalsuite/internal/browser"
)

// ContainerSource supplies container numbers not yet known to portal 2
type ContainerSource interface {
	FirstFree(ctx context.Context) (string, bool, error)
}

// ErrIntegrationTimeout is returned when a booking never shows up in portal 2
var ErrIntegrationTimeout = errors.New("maximum wait time for integration exceeded")

const integrationPolls = 10

const sealAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomCode returns n random uppercase letters and digits
func RandomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = sealAlphabet[rand.Intn(len(sealAlphabet))]
	}
	return string(b)
}

// CargoInput is the data the cargo is completed with
type CargoInput struct {
	CargoType     string
	Recipient     string
	Tare          string
	ContainerType string
	DocumentType  string
	Description   string
}

// DefaultCargo is the cargo the suite completes for every booking
func DefaultCargo() CargoInput {
	return CargoInput{
		CargoType:     "carga geral",
		Recipient:     "SAMPLE RECIPIENT",
		Tare:          "3880",
		ContainerType: "55",
		DocumentType:  "Outros",
		Description:   "Automated suite cargo",
	}
}

// Knockout-bound controls of portal 2 only expose their data-bind attribute
const (
	searchInModal         = `//button[@data-bind="click: Pesquisar.eventClick, attr : { id: Pesquisar.id }"]`
	selectLink            = `//a[normalize-space(.)='Selecionar']`
	descriptionInput      = `//input[@data-bind="value: Descricao.val, enable: true, valueUpdate: 'afterkeydown', attr: { 'aria-label': Descricao.text, maxlength: Descricao.maxlength, id: Descricao.id, name: Descricao.id }"]`
	integrationCodeInput  = `//*[@data-bind="value: CodigoIntegracao.val, enable: true, valueUpdate: 'afterkeydown', attr: { 'aria-label': CodigoIntegracao.text, maxlength: CodigoIntegracao.maxlength, id: CodigoIntegracao.id, name: CodigoIntegracao.id }"]`
	addContainerButton    = `//*[@data-bind="click: Adicionar.eventClick, visible: Adicionar.visible, text: Adicionar.text, attr: { id : Adicionar.id}"]`
	orderTareInput        = `//*[@data-bind="value: TaraContainer.val, valueUpdate: 'afterkeydown', attr: { maxlength: TaraContainer.maxlength, id : TaraContainer.id}"]`
	addEnabledButton      = `//*[@data-bind="click: Adicionar.eventClick, visible: Adicionar.visible, enable: Adicionar.enable, text: Adicionar.text, attr: { id : Adicionar.id}"]`
	invoiceDescription    = `//*[@data-bind="css: Descricao.requiredClass, value: Descricao.val, attr: { maxlength: Descricao.maxlength, id : Descricao.id}, enable: Descricao.enable"]`
	invoiceRecipientName  = `//*[@data-bind="value: Nome.val, enable: true, valueUpdate: 'afterkeydown', attr: { 'aria-label': Nome.text, maxlength: Nome.maxlength, id: Nome.id, name: Nome.id }"]`
	invoiceRecipientFind  = `//*[@data-bind="attr: { id: Destinatario.idBtnSearch}, enable: Destinatario.enable"]`
	sealInputTemplate     = `//*[@data-bind="value: LacreContainer%[1]s.val, enable: LacreContainer%[1]s.enable, valueUpdate: 'afterkeydown', attr: { maxlength: LacreContainer%[1]s.maxlength, id : LacreContainer%[1]s.id}"]`
	recipientRowTemplate  = `(//tr[1][td[2]//span[contains(normalize-space(.), '%s')]]/td[last()])[%d]`
	containerTypeTemplate = `//tr[td[normalize-space()='%s']]//a[normalize-space(text())='Selecionar']`
)

// CargoPage completes the cargo created by the booking integration
type CargoPage struct {
	modalPage
	baseURL string

	search, filters, booking, searchButton, refresh playwright.Locator
	firstStep, cargoType, saveStep                  playwright.Locator
	secondStep, editManually                        playwright.Locator
	recipient, recipientName, findPeople            playwright.Locator
	findContainer, newContainer, containerNumber    playwright.Locator
	containerTare, findContainerType, searchTypes   playwright.Locator
	addDocument, documentType, addInvoice           playwright.Locator
	invoiceNumber, invoiceValue, invoiceWeight      playwright.Locator
	invoiceTitle, closeInvoice, confirmDocuments    playwright.Locator
	yes, thirdStep, issue                           playwright.Locator
}

func NewCargoPage(p *browser.Page, baseURL string) *CargoPage {
	pw := p.PW()
	order := pw.Locator("#knoutModalAdicionarPedidoVinculado")
	return &CargoPage{
		modalPage: newModalPage(p),
		baseURL:   baseURL,

		search:       pw.GetByRole(*playwright.AriaRoleSearchbox, roleName("Pesquisar um Formulário")),
		filters:      pw.Locator(`button[data-bind="click: ExibirFiltros.eventClick, id: ExibirFiltros.id"]`),
		booking:      pw.GetByRole(*playwright.AriaRoleTextbox, roleName("Nº do Booking:")),
		searchButton: pw.Locator(`(//button[@data-bind="click: Pesquisar.eventClick, attr: { id: Pesquisar.id}"])[1]`),
		refresh:      pw.GetByRole(*playwright.AriaRoleButton, roleName(" Atualizar as cargas")),

		firstStep: pw.Locator("#tabTMS").First(),
		cargoType: pw.GetByRole(*playwright.AriaRoleTextbox, roleName("*Tipo de Carga:")).First(),
		saveStep:  pw.GetByRole(*playwright.AriaRoleButton, roleName("Salvar")),

		secondStep:   pw.Locator(`//li[@data-bind="visible : EtapaNotaFiscal.visible"]`).First(),
		editManually: pw.Locator(`//button[@onclick="EditarPedidoAdicionadoManualmente(event, 0)"]`),

		recipient:     order.Locator(`//button[@data-bind="attr: { id: Destinatario.idBtnSearch}"]`),
		recipientName: pw.Locator(`//*[@data-bind="value: Nome.val, enable: true, valueUpdate: 'afterkeydown', attr: { 'aria-label': Nome.text, maxlength: Nome.maxlength, id: Nome.id, name: Nome.id }"]`),
		findPeople:    pw.Locator(`//div[@class="modal-content"][div[h4[normalize-space(.)='Pesquisar Pessoas']]]//*[@data-bind="click: Pesquisar.eventClick, attr : { id: Pesquisar.id }"]`),

		findContainer:     order.Locator(`//*[@data-bind="attr: { id: Container.idBtnSearch}, enable: Container.enable"]`),
		newContainer:      pw.Locator(`//*[@data-bind="click: AdicionarContainer.eventClick, attr : { id: AdicionarContainer.id }"]`),
		containerNumber:   pw.Locator(`//*[@data-bind="value: Numero.val, valueUpdate: 'afterkeydown', attr: { maxlength: Numero.maxlength, id : Numero.id}"]`),
		containerTare:     pw.Locator(`//*[@data-bind="value: Tara.val, valueUpdate: 'afterkeydown', attr: { maxlength: Tara.maxlength, id : Tara.id}"]`),
		findContainerType: pw.Locator(`//*[@data-bind="attr: { id: TipoContainer.idBtnSearch}"]`),
		searchTypes:       pw.Locator(`//div[@class="modal-content"][div[contains(normalize-space(.), 'Busca de Tipos de Container')]]//button[@data-bind="click: Pesquisar.eventClick, attr : { id: Pesquisar.id }"]`),

		addDocument:  pw.Locator(`//*[@data-bind="click: ExibirMais.eventClick, enable: Pedido.enable, visible: ExibirMais.visible, attr: { value: ExibirMais.text, id : ExibirMais.id}"]`),
		documentType: pw.Locator(`//*[@data-bind="options: TipoDocumento.options, optionsText: 'text', optionsValue: 'value', value: TipoDocumento.val, attr: { id : TipoDocumento.id}, event: {change: TipoDocumento.eventChange}, enable: Pedido.enable"]`),
		addInvoice:   pw.Locator("(" + addEnabledButton + ")[1]"),

		invoiceNumber:    pw.Locator(`//*[@data-bind="css: Numero.requiredClass, value: Numero.val, attr: { maxlength: Numero.maxlength, id : Numero.id}, enable: Numero.enable"]`),
		invoiceValue:     pw.Locator(`//*[@data-bind="value: Valor.val, attr: { maxlength: Valor.maxlength, id : Valor.id}, enable: Valor.enable"]`),
		invoiceWeight:    pw.Locator(`//*[@data-bind="css: Peso.requiredClass, value: Peso.val, attr: { maxlength: Peso.maxlength, id : Peso.id}, enable: Peso.enable"]`),
		invoiceTitle:     pw.Locator("#TituloNotasCarga"),
		closeInvoice:     pw.Locator(`//div[@id='divModalAdicionarNotasCarga']//button[@class="btn-close"]`),
		confirmDocuments: pw.Locator(`//button[@data-bind="visible: (ConfirmarEnvioDocumentos.visible() && Pedido.enable()), attr: { id: ConfirmarEnvioDocumentos.id}, enable: ConfirmarEnvioDocumentos.enable, click: ConfirmarEnvioDocumentos.eventClick"]`),

		yes:       pw.GetByRole(*playwright.AriaRoleButton, roleName("Sim")),
		thirdStep: pw.Locator(`//*[@data-bind="attr: {id : EtapaFreteTMS.idTab }, click : EtapaFreteTMS.eventClick"]`).First(),
		issue:     pw.Locator(`(//*[@data-bind="attr: { id: AutorizarEmissaoDocumentos.id}, enable: AutorizarEmissaoDocumentos.enable, visible:  AutorizarEmissaoDocumentos.visibleBTN, click: AutorizarEmissaoDocumentos.eventClick"])[1]`),
	}
}

// Open navigates to the cargo screen
func (c *CargoPage) Open() error {
	if err := c.p.Goto(c.baseURL + "#Cargas/Carga"); err != nil {
		return err
	}
	c.waitProcessing()
	first := c.p.PW().GetByRole(*playwright.AriaRoleListitem).Filter(playwright.LocatorFilterOptions{HasText: "Primeiro"})
	return c.p.WaitAttached(first, c.p.Timeouts().Navigation)
}

// FindBooking filters the cargo list by booking number and waits for the
// integration to deliver it
func (c *CargoPage) FindBooking(booking string) error {
	if err := c.p.Click(c.filters); err != nil {
		return err
	}
	if err := c.p.Fill(c.booking, booking); err != nil {
		return err
	}
	if err := c.p.Click(c.searchButton); err != nil {
		return err
	}
	return c.waitForIntegration()
}

// waitForIntegration polls for the first step tab, refreshing the cargo list
// between attempts
func (c *CargoPage) waitForIntegration() error {
	for i := 0; i < integrationPolls; i++ {
		if c.p.WaitVisible(c.firstStep, time.Minute) == nil {
			return nil
		}
		if err := c.p.Click(c.refresh); err != nil {
			return err
		}
	}
	return ErrIntegrationTimeout
}

// CompleteTransport fills the first step
func (c *CargoPage) CompleteTransport(in CargoInput) error {
	if err := c.p.Click(c.firstStep); err != nil {
		return err
	}
	if err := c.cargoType.Clear(); err != nil {
		return fmt.Errorf("clearing cargo type: %w", err)
	}
	if err := c.p.Press(c.cargoType, "Tab"); err != nil {
		return err
	}
	if err := c.fillInModal(descriptionInput, in.CargoType); err != nil {
		return err
	}
	if err := c.clickInModal(searchInModal); err != nil {
		return err
	}
	if err := c.clickInModal(selectLink); err != nil {
		return err
	}
	if err := c.p.Click(c.saveStep); err != nil {
		return err
	}
	return c.p.Click(c.refresh)
}

func (c *CargoPage) pickRecipient(name string, nth int) error {
	row := c.p.PW().Locator(fmt.Sprintf(recipientRowTemplate, name, nth))
	return c.p.Click(row)
}

// CompleteOrder edits the order of the second step: recipient, container
// and seals
func (c *CargoPage) CompleteOrder(ctx context.Context, in CargoInput, containers ContainerSource) error {
	steps := []func() error{
		func() error { return c.p.Click(c.secondStep) },
		func() error { return c.p.Click(c.editManually) },
		func() error { return c.p.Click(c.recipient) },
		func() error { return c.p.Fill(c.recipientName, in.Recipient) },
		func() error { return c.p.Click(c.findPeople) },
		func() error { return c.pickRecipient(in.Recipient, 1) },
		func() error { return c.p.Click(c.findContainer) },
		func() error { return c.p.Click(c.newContainer) },
		func() error { return c.fillContainerNumber(ctx, containers) },
		func() error { return c.p.Fill(c.containerTare, in.Tare) },
		func() error { return c.p.Click(c.findContainerType) },
		func() error { return c.fillInModal(integrationCodeInput, in.ContainerType) },
		func() error { return c.p.Click(c.searchTypes) },
		func() error {
			return c.p.Click(c.p.PW().Locator(fmt.Sprintf(containerTypeTemplate, in.ContainerType)))
		},
		func() error { return c.clickInModal(addContainerButton) },
		func() error { return c.fillInModal(orderTareInput, in.Tare) },
	}
	for _, seal := range []string{"Um", "Dois", "Tres"} {
		sel := fmt.Sprintf(sealInputTemplate, seal)
		steps = append(steps, func() error { return c.fillInModal(sel, RandomCode(15)) })
	}
	steps = append(steps, func() error { return c.clickInModal(addEnabledButton) })

	return runSteps(steps)
}

func (c *CargoPage) fillContainerNumber(ctx context.Context, containers ContainerSource) error {
	if containers == nil {
		return errors.New("no container database configured")
	}
	number, ok, err := containers.FirstFree(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no free container number available")
	}
	return c.p.Fill(c.containerNumber, number)
}

// fillInvoiceField fills a numeric field and blurs it so the mask applies
func (c *CargoPage) fillInvoiceField(loc playwright.Locator, value string) error {
	if err := c.p.Fill(loc, value); err != nil {
		return err
	}
	if err := c.p.Click(c.invoiceTitle); err != nil {
		return err
	}
	return c.p.Click(loc)
}

// AddInvoice attaches a document with random number, value and weight
func (c *CargoPage) AddInvoice(in CargoInput) error {
	value := strconv.FormatFloat(1+rand.Float64()*9999, 'f', 2, 64)
	weight := strconv.FormatFloat(1+rand.Float64()*9999, 'f', 2, 64)

	return runSteps([]func() error{
		func() error { return c.p.Click(c.addDocument) },
		func() error { return c.p.Select(c.documentType, in.DocumentType) },
		func() error { return c.p.Click(c.addInvoice) },
		func() error { return c.fillInModal(invoiceDescription, in.Description) },
		func() error { return c.fillInvoiceField(c.invoiceNumber, strconv.Itoa(1+rand.Intn(10000))) },
		func() error { return c.fillInvoiceField(c.invoiceValue, value) },
		func() error { return c.fillInvoiceField(c.invoiceWeight, weight) },
		func() error { return c.clickInModal(invoiceRecipientFind) },
		func() error { return c.fillInModal(invoiceRecipientName, in.Recipient) },
		func() error { return c.clickInModal(searchInModal) },
		func() error { return c.pickRecipient(in.Recipient, 2) },
		func() error { return c.clickInModal(addEnabledButton) },
		func() error { return c.p.Click(c.closeInvoice) },
		func() error { return c.p.Click(c.confirmDocuments) },
		func() error { return c.p.Click(c.yes) },
	})
}

// AuthorizeIssue moves the cargo to document issuing
func (c *CargoPage) AuthorizeIssue() error {
	return runSteps([]func() error{
		func() error { return c.p.Click(c.thirdStep) },
		func() error { return c.p.Click(c.issue) },
		func() error { return c.p.Click(c.yes) },
	})
}

func runSteps(steps []func() error) error {
	for i, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
