package portal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/testforge/portalsuite/internal/browser"
)

var proposalBanner = regexp.MustCompile(`^PC\s`)

// ParseProposalNumber extracts the number from a "PC <number> ..." banner
func ParseProposalNumber(text string) (string, error) {
	parts := strings.Fields(text)
	if len(parts) > 1 && parts[0] == "PC" {
		return parts[1], nil
	}
	return "", fmt.Errorf("no proposal number in %q", text)
}

// ProposalInput is the data a commercial proposal is created with
type ProposalInput struct {
	CNPJ             string `json:"cnpj"`
	Client           string `json:"cliente"`
	Contact          string `json:"contato"`
	OperationPoint   string `json:"ponto_operacao"`
	ProposalType     string `json:"tipo_proposta"`
	TransportService string `json:"servico_transporte"`
	ProductFamily    string `json:"familia_produto"`
	FreightPayment   string `json:"tipo_pagamento"`

	OriginPort      string `json:"porto_origem"`
	DestinationPort string `json:"porto_destino"`
	ContainerType   string `json:"tipo_container"`
	EstimatedWeight string `json:"peso_estimado"`
	Pickups         string `json:"num_coletas"`

	Responsible      string `json:"responsavel"`
	ResponsibleMatch string `json:"responsavel_lista"`
	Containers       string `json:"qtde_containers"`
}

// ProposalPage creates commercial proposals in portal 1
type ProposalPage struct {
	legacyPage

	cnpj, contact                                  playwright.Locator
	operationPoint, proposalType, transportService playwright.Locator
	chargeType, productFamily, freightPayment      playwright.Locator
	save, saveExact                                playwright.Locator
	banner                                         playwright.Locator

	servicesLink, matrixLink, acceptanceLink playwright.Locator
	portToPort                               playwright.Locator
	servicesSaved                            playwright.Locator

	originPort, destinationPort, containerType playwright.Locator
	weight, pickups                            playwright.Locator
	matrixSaved                                playwright.Locator

	recalculate, firstLeg, back playwright.Locator

	responsible, containers playwright.Locator
	accepted                playwright.Locator
}

func NewProposalPage(p *browser.Page) *ProposalPage {
	l := newLegacyPage(p)
	f := l.frame
	return &ProposalPage{
		legacyPage: l,

		cnpj:             f.Locator(`input[name="txtCNPJ"]`),
		contact:          f.Locator(`input[name="txtNome_Contato"]`),
		operationPoint:   f.Locator(`select[name="cboPonto_Operacao"]`),
		proposalType:     f.Locator(`select[name="cboTipo_Proposta"]`),
		transportService: f.Locator(`select[name="cboTipoServicoTransporte"]`),
		chargeType:       f.Locator(`input[name="optTipo_Cobranca_aux"]`).Nth(1),
		productFamily:    f.Locator(`select[name="txtFAMILIA_PRODUTO_ID"]`),
		freightPayment:   f.Locator("#cboTAB_TIPO_PAGTO_FRETE_CLI"),
		save:             f.GetByRole(*playwright.AriaRoleButton, frameRole("Gravar", false)),
		saveExact:        f.GetByRole(*playwright.AriaRoleButton, frameRole("Gravar", true)),
		banner:           f.Locator("font", playwright.FrameLocatorLocatorOptions{HasText: proposalBanner}),

		servicesLink:   f.GetByRole(*playwright.AriaRoleLink, frameRole("Serviços Agregados", false)),
		matrixLink:     f.GetByRole(*playwright.AriaRoleLink, frameRole("Matriz de Transporte", false)),
		acceptanceLink: f.GetByRole(*playwright.AriaRoleLink, frameRole("Aceitação", false)),
		portToPort:     f.GetByRole(*playwright.AriaRoleCell, frameRole("Porto a Porto", false)).Locator("#optTipo_Modal"),
		servicesSaved:  f.GetByText("Serviços Agregados Gravados"),

		originPort:      f.Locator("#cboPorto_Origem"),
		destinationPort: f.Locator("#cboPorto_Destino"),
		containerType:   f.Locator(`select[name="cboTab_Tipo_Container"]`),
		weight:          f.Locator(`input[name="txtPeso_Estimado"]`),
		pickups:         f.Locator(`input[name="txtNum_Coletas"]`),
		matrixSaved:     f.GetByText("Proposta Origem/Destino Inclu"),

		recalculate: f.GetByRole(*playwright.AriaRoleButton, frameRole("Recalcular", false)),
		firstLeg:    f.Locator("#chk_Trechos0"),
		back:        f.GetByRole(*playwright.AriaRoleButton, frameRole("Voltar", false)),

		responsible: f.Locator(`input[name="txtResponsavel_Cliente"]`),
		containers:  f.Locator(`input[name="txtQtde_Containers"]`),
		accepted:    f.GetByText("Gravação efetuada com sucesso"),
	}
}

// Open navigates to the commercial proposal form
func (pp *ProposalPage) Open() error {
	pw := pp.p.PW()
	menu := pw.GetByText("Comercial", playwright.PageGetByTextOptions{Exact: playwright.Bool(true)})
	entry := pw.Locator("a").Filter(playwright.LocatorFilterOptions{HasText: "Proposta Comercial"})
	if err := pp.sidebarSearch("proposta", menu, entry); err != nil {
		return err
	}
	return pp.p.WaitVisible(pp.cnpj, 0)
}

// Create fills the header, saves it and returns the proposal number
func (pp *ProposalPage) Create(in ProposalInput) (string, error) {
	if err := pp.p.Type(pp.cnpj, in.CNPJ, typeSlow); err != nil {
		return "", err
	}
	pp.pickSearchResult(in.Client, false)

	if err := pp.p.Type(pp.contact, in.Contact, typeSlow); err != nil {
		return "", err
	}
	selects := []struct {
		loc   playwright.Locator
		value string
	}{
		{pp.operationPoint, in.OperationPoint},
		{pp.proposalType, in.ProposalType},
		{pp.transportService, in.TransportService},
	}
	for _, s := range selects {
		if err := pp.p.Select(s.loc, s.value); err != nil {
			return "", err
		}
	}
	if err := pp.p.Check(pp.chargeType); err != nil {
		return "", err
	}
	if err := pp.p.Select(pp.productFamily, in.ProductFamily); err != nil {
		return "", err
	}
	if err := pp.p.Select(pp.freightPayment, in.FreightPayment); err != nil {
		return "", err
	}

	pp.p.Pause(2 * time.Second)
	if err := pp.p.Click(pp.save); err != nil {
		return "", err
	}
	if err := pp.p.WaitVisible(pp.banner, 0); err != nil {
		return "", err
	}
	text, err := pp.p.InnerText(pp.banner)
	if err != nil {
		return "", err
	}
	return ParseProposalNumber(text)
}

// PortToPortServices selects port-to-port transport and saves the services tab
func (pp *ProposalPage) PortToPortServices() error {
	if err := pp.p.Click(pp.servicesLink); err != nil {
		return err
	}
	if err := pp.p.Check(pp.portToPort); err != nil {
		return err
	}
	pp.p.Pause(2 * time.Second)
	if err := pp.p.Click(pp.save); err != nil {
		return err
	}
	return pp.p.WaitVisible(pp.servicesSaved, 0)
}

// PortToPortMatrix fills the transport matrix for a port-to-port proposal
func (pp *ProposalPage) PortToPortMatrix(in ProposalInput) error {
	if err := pp.p.Click(pp.matrixLink); err != nil {
		return err
	}
	for _, s := range []struct {
		loc   playwright.Locator
		value string
	}{
		{pp.originPort, in.OriginPort},
		{pp.destinationPort, in.DestinationPort},
		{pp.containerType, in.ContainerType},
	} {
		if err := pp.p.Select(s.loc, s.value); err != nil {
			return err
		}
	}
	if err := pp.p.Fill(pp.weight, in.EstimatedWeight); err != nil {
		return err
	}
	if err := pp.p.Fill(pp.pickups, in.Pickups); err != nil {
		return err
	}
	pp.p.Pause(2 * time.Second)
	if err := pp.p.Click(pp.save); err != nil {
		return err
	}
	return pp.p.WaitVisible(pp.matrixSaved, 0)
}

// Recalculate runs the two-pass freight calculation and returns to the form
func (pp *ProposalPage) Recalculate() error {
	if err := pp.p.Click(pp.recalculate); err != nil {
		return err
	}
	if err := pp.p.WaitVisible(pp.firstLeg, 0); err != nil {
		return err
	}
	if err := pp.p.Check(pp.firstLeg); err != nil {
		return err
	}
	if err := pp.p.Click(pp.recalculate); err != nil {
		return err
	}
	if err := pp.p.WaitVisible(pp.back, 0); err != nil {
		return err
	}
	return pp.p.Click(pp.back)
}

// Accept records the client's acceptance of the proposal
func (pp *ProposalPage) Accept(in ProposalInput) error {
	if err := pp.p.Click(pp.acceptanceLink); err != nil {
		return err
	}
	if err := pp.p.Type(pp.responsible, in.Responsible, typeFast); err != nil {
		return err
	}
	pp.pickSearchResult(in.ResponsibleMatch, false)
	if err := pp.p.Type(pp.containers, in.Containers, typeFast); err != nil {
		return err
	}
	if err := pp.p.Click(pp.saveExact); err != nil {
		return err
	}
	return pp.p.WaitVisible(pp.accepted, 0)
}
