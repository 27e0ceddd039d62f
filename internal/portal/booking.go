package portal

import (
	"context"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/testforge/portalsuite/internal/browser"
)

var cnpjValue = regexp.MustCompile(`^\d{14}$`)

// BookingInput is the data a booking is created with
type BookingInput struct {
	Proposal            string
	VesselVoyage        string
	OriginPort          string
	OriginTerminal      string
	DestinationPort     string
	DestinationTerminal string
	ContainerType       string
	Containers          string
}

// DefaultBooking is the booking the suite creates from a proposal
func DefaultBooking(proposal string) BookingInput {
	return BookingInput{
		Proposal:            proposal,
		VesselVoyage:        "EXEMPLO_Navio/VOYAGE",
		OriginPort:          "412",
		OriginTerminal:      "8434",
		DestinationPort:     "409",
		DestinationTerminal: "617",
		ContainerType:       "55",
		Containers:          "4",
	}
}

// BookingPage creates bookings in portal 1
type BookingPage struct {
	legacyPage

	proposal, shipperCNPJ, vessel        playwright.Locator
	originPort, originTerminal           playwright.Locator
	destinationPort, destinationTerminal playwright.Locator
	containerType, containers            playwright.Locator
	calculate, save                      playwright.Locator
	created                              playwright.Locator
	number                               playwright.Locator
}

func NewBookingPage(p *browser.Page) *BookingPage {
	l := newLegacyPage(p)
	f := l.frame
	return &BookingPage{
		legacyPage: l,

		proposal:            f.Locator(`input[name="txtTPC_Id_Sistema_Externo"]`),
		shipperCNPJ:         f.Locator(`input[name="txtcgc_embarcador"]`),
		vessel:              f.Locator(`input[name="txtdesc_viagem_navio"]`),
		originPort:          f.Locator(`select[name="txtporto_origem_id"]`),
		originTerminal:      f.Locator(`select[name="txtTerminalCheioOrigemID"]`),
		destinationPort:     f.Locator(`select[name="txtporto_destino_id"]`),
		destinationTerminal: f.Locator(`select[name="txtTerminalCheioDestinoID"]`),
		containerType:       f.Locator(`select[name="txttab_tipo_container_id"]`),
		containers:          f.Locator(`input[name="txtqtde_container"]`),
		calculate:           f.GetByRole(*playwright.AriaRoleButton, frameRole("Calcular", false)),
		save:                f.GetByRole(*playwright.AriaRoleButton, frameRole("Gravar", false)),
		created:             f.GetByText("Inclusão do booking realizada"),
		number:              f.Locator(`input[name="txtnum_booking"]`),
	}
}

// Open navigates to the booking form
func (b *BookingPage) Open() error {
	if err := b.p.Reload(); err != nil {
		return err
	}
	pw := b.p.PW()
	menu := pw.GetByText("Customer Service", playwright.PageGetByTextOptions{Exact: playwright.Bool(true)})
	entry := pw.Locator("a").Filter(playwright.LocatorFilterOptions{HasText: regexp.MustCompile(`^Booking$`)})
	if err := b.sidebarSearch("booking", menu, entry); err != nil {
		return err
	}
	return b.p.WaitVisible(b.proposal, 0)
}

// Fill enters the booking data. Typing the proposal number loads the
// shipper, which is awaited before anything else is touched.
func (b *BookingPage) Fill(ctx context.Context, in BookingInput) error {
	if err := b.p.Type(b.proposal, in.Proposal, typeFast); err != nil {
		return err
	}
	if err := b.p.WaitValue(ctx, b.shipperCNPJ, cnpjValue, b.p.Timeouts().Navigation); err != nil {
		return err
	}
	if err := b.p.Type(b.vessel, in.VesselVoyage, typeSlow); err != nil {
		return err
	}
	for _, s := range []struct {
		loc   playwright.Locator
		value string
	}{
		{b.originPort, in.OriginPort},
		{b.originTerminal, in.OriginTerminal},
		{b.destinationPort, in.DestinationPort},
		{b.destinationTerminal, in.DestinationTerminal},
		{b.containerType, in.ContainerType},
	} {
		if err := b.p.Select(s.loc, s.value); err != nil {
			return err
		}
	}
	// container type selection triggers a slow postback
	b.p.Pause(5 * time.Second)
	return b.p.Type(b.containers, in.Containers, typeFast)
}

// Save calculates the freight, saves the booking and returns its number
func (b *BookingPage) Save() (string, error) {
	if err := b.p.Click(b.calculate); err != nil {
		return "", err
	}
	b.p.Pause(2 * time.Second)
	if err := b.p.Click(b.save); err != nil {
		return "", err
	}
	if err := b.p.WaitVisible(b.created, 0); err != nil {
		return "", err
	}
	if err := b.p.Click(b.created); err != nil {
		return "", err
	}
	return b.p.Value(b.number)
}
