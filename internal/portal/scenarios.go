package portal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/browser"
	"github.com/testforge/portalsuite/internal/config"
	"github.com/testforge/portalsuite/internal/runner"
)

// Scenario groups, used as the class name in results
const (
	GroupProposal = "portal.proposal"
	GroupCargo    = "portal.cargo"
)

// KeyProposalInput holds the ProposalInput the proposal scenario uses
const KeyProposalInput = "proposta"

// Suite builds the scenarios run against the two portals
type Suite struct {
	portals    config.PortalConfig
	data       *DataStore
	containers ContainerSource
	logger     *zap.Logger
}

// NewSuite creates a Suite. containers may be nil when the fixture
// databases are not configured; the cargo scenario then fails.
func NewSuite(portals config.PortalConfig, data *DataStore, containers ContainerSource, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{portals: portals, data: data, containers: containers, logger: logger}
}

// Cases returns the scenarios in execution order. Each one depends on data
// recorded by the previous.
func (s *Suite) Cases() []runner.Case {
	return []runner.Case{
		{Group: GroupProposal, Name: "create_proposal", Body: s.createProposal},
		{Group: GroupProposal, Name: "create_booking", Body: s.createBooking},
		{Group: GroupCargo, Name: "cargo_integration", Body: s.cargoIntegration},
	}
}

func (s *Suite) creds() Credentials {
	return CredentialsFrom(s.portals)
}

func (s *Suite) createProposal(_ context.Context, h runner.PageHandle) error {
	var in ProposalInput
	if err := s.data.Decode(KeyProposalInput, &in); err != nil {
		return runner.Skip(fmt.Sprintf("no %q section in the scenario data file", KeyProposalInput))
	}

	p, err := browser.From(h)
	if err != nil {
		return err
	}
	if err := NewPortal1Login(p, s.portals.Portal1URL).Login(s.creds()); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	page := NewProposalPage(p)
	if err := page.Open(); err != nil {
		return fmt.Errorf("opening proposal form: %w", err)
	}
	number, err := page.Create(in)
	if err != nil {
		return fmt.Errorf("creating proposal: %w", err)
	}
	if err := s.data.Set(KeyProposalNumber, number); err != nil {
		return err
	}
	s.logger.Info("Proposal created", zap.String("proposal", number))

	if err := page.PortToPortServices(); err != nil {
		return fmt.Errorf("saving services: %w", err)
	}
	if err := page.PortToPortMatrix(in); err != nil {
		return fmt.Errorf("saving transport matrix: %w", err)
	}
	if err := page.Recalculate(); err != nil {
		return fmt.Errorf("recalculating: %w", err)
	}
	if err := page.Accept(in); err != nil {
		return fmt.Errorf("accepting proposal: %w", err)
	}
	return nil
}

func (s *Suite) createBooking(ctx context.Context, h runner.PageHandle) error {
	proposal, ok := s.data.Get(KeyProposalNumber)
	if !ok {
		return fmt.Errorf("no %s recorded by an earlier scenario", KeyProposalNumber)
	}

	p, err := browser.From(h)
	if err != nil {
		return err
	}
	if err := NewPortal1Login(p, s.portals.Portal1URL).Login(s.creds()); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	page := NewBookingPage(p)
	if err := page.Open(); err != nil {
		return fmt.Errorf("opening booking form: %w", err)
	}
	if err := page.Fill(ctx, DefaultBooking(proposal)); err != nil {
		return fmt.Errorf("filling booking: %w", err)
	}
	number, err := page.Save()
	if err != nil {
		return fmt.Errorf("saving booking: %w", err)
	}

	s.logger.Info("Booking created", zap.String("booking", number), zap.String("proposal", proposal))
	return s.data.Set(KeyBookingNumber, number)
}

func (s *Suite) cargoIntegration(ctx context.Context, h runner.PageHandle) error {
	booking, ok := s.data.Get(KeyBookingNumber)
	if !ok {
		return fmt.Errorf("no %s recorded by an earlier scenario", KeyBookingNumber)
	}

	p, err := browser.From(h)
	if err != nil {
		return err
	}
	if err := NewPortal2Login(p, s.portals.Portal2URL).Login(s.creds()); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	page := NewCargoPage(p, s.portals.Portal2URL)
	in := DefaultCargo()
	if err := page.Open(); err != nil {
		return fmt.Errorf("opening cargo screen: %w", err)
	}
	if err := page.FindBooking(booking); err != nil {
		return fmt.Errorf("finding booking %s: %w", booking, err)
	}
	if err := page.CompleteTransport(in); err != nil {
		return fmt.Errorf("transport step: %w", err)
	}
	if err := page.CompleteOrder(ctx, in, s.containers); err != nil {
		return fmt.Errorf("order step: %w", err)
	}
	if err := page.AddInvoice(in); err != nil {
		return fmt.Errorf("invoice step: %w", err)
	}
	if err := page.AuthorizeIssue(); err != nil {
		return fmt.Errorf("issue step: %w", err)
	}
	return nil
}
