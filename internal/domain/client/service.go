package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jimmyurl/loans-sub000/internal/event"
)

type ClientService interface {
	RegisterClient(ctx context.Context, name, phone, address, nationalID string) (*Client, error)
	GetClient(ctx context.Context, clientID int64) (*Client, error)
	ListActiveClients(ctx context.Context) ([]*Client, error)
	UpdateClientAddress(ctx context.Context, clientID int64, newAddress string) error
	AssignLoanToClient(ctx context.Context, clientID int64, loanID int64) error
	UpdateDelinquency(ctx context.Context, clientID int64, isDelinquent bool) error
	DeactivateClient(ctx context.Context, clientID int64) error
	ReactivateClient(ctx context.Context, clientID int64) error
	FindClientByLoan(ctx context.Context, loanID int64) (*Client, error)
}

var _ ClientService = (*clientService)(nil)

type clientService struct {
	repo   Repository
	pub    event.EventPublisher
	logger *slog.Logger
}

func NewClientService(repo Repository, eventPublisher event.EventPublisher, logger *slog.Logger) ClientService {
	if repo == nil {
		panic("client repository cannot be nil")
	}
	if eventPublisher == nil {
		eventPublisher = event.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("No logger provided to NewClientService, using default stderr handler")
	}

	return &clientService{
		repo:   repo,
		pub:    eventPublisher,
		logger: logger.With(slog.String("component", "clientService")),
	}
}

func newClientEventPayload(c *Client) event.ClientEventPayload {
	if c == nil {
		return event.ClientEventPayload{}
	}
	return event.ClientEventPayload{
		ClientID:     c.ClientID,
		Name:         c.Name,
		Phone:        c.Phone,
		Address:      c.Address,
		IsDelinquent: c.IsDelinquent,
		Active:       c.Active,
		LoanID:       c.LoanID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (s *clientService) publishClientUpdated(ctx context.Context, c *Client) {
	if c == nil {
		s.logger.ErrorContext(ctx, "Attempted to publish update event for nil client")
		return
	}
	evt := event.ClientUpdatedEvent{
		EventID:   event.NewEventID(),
		Timestamp: time.Now(),
		Payload:   newClientEventPayload(c),
	}
	if err := s.pub.PublishClientUpdated(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish client update event",
			slog.Int64("clientID", c.ClientID), slog.Any("error", err))
	}
}

func (s *clientService) RegisterClient(ctx context.Context, name, phone, address, nationalID string) (*Client, error) {
	s.logger.InfoContext(ctx, "Attempting to register new client")

	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	address = strings.TrimSpace(address)
	nationalID = strings.TrimSpace(nationalID)
	if name == "" {
		s.logger.WarnContext(ctx, "Validation failed: name is empty")
		return nil, errors.New("client name cannot be empty")
	}
	if nationalID == "" {
		s.logger.WarnContext(ctx, "Validation failed: national ID is empty", slog.String("name", name))
		return nil, errors.New("client national ID cannot be empty")
	}

	c := NewClient(name, phone, address, nationalID)

	if err := s.repo.Save(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateNationalID) {
			s.logger.WarnContext(ctx, "Duplicate national ID on registration")
			return nil, ErrDuplicateNationalID
		}
		s.logger.ErrorContext(ctx, "Repository failed to save new client", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save new client: %w", err)
	}

	evt := event.ClientRegisteredEvent{
		EventID:   event.NewEventID(),
		Timestamp: time.Now(),
		Payload:   newClientEventPayload(c),
	}
	if pubErr := s.pub.PublishClientRegistered(ctx, evt); pubErr != nil {
		s.logger.ErrorContext(ctx, "Client registered, but failed to publish registration event",
			slog.Int64("clientID", c.ClientID), slog.Any("error", pubErr))
	}

	s.logger.InfoContext(ctx, "Successfully registered new client", slog.Int64("clientID", c.ClientID))
	return c, nil
}

func (s *clientService) GetClient(ctx context.Context, clientID int64) (*Client, error) {
	c, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "Client not found by repository", slog.Int64("clientID", clientID))
			return nil, ErrNotFound
		}
		s.logger.ErrorContext(ctx, "Repository error finding client", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get client %d: %w", clientID, err)
	}
	return c, nil
}

func (s *clientService) ListActiveClients(ctx context.Context) ([]*Client, error) {
	clients, err := s.repo.FindAll(ctx, true)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository error listing active clients", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list active clients: %w", err)
	}
	s.logger.InfoContext(ctx, "Retrieved active clients", slog.Int("count", len(clients)))
	return clients, nil
}

func (s *clientService) UpdateClientAddress(ctx context.Context, clientID int64, newAddress string) error {
	logCtx := s.logger.With(slog.Int64("clientID", clientID))
	logCtx.InfoContext(ctx, "Attempting to update client address")

	newAddress = strings.TrimSpace(newAddress)
	if newAddress == "" {
		logCtx.WarnContext(ctx, "Validation failed: new address is empty")
		return errors.New("new address cannot be empty")
	}

	c, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logCtx.WarnContext(ctx, "Client not found by repository for update")
			return ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Repository error finding client for update", slog.Any("error", err))
		return fmt.Errorf("cannot find client %d to update address: %w", clientID, err)
	}

	if c.Address == newAddress {
		logCtx.InfoContext(ctx, "No address change needed, skipping save")
		return nil
	}
	c.Address = newAddress
	c.UpdatedAt = time.Now()

	if err := s.repo.Save(ctx, c); err != nil {
		if errors.Is(err, ErrNotFound) {
			logCtx.ErrorContext(ctx, "Client disappeared before save completed")
			return ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Repository failed to save updated address", slog.Any("error", err))
		return fmt.Errorf("failed to save updated address for client %d: %w", clientID, err)
	}

	s.publishClientUpdated(ctx, c)
	logCtx.InfoContext(ctx, "Successfully updated client address")
	return nil
}

func (s *clientService) AssignLoanToClient(ctx context.Context, clientID int64, loanID int64) error {
	logCtx := s.logger.With(slog.Int64("clientID", clientID), slog.Int64("loanID", loanID))
	logCtx.InfoContext(ctx, "Attempting to assign loan to client")

	if loanID <= 0 {
		logCtx.WarnContext(ctx, "Validation failed: invalid loan ID provided")
		return errors.New("invalid loan ID provided")
	}

	c, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logCtx.WarnContext(ctx, "Client not found by repository")
			return ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Repository error finding client", slog.Any("error", err))
		return fmt.Errorf("cannot find client %d to assign loan: %w", clientID, err)
	}

	if !c.Active {
		logCtx.WarnContext(ctx, "Business rule failed: cannot assign loan to inactive client")
		return fmt.Errorf("cannot assign loan to inactive client %d", clientID)
	}

	if c.LoanID != nil {
		if *c.LoanID == loanID {
			logCtx.InfoContext(ctx, "Loan already assigned to this client, no action needed")
			return nil
		}
		logCtx.WarnContext(ctx, "Business rule failed: client already has a different loan assigned",
			slog.Int64("existing_loanID", *c.LoanID))
		return fmt.Errorf("client %d already assigned loan %d, cannot assign new loan %d", clientID, *c.LoanID, loanID)
	}

	c.AssignLoan(loanID)
	if err := s.repo.Save(ctx, c); err != nil {
		if errors.Is(err, ErrNotFound) {
			logCtx.ErrorContext(ctx, "Client disappeared before save could complete")
			return ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Repository failed to save loan assignment", slog.Any("error", err))
		return fmt.Errorf("failed to save loan assignment for client %d: %w", clientID, err)
	}

	s.publishClientUpdated(ctx, c)
	logCtx.InfoContext(ctx, "Successfully assigned loan to client")
	return nil
}

func (s *clientService) UpdateDelinquency(ctx context.Context, clientID int64, isDelinquent bool) error {
	logCtx := s.logger.With(slog.Int64("clientID", clientID))
	logCtx.InfoContext(ctx, "Attempting to update client delinquency status", slog.Bool("isDelinquent", isDelinquent))

	err := s.repo.SetDelinquencyStatus(ctx, clientID, isDelinquent)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logCtx.WarnContext(ctx, "Client not found by repository")
			return ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Repository error updating delinquency status", slog.Any("error", err))
		return fmt.Errorf("failed to update delinquency for client %d: %w", clientID, err)
	}

	updated, fetchErr := s.repo.FindByID(ctx, clientID)
	if fetchErr != nil {
		logCtx.ErrorContext(ctx, "Updated status, but failed to re-fetch client for event publishing", slog.Any("error", fetchErr))
	} else {
		s.publishClientUpdated(ctx, updated)
	}
	logCtx.InfoContext(ctx, "Successfully updated client delinquency status")
	return nil
}

func (s *clientService) DeactivateClient(ctx context.Context, clientID int64) error {
	return s.setActive(ctx, clientID, false)
}

func (s *clientService) ReactivateClient(ctx context.Context, clientID int64) error {
	return s.setActive(ctx, clientID, true)
}

func (s *clientService) setActive(ctx context.Context, clientID int64, active bool) error {
	logCtx := s.logger.With(slog.Int64("clientID", clientID), slog.Bool("active", active))
	logCtx.InfoContext(ctx, "Attempting to change client active status")

	err := s.repo.SetActiveStatus(ctx, clientID, active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logCtx.WarnContext(ctx, "Client not found by repository")
			return ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Repository error changing client active status", slog.Any("error", err))
		return fmt.Errorf("failed to change active status for client %d: %w", clientID, err)
	}

	updated, fetchErr := s.repo.FindByID(ctx, clientID)
	if fetchErr != nil {
		logCtx.ErrorContext(ctx, "Changed status, but failed to re-fetch client for event publishing", slog.Any("error", fetchErr))
	} else {
		s.publishClientUpdated(ctx, updated)
	}
	logCtx.InfoContext(ctx, "Successfully changed client active status")
	return nil
}

func (s *clientService) FindClientByLoan(ctx context.Context, loanID int64) (*Client, error) {
	c, err := s.repo.FindByLoanID(ctx, loanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "No client found for this loan ID", slog.Int64("loanID", loanID))
			return nil, ErrNotFound
		}
		s.logger.ErrorContext(ctx, "Repository error finding client by loan ID", slog.Any("error", err))
		return nil, fmt.Errorf("failed to find client by loan ID %d: %w", loanID, err)
	}
	return c, nil
}
