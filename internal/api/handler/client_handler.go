package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jimmyurl/loans-sub000/internal/api/handler/dto"
	"github.com/jimmyurl/loans-sub000/internal/domain/client"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

type ClientHandler struct {
	service client.ClientService
	logger  *slog.Logger
}

func NewClientHandler(s client.ClientService, l *slog.Logger) *ClientHandler {
	return &ClientHandler{
		service: s,
		logger:  l.With("component", "ClientHandler"),
	}
}

func getClientIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "clientID")
	if idStr == "" {
		return 0, fmt.Errorf("clientID not found in URL path")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// RegisterClient registers a new microfinance client.
//
// @Summary Register a new client
// @Description Registers a client by name, phone, address and national ID. The national ID must be unique.
// @Tags Clients
// @Accept json
// @Produce json
// @Param request body dto.RegisterClientRequest true "Client registration payload"
// @Success 201 {object} dto.ClientResponse "Client successfully registered"
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload"
// @Failure 409 {object} dto.ErrorResponse "Duplicate national ID"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients [post]
// @Security BearerAuth
func (h *ClientHandler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterClientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	c, err := h.service.RegisterClient(r.Context(), req.Name, req.Phone, req.Address, req.NationalID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewClientResponse(c))
}

// GetClient retrieves a client by ID.
//
// @Summary Retrieve client details
// @Tags Clients
// @Produce json
// @Param clientID path int true "Client ID"
// @Success 200 {object} dto.ClientResponse "Client details successfully retrieved"
// @Failure 400 {object} dto.ErrorResponse "Invalid client ID"
// @Failure 404 {object} dto.ErrorResponse "Client not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients/{clientID} [get]
// @Security BearerAuth
func (h *ClientHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := getClientIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	c, err := h.service.GetClient(r.Context(), clientID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewClientResponse(c))
}

// ListClients lists all active clients.
//
// @Summary List active clients
// @Tags Clients
// @Produce json
// @Success 200 {array} dto.ClientResponse "Active clients"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients [get]
// @Security BearerAuth
func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListActiveClients(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewClientListResponse(clients))
}

// UpdateClientAddress updates a client's address.
//
// @Summary Update client address
// @Tags Clients
// @Accept json
// @Produce json
// @Param clientID path int true "Client ID"
// @Param request body dto.UpdateAddressRequest true "New address"
// @Success 200 {object} map[string]string "Address updated"
// @Failure 400 {object} dto.ErrorResponse "Invalid client ID or payload"
// @Failure 404 {object} dto.ErrorResponse "Client not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients/{clientID}/address [put]
// @Security BearerAuth
func (h *ClientHandler) UpdateClientAddress(w http.ResponseWriter, r *http.Request) {
	clientID, err := getClientIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UpdateAddressRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.UpdateClientAddress(r.Context(), clientID, req.Address); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Address updated"})
}

// UpdateDelinquency sets a client's delinquency flag.
//
// @Summary Update client delinquency status
// @Tags Clients
// @Accept json
// @Produce json
// @Param clientID path int true "Client ID"
// @Param request body dto.UpdateDelinquencyRequest true "Delinquency flag"
// @Success 200 {object} map[string]string "Delinquency status updated"
// @Failure 400 {object} dto.ErrorResponse "Invalid client ID or payload"
// @Failure 404 {object} dto.ErrorResponse "Client not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients/{clientID}/delinquency [put]
// @Security BearerAuth
func (h *ClientHandler) UpdateDelinquency(w http.ResponseWriter, r *http.Request) {
	clientID, err := getClientIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UpdateDelinquencyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.UpdateDelinquency(r.Context(), clientID, req.IsDelinquent); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Delinquency status updated"})
}

// DeactivateClient marks a client as inactive.
//
// @Summary Deactivate a client
// @Tags Clients
// @Produce json
// @Param clientID path int true "Client ID"
// @Success 200 {object} map[string]string "Client deactivated"
// @Failure 400 {object} dto.ErrorResponse "Invalid client ID"
// @Failure 404 {object} dto.ErrorResponse "Client not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients/{clientID} [delete]
// @Security BearerAuth
func (h *ClientHandler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := getClientIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.DeactivateClient(r.Context(), clientID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Client deactivated"})
}

// ReactivateClient marks a previously deactivated client as active again.
//
// @Summary Reactivate a client
// @Tags Clients
// @Produce json
// @Param clientID path int true "Client ID"
// @Success 200 {object} map[string]string "Client reactivated"
// @Failure 400 {object} dto.ErrorResponse "Invalid client ID"
// @Failure 404 {object} dto.ErrorResponse "Client not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients/{clientID}/reactivate [post]
// @Security BearerAuth
func (h *ClientHandler) ReactivateClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := getClientIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.ReactivateClient(r.Context(), clientID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Client reactivated"})
}

// FindClientByLoan finds the client holding a given loan.
//
// @Summary Find client by loan
// @Tags Clients
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.ClientResponse "Client details"
// @Failure 400 {object} dto.ErrorResponse "Invalid loan ID"
// @Failure 404 {object} dto.ErrorResponse "No client holds this loan"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /clients/by-loan/{loanID} [get]
// @Security BearerAuth
func (h *ClientHandler) FindClientByLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	c, err := h.service.FindClientByLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewClientResponse(c))
}
