package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jimmyurl/loans-sub000/internal/domain/client"
)

type RegisterClientRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	NationalID string `json:"nationalId"`
}

func (r *RegisterClientRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.TrimSpace(r.NationalID) == "" {
		return fmt.Errorf("nationalId cannot be empty")
	}
	return nil
}

type UpdateAddressRequest struct {
	Address string `json:"address"`
}

func (r *UpdateAddressRequest) Validate() error {
	if strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

type UpdateDelinquencyRequest struct {
	IsDelinquent bool `json:"isDelinquent"`
}

type ClientResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	NationalID   string    `json:"nationalId"`
	IsDelinquent bool      `json:"isDelinquent"`
	Active       bool      `json:"active"`
	LoanID       *string   `json:"loanId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewClientResponse(c *client.Client) ClientResponse {
	var loanIDStr *string
	if c.LoanID != nil {
		s := strconv.FormatInt(*c.LoanID, 10)
		loanIDStr = &s
	}

	return ClientResponse{
		ID:           strconv.FormatInt(c.ClientID, 10),
		Name:         c.Name,
		Phone:        c.Phone,
		Address:      c.Address,
		NationalID:   c.NationalID,
		IsDelinquent: c.IsDelinquent,
		Active:       c.Active,
		LoanID:       loanIDStr,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func NewClientListResponse(clients []*client.Client) []ClientResponse {
	resp := make([]ClientResponse, len(clients))
	for i, c := range clients {
		resp[i] = NewClientResponse(c)
	}
	return resp
}
