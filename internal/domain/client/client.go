package client

import (
	"errors"
	"time"
)

var (
	ErrNotFound             = errors.New("client not found")
	ErrClientInactive       = errors.New("client is not active")
	ErrClientAlreadyHasLoan = errors.New("client already has an active loan")
	ErrDuplicateNationalID  = errors.New("a client with this national ID already exists")
)

type Client struct {
	ClientID     int64     `json:"clientId"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	NationalID   string    `json:"nationalId"`
	IsDelinquent bool      `json:"isDelinquent"`
	Active       bool      `json:"active"`
	LoanID       *int64    `json:"loanId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewClient(name, phone, address, nationalID string) *Client {
	now := time.Now()
	return &Client{
		Name:         name,
		Phone:        phone,
		Address:      address,
		NationalID:   nationalID,
		IsDelinquent: false,
		Active:       true,
		LoanID:       nil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Client) AssignLoan(loanID int64) {
	c.LoanID = &loanID
	c.UpdatedAt = time.Now()
}

func (c *Client) SetDelinquencyStatus(isDelinquent bool) {
	if c.IsDelinquent != isDelinquent {
		c.IsDelinquent = isDelinquent
		c.UpdatedAt = time.Now()
	}
}

func (c *Client) Deactivate() {
	if c.Active {
		c.Active = false
		c.UpdatedAt = time.Now()
	}
}
