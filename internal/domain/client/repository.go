package client

import "context"

type Repository interface {
	Save(ctx context.Context, c *Client) error
	FindByID(ctx context.Context, clientID int64) (*Client, error)
	FindByLoanID(ctx context.Context, loanID int64) (*Client, error)
	FindAll(ctx context.Context, activeOnly bool) ([]*Client, error)
	SetDelinquencyStatus(ctx context.Context, clientID int64, isDelinquent bool) error
	SetActiveStatus(ctx context.Context, clientID int64, active bool) error
}
