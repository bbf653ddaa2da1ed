package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jimmyurl/loans-sub000/internal/domain/client"
	"github.com/jimmyurl/loans-sub000/internal/infrastructure/monitoring"
	"github.com/jimmyurl/loans-sub000/internal/pkg/apperrors"
)

const clientColumns = `id, name, phone, address, national_id, is_delinquent, active, loan_id, created_at, updated_at`

type ClientRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ client.Repository = (*ClientRepository)(nil)

func NewClientRepository(db DBPool, logger *slog.Logger) *ClientRepository {
	if db == nil {
		panic("DBPool cannot be nil for ClientRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewClientRepository, using default stderr handler")
	}
	return &ClientRepository{
		db:     db,
		logger: logger.With("component", "ClientRepository"),
	}
}

func scanClient(row pgx.Row, c *client.Client) error {
	return row.Scan(
		&c.ClientID, &c.Name, &c.Phone, &c.Address, &c.NationalID,
		&c.IsDelinquent, &c.Active, &c.LoanID, &c.CreatedAt, &c.UpdatedAt,
	)
}

func (r *ClientRepository) Save(ctx context.Context, c *client.Client) error {
	if c == nil {
		return fmt.Errorf("%w: client cannot be nil", apperrors.ErrInvalidArgument)
	}

	if c.ClientID == 0 {
		return r.createClient(ctx, c)
	}
	return r.updateClient(ctx, c)
}

func (r *ClientRepository) createClient(ctx context.Context, c *client.Client) error {
	r.logger.InfoContext(ctx, "Attempting to insert new client", slog.String("name", c.Name))

	query := `
        INSERT INTO clients (name, phone, address, national_id, is_delinquent, active, loan_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		c.Name, c.Phone, c.Address, c.NationalID, c.IsDelinquent, c.Active, c.LoanID,
	).Scan(&c.ClientID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.WarnContext(ctx, "Duplicate national ID on client insert", "constraint", pgErr.ConstraintName)
			return client.ErrDuplicateNationalID
		}
		r.logger.ErrorContext(ctx, "Failed to insert client", slog.Any("error", err))
		return translateDBError(err, r.logger)
	}

	r.logger.InfoContext(ctx, "Client inserted", slog.Int64("clientID", c.ClientID))
	return nil
}

func (r *ClientRepository) updateClient(ctx context.Context, c *client.Client) error {
	r.logger.InfoContext(ctx, "Attempting to update client", slog.Int64("clientID", c.ClientID))

	query := `
        UPDATE clients
        SET name = $1, phone = $2, address = $3, is_delinquent = $4, active = $5, loan_id = $6, updated_at = NOW()
        WHERE id = $7`

	cmdTag, err := r.db.Exec(ctx, query,
		c.Name, c.Phone, c.Address, c.IsDelinquent, c.Active, c.LoanID, c.ClientID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update client", slog.Int64("clientID", c.ClientID), slog.Any("error", err))
		return translateDBError(err, r.logger)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Client update affected zero rows", slog.Int64("clientID", c.ClientID))
		return client.ErrNotFound
	}

	r.logger.InfoContext(ctx, "Client updated", slog.Int64("clientID", c.ClientID))
	return nil
}

func (r *ClientRepository) FindByID(ctx context.Context, clientID int64) (*client.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

	status := "success"
	startTime := time.Now()

	var c client.Client
	err := scanClient(r.db.QueryRow(ctx, query, clientID), &c)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("FindClientByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find client by ID", slog.Int64("clientID", clientID), slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &c, nil
}

func (r *ClientRepository) FindByLoanID(ctx context.Context, loanID int64) (*client.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE loan_id = $1`

	var c client.Client
	err := scanClient(r.db.QueryRow(ctx, query, loanID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find client by loan ID", slog.Int64("loanID", loanID), slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &c, nil
}

func (r *ClientRepository) FindAll(ctx context.Context, activeOnly bool) ([]*client.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients`
	args := []any{}
	if activeOnly {
		query += ` WHERE active = $1`
		args = append(args, true)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query clients", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	clients := make([]*client.Client, 0)
	for rows.Next() {
		var c client.Client
		if err := scanClient(rows, &c); err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan client row", slog.Any("error", err))
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		clients = append(clients, &c)
	}

	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating client rows", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	return clients, nil
}

func (r *ClientRepository) SetDelinquencyStatus(ctx context.Context, clientID int64, isDelinquent bool) error {
	query := `UPDATE clients SET is_delinquent = $1, updated_at = NOW() WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, isDelinquent, clientID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to set delinquency status", slog.Int64("clientID", clientID), slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return client.ErrNotFound
	}
	return nil
}

func (r *ClientRepository) SetActiveStatus(ctx context.Context, clientID int64, active bool) error {
	query := `UPDATE clients SET active = $1, updated_at = NOW() WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, active, clientID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to set active status", slog.Int64("clientID", clientID), slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return client.ErrNotFound
	}
	return nil
}
