package postgres

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmyurl/loans-sub000/internal/domain/client"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const pgxmockExpectationsNotMetMsg = "pgxmock expectations were not met"

var testLoanID = int64(123)

var clientTest = &client.Client{
	ClientID:     1,
	Name:         "Asha Mrema",
	Phone:        "+255700000001",
	Address:      "123 Sokoine Rd",
	NationalID:   "19900101-00001",
	LoanID:       &testLoanID,
	Active:       true,
	IsDelinquent: false,
}

func setupClientRepo(t *testing.T) (context.Context, *ClientRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewClientRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func TestCreateClientWhenSuccess(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	newClient := &client.Client{
		Name:       clientTest.Name,
		Phone:      clientTest.Phone,
		Address:    clientTest.Address,
		NationalID: clientTest.NationalID,
		Active:     true,
	}

	mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO clients`)).WithArgs(
		newClient.Name,
		newClient.Phone,
		newClient.Address,
		newClient.NationalID,
		newClient.IsDelinquent,
		newClient.Active,
		newClient.LoanID,
	).WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
		AddRow(int64(1), clientTest.CreatedAt, clientTest.UpdatedAt))

	err := repo.Save(ctx, newClient)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), newClient.ClientID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestCreateClientWhenDuplicateNationalID(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	newClient := &client.Client{
		Name:       clientTest.Name,
		NationalID: clientTest.NationalID,
		Active:     true,
	}

	mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO clients`)).
		WithArgs(newClient.Name, newClient.Phone, newClient.Address, newClient.NationalID,
			newClient.IsDelinquent, newClient.Active, newClient.LoanID).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "clients_national_id_key"})

	err := repo.Save(ctx, newClient)
	assert.ErrorIs(t, err, client.ErrDuplicateNationalID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestSaveExistingClientWhenSuccess(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE clients`)).WithArgs(
		clientTest.Name,
		clientTest.Phone,
		clientTest.Address,
		clientTest.IsDelinquent,
		clientTest.Active,
		clientTest.LoanID,
		clientTest.ClientID,
	).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Save(ctx, clientTest)
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestSaveExistingClientWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE clients`)).WithArgs(
		clientTest.Name, clientTest.Phone, clientTest.Address,
		clientTest.IsDelinquent, clientTest.Active, clientTest.LoanID, clientTest.ClientID,
	).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Save(ctx, clientTest)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func clientRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "phone", "address", "national_id",
		"is_delinquent", "active", "loan_id", "created_at", "updated_at",
	})
}

func TestFindClientByID(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT`)).WithArgs(clientTest.ClientID).
		WillReturnRows(clientRows().AddRow(
			clientTest.ClientID, clientTest.Name, clientTest.Phone, clientTest.Address,
			clientTest.NationalID, clientTest.IsDelinquent, clientTest.Active,
			clientTest.LoanID, clientTest.CreatedAt, clientTest.UpdatedAt,
		))

	found, err := repo.FindByID(ctx, clientTest.ClientID)
	require.NoError(t, err)
	assert.Equal(t, clientTest.Name, found.Name)
	assert.Equal(t, clientTest.NationalID, found.NationalID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestFindClientByIDWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT`)).WithArgs(int64(404)).
		WillReturnRows(clientRows())

	_, err := repo.FindByID(ctx, 404)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestFindClientByLoanID(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`WHERE loan_id = $1`)).WithArgs(testLoanID).
		WillReturnRows(clientRows().AddRow(
			clientTest.ClientID, clientTest.Name, clientTest.Phone, clientTest.Address,
			clientTest.NationalID, clientTest.IsDelinquent, clientTest.Active,
			clientTest.LoanID, clientTest.CreatedAt, clientTest.UpdatedAt,
		))

	found, err := repo.FindByLoanID(ctx, testLoanID)
	require.NoError(t, err)
	assert.Equal(t, clientTest.ClientID, found.ClientID)
}

func TestFindAllClientsActiveOnly(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`WHERE active = $1`)).WithArgs(true).
		WillReturnRows(clientRows().
			AddRow(int64(1), "Asha Mrema", "+255700000001", "Arusha", "19900101-00001",
				false, true, (*int64)(nil), clientTest.CreatedAt, clientTest.UpdatedAt).
			AddRow(int64(2), "Juma Hassan", "+255700000002", "Dodoma", "19880505-00002",
				false, true, (*int64)(nil), clientTest.CreatedAt, clientTest.UpdatedAt))

	clients, err := repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Len(t, clients, 2)
}

func TestSetDelinquencyStatus(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE clients SET is_delinquent = $1`)).
		WithArgs(true, clientTest.ClientID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.SetDelinquencyStatus(ctx, clientTest.ClientID, true)
	assert.NoError(t, err)
}

func TestSetActiveStatusWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupClientRepo(t)
	defer mockPool.Close()

	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE clients SET active = $1`)).
		WithArgs(false, int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetActiveStatus(ctx, 404, false)
	assert.ErrorIs(t, err, client.ErrNotFound)
}
