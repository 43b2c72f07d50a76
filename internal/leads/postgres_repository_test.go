package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadColumns = []string{"id", "user_type", "listing_type", "city_id", "city_name", "name", "phone", "verified_user_id", "source", "created_at"}

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO listing_leads").
		WithArgs(pgxmock.AnyArg(), "Owner", "Sale", "2", "Mumbai", "Asha", "9876543210", "u-1", "WhatsAppChat").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	repo := NewPostgresRepository(mock)
	req := newRequest("Asha", "2", "Sale")
	req.VerifiedUserID = "u-1"
	req.Source = "WhatsAppChat"
	lead, err := repo.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, created, lead.CreatedAt)
	assert.Equal(t, "u-1", lead.VerifiedUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryCreateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO listing_leads").WillReturnError(errors.New("connection refused"))
	_, err = NewPostgresRepository(mock).Create(context.Background(), newRequest("Asha", "2", "Sale"))
	assert.ErrorContains(t, err, "leads: insert failed")
}

func TestPostgresRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM listing_leads WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresRepository(mock).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows(leadColumns).
		AddRow("l-2", "Agent", "Rent", "2", "Mumbai", "Ravi", "9000000000", "", "WhatsAppChat", now).
		AddRow("l-1", "Owner", "Rent", "2", "Mumbai", "Asha", "9876543210", "u-1", "WhatsAppChat", now.Add(-time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM listing_leads WHERE city_id = \\$1 AND listing_type = \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("2", "Rent", 10, 0).
		WillReturnRows(rows)

	leads, err := NewPostgresRepository(mock).List(context.Background(), ListLeadsFilter{CityID: "2", ListingType: "Rent", Limit: 10})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "l-2", leads[0].ID)
	assert.Equal(t, "u-1", leads[1].VerifiedUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}
