package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

func sampleLead() *leads.Lead {
	return &leads.Lead{
		ID: "l-1", UserType: "Owner", ListingType: "Sale", CityID: "2", CityName: "Mumbai",
		Name: "Asha", Phone: "9876543210", Source: "WhatsAppChat",
		CreatedAt: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestOutboxStorePublishLeadSubmitted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), TypeLeadSubmitted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewOutboxStore(mock)
	require.NoError(t, store.PublishLeadSubmitted(context.Background(), sampleLead()))
	require.NoError(t, mock.ExpectationsWereMet())
}

type recordingHandler struct {
	handled []OutboxEntry
	failOn  uuid.UUID
}

func (h *recordingHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	if entry.ID == h.failOn {
		return errors.New("queue down")
	}
	h.handled = append(h.handled, entry)
	return nil
}

func TestDelivererDrain(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ok, failed := uuid.New(), uuid.New()
	payload, _ := json.Marshal(NewLeadSubmitted(sampleLead()))
	now := time.Now()
	mock.ExpectQuery("SELECT id, type, payload, created_at").
		WithArgs(int32(25)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).
			AddRow(ok, TypeLeadSubmitted, payload, now).
			AddRow(failed, TypeLeadSubmitted, payload, now))
	mock.ExpectExec("UPDATE outbox").WithArgs(ok).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	handler := &recordingHandler{failOn: failed}
	stats, err := NewDeliverer(NewOutboxStore(mock), handler, logging.Default()).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainStats{Delivered: 1, Failed: 1}, stats)

	require.Len(t, handler.handled, 1)
	assert.Equal(t, ok, handler.handled[0].ID)
	assert.JSONEq(t, string(payload), string(handler.handled[0].Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelivererDrainFetchFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, type, payload, created_at").
		WithArgs(int32(25)).
		WillReturnError(errors.New("connection reset"))

	handler := &recordingHandler{}
	stats, err := NewDeliverer(NewOutboxStore(mock), handler, logging.New("error")).Drain(context.Background())
	require.Error(t, err)
	assert.Zero(t, stats)
	assert.Empty(t, handler.handled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelivererRunStopsOnCancel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDeliverer(NewOutboxStore(mock), &recordingHandler{}, nil).WithInterval(time.Hour)
	assert.NoError(t, d.Run(ctx))
}

func TestNewLeadSubmitted(t *testing.T) {
	evt := NewLeadSubmitted(sampleLead())
	assert.Equal(t, TypeLeadSubmitted, evt.Type)
	assert.Equal(t, "l-1", evt.LeadID)
	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, sampleLead().CreatedAt, evt.SubmittedAt)

	evt = NewLeadSubmitted(&leads.Lead{})
	assert.False(t, evt.SubmittedAt.IsZero())
}
