package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// OutboxEntry represents a pending event.
type OutboxEntry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	db querier
}

func NewOutboxStore(db querier) *OutboxStore {
	if db == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO outbox (id, type, payload)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.Exec(ctx, query, id, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// PublishLeadSubmitted implements leads.Publisher by staging the event.
func (s *OutboxStore) PublishLeadSubmitted(ctx context.Context, lead *leads.Lead) error {
	_, err := s.Insert(ctx, TypeLeadSubmitted, NewLeadSubmitted(lead))
	return err
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

const maxDeliveryBackoff = time.Minute

// Deliverer polls the outbox and hands lead events to the handler. While the
// outbox itself cannot be read the poll interval doubles up to a minute.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logging.OrDefault(logger),
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Run drains the outbox until ctx is done.
func (d *Deliverer) Run(ctx context.Context) error {
	if d.store == nil || d.handler == nil {
		return nil
	}
	wait := d.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		stats, err := d.Drain(ctx)
		switch {
		case err != nil:
			wait = min(wait*2, maxDeliveryBackoff)
		default:
			wait = d.interval
			if stats.Delivered > 0 || stats.Failed > 0 {
				d.logger.Info("outbox pass", "delivered", stats.Delivered, "failed", stats.Failed)
			}
		}
		timer.Reset(wait)
	}
}

// DrainStats counts the outcome of one pass.
type DrainStats struct {
	Delivered int
	Failed    int
}

// Drain delivers one batch. Failed entries stay pending for the next pass;
// the error is set only when the batch could not be read.
func (d *Deliverer) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return stats, err
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			stats.Failed++
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type, "age", time.Since(entry.CreatedAt).Round(time.Second))
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			stats.Failed++
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
			continue
		}
		if ok {
			stats.Delivered++
		}
	}
	return stats, nil
}
