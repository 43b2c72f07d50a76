package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by a pgx pool (or anything
// with the same query surface).
func NewPostgresRepository(conn db) *PostgresRepository {
	if conn == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: conn}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO listing_leads (id, user_type, listing_type, city_id, city_name, name, phone, verified_user_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.UserType,
		req.ListingType,
		req.CityID,
		req.City,
		req.Name,
		req.Number,
		req.VerifiedUserID,
		req.Source,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return req.toLead(id.String(), createdAt), nil
}

const selectColumns = `id, user_type, listing_type, city_id, city_name, name, phone, verified_user_id, source, created_at`

// GetByID fetches one lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM listing_leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	var (
		where []string
		args  []any
	)
	if filter.CityID != "" {
		args = append(args, filter.CityID)
		where = append(where, fmt.Sprintf("city_id = $%d", len(args)))
	}
	if filter.ListingType != "" {
		args = append(args, filter.ListingType)
		where = append(where, fmt.Sprintf("listing_type = $%d", len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM listing_leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.UserType,
		&lead.ListingType,
		&lead.CityID,
		&lead.CityName,
		&lead.Name,
		&lead.Phone,
		&lead.VerifiedUserID,
		&lead.Source,
		&lead.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}
