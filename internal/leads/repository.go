package leads

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error)
}

// InMemoryRepository keeps leads in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	order []string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := req.toLead(uuid.New().String(), time.Now().UTC())

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.order = append(r.order, lead.ID)
	r.mu.Unlock()

	return lead, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}

	return lead, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Lead{}
	skipped := 0
	for _, id := range slices.Backward(r.order) {
		lead := r.leads[id]
		if filter.CityID != "" && lead.CityID != filter.CityID {
			continue
		}
		if filter.ListingType != "" && lead.ListingType != filter.ListingType {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, lead)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
