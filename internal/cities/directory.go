// Package cities holds the sorted city directory used by the city step,
// together with the remote lookup client and an optional Redis cache.
package cities

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// DefaultSuggestionLimit caps dropdown suggestions.
const DefaultSuggestionLimit = 5

// ErrLoadFailed wraps any failure to populate the directory. It is never fatal.
var ErrLoadFailed = errors.New("cities: load failed")

// Entry is one selectable city.
type Entry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Source returns the raw city list.
type Source interface {
	FetchCities(ctx context.Context) ([]Entry, error)
}

// Cache stores a previously fetched city list.
type Cache interface {
	Get(ctx context.Context) ([]Entry, bool, error)
	Put(ctx context.Context, entries []Entry) error
}

// Directory is a read-mostly, name-sorted set of cities. It can be shared by
// every conversation in the process.
type Directory struct {
	source Source
	cache  Cache
	logger *logging.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	entries []Entry
	folded  []string
	byName  map[string]Entry
	ids     map[string]struct{}
	fetched bool
}

// Option configures a Directory.
type Option func(*Directory)

// WithCache puts a cache in front of the source.
func WithCache(c Cache) Option {
	return func(d *Directory) { d.cache = c }
}

// NewDirectory creates an empty directory backed by source.
func NewDirectory(source Source, logger *logging.Logger, opts ...Option) *Directory {
	d := &Directory{
		source: source,
		logger: logging.OrDefault(logger),
		byName: map[string]Entry{},
		ids:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewStaticDirectory returns an already loaded directory.
func NewStaticDirectory(entries []Entry) *Directory {
	d := NewDirectory(nil, nil)
	d.replace(entries)
	return d
}

// Load populates the directory once. After the first success it is a no-op;
// after a failure the directory stays empty and the next call retries.
// Concurrent callers share a single upstream request.
func (d *Directory) Load(ctx context.Context) error {
	if d.Loaded() {
		return nil
	}
	_, err, _ := d.group.Do("load", func() (any, error) {
		if d.Loaded() {
			return nil, nil
		}
		entries, err := d.fetch(ctx)
		if err != nil {
			return nil, err
		}
		d.replace(entries)
		return nil, nil
	})
	return err
}

func (d *Directory) fetch(ctx context.Context) ([]Entry, error) {
	if d.cache != nil {
		cached, ok, err := d.cache.Get(ctx)
		switch {
		case err != nil:
			d.logger.Warn("city cache read failed", "error", err)
		case ok && len(cached) > 0:
			return cached, nil
		}
	}
	if d.source == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrLoadFailed)
	}
	entries, err := d.source.FetchCities(ctx)
	if err != nil {
		d.logger.Error("failed to load cities", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if d.cache != nil {
		if err := d.cache.Put(ctx, entries); err != nil {
			d.logger.Warn("city cache write failed", "error", err)
		}
	}
	return entries, nil
}

func (d *Directory) replace(entries []Entry) {
	sorted := slices.Clone(entries)
	coll := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		return coll.CompareString(a.Name, b.Name)
	})

	fold := cases.Fold()
	folded := make([]string, len(sorted))
	byName := make(map[string]Entry, len(sorted))
	ids := make(map[string]struct{}, len(sorted))
	for i, e := range sorted {
		folded[i] = fold.String(e.Name)
		if _, dup := byName[e.Name]; !dup {
			byName[e.Name] = e
		}
		ids[e.ID] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = sorted
	d.folded = folded
	d.byName = byName
	d.ids = ids
	d.fetched = true
}

// Loaded reports whether a load has succeeded.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetched
}

// Len returns the number of cities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns a copy of the sorted list.
func (d *Directory) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.entries)
}

// Has reports an exact display-name match.
func (d *Directory) Has(name string) bool {
	_, ok := d.Lookup(name)
	return ok
}

// Lookup returns the entry with the exact display name.
func (d *Directory) Lookup(name string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byName[name]
	return e, ok
}

// HasID reports whether id belongs to a known city.
func (d *Directory) HasID(id string) bool {
	if id == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.ids[id]
	return ok
}

// PrefixSearch yields, in sorted order, at most limit entries whose name
// starts with query, ignoring case. An empty query yields nothing. The
// sequence reads the directory each time it is ranged over.
func (d *Directory) PrefixSearch(query string, limit int) iter.Seq[Entry] {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	q := cases.Fold().String(strings.TrimSpace(query))
	return func(yield func(Entry) bool) {
		if q == "" {
			return
		}
		d.mu.RLock()
		var matched []Entry
		for i, name := range d.folded {
			if strings.HasPrefix(name, q) {
				matched = append(matched, d.entries[i])
				if len(matched) == limit {
					break
				}
			}
		}
		d.mu.RUnlock()
		for _, e := range matched {
			if !yield(e) {
				return
			}
		}
	}
}

// Suggest collects PrefixSearch into a slice.
func (d *Directory) Suggest(query string, limit int) []Entry {
	return slices.Collect(d.PrefixSearch(query, limit))
}
