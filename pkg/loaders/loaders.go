// Package loaders turns synced dataset repositories into consumable data.
//
// A Loader knows how to read one dataset's working directory; the Registry
// maps dataset ids and titles to loader factories so callers can ask for a
// dataset by either name, have it pulled on demand, and get a built loader
// back.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spectradata/datasets/pkg/repository"
)

var (
	ErrUnknownDataset = errors.New("dataset is not known")
	ErrNotSynced      = errors.New("dataset repository is not synced")
)

// Loader reads one dataset's unpacked working directory into a
// dataset-specific in-memory representation.
type Loader interface {
	// ID is the dataset's record id.
	ID() string

	// Load parses the dataset content. The repository must be synced.
	Load(ctx context.Context) (any, error)
}

// Factory builds the Loader of one dataset from its Record.
type Factory func(*repository.Record) Loader

// EnsureSynced pulls the record content unless it is already present
// locally. Options are passed through to the pull.
func EnsureSynced(ctx context.Context, r *repository.Record, opts ...repository.Option) error {
	if r.Synced() {
		return nil
	}
	return r.Pull(ctx, opts...)
}

// RequireSynced fails with ErrNotSynced unless the record content is
// present locally. For loaders that never pull on their own.
func RequireSynced(r *repository.Record) error {
	if !r.Synced() {
		return fmt.Errorf("%w: %s (pull it first)", ErrNotSynced, r.ID())
	}
	return nil
}

// Registry resolves dataset ids and titles to built Loaders over one
// Community's catalog. Safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	community *repository.Community
	factories map[string]Factory
	built     map[string]Loader
	byTitle   map[string]string
}

// NewRegistry creates an empty Registry over the community's catalog.
func NewRegistry(community *repository.Community) *Registry {
	return &Registry{
		community: community,
		factories: map[string]Factory{},
		built:     map[string]Loader{},
	}
}

// Register binds a loader factory to a dataset id. Re-registering an id
// replaces the factory and drops any loader built from the old one.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[id] = factory
	delete(r.built, id)
}

// Known returns whether a factory is registered for the dataset id.
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.factories[id]
	return ok
}

// Load resolves idOrTitle to a registered dataset, syncs its repository
// when needed, and returns the parsed content.
//
// Titles are matched case-insensitively against the community catalog.
// Unknown names, and ids registered here but absent from the community,
// fail with ErrUnknownDataset. Built loaders are memoised per id.
func (r *Registry) Load(ctx context.Context, idOrTitle string, opts ...repository.Option) (any, error) {
	loader, record, err := r.resolve(idOrTitle)
	if err != nil {
		return nil, err
	}

	if err := EnsureSynced(ctx, record, opts...); err != nil {
		return nil, err
	}
	return loader.Load(ctx)
}

func (r *Registry) resolve(idOrTitle string) (Loader, *repository.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := idOrTitle
	if _, ok := r.factories[id]; !ok {
		if r.byTitle == nil {
			r.byTitle = map[string]string{}
			for rid, record := range r.community.Records() {
				r.byTitle[strings.ToLower(record.Title())] = rid
			}
		}
		resolved, ok := r.byTitle[strings.ToLower(idOrTitle)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDataset, idOrTitle)
		}
		id = resolved
	}

	factory, ok := r.factories[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDataset, idOrTitle)
	}
	record, ok := r.community.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q is not in community %q", ErrUnknownDataset, id, r.community.Configuration().Community)
	}

	if loader, ok := r.built[id]; ok {
		return loader, record, nil
	}
	loader := factory(record)
	r.built[id] = loader
	return loader, record, nil
}

// TableRow describes one dataset for table-driven registration.
type TableRow[P any] struct {
	ID         string
	Title      string
	Parameters P
}

// RegisterTable registers a whole catalog of datasets at once: each row's
// parameters are closed over and handed to build together with the Record.
// Replaces the original's runtime class synthesis with plain data.
func RegisterTable[P any](r *Registry, rows []TableRow[P], build func(*repository.Record, P) Loader) {
	for _, row := range rows {
		params := row.Parameters
		r.Register(row.ID, func(record *repository.Record) Loader {
			return build(record, params)
		})
	}
}
