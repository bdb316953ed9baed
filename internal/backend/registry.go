package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/modelrouter/internal/model"
)

// Info pairs a backend id with its training status and catalog entry.
type Info struct {
	Name            string                 `json:"name"`
	Trained         bool                   `json:"trained"`
	Characteristics *model.Characteristics `json:"characteristics,omitempty"`
}

// Registry maps backend identifiers to backends. It is populated at start-up
// and then only read, but stays safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	catalog  *Catalog
}

// NewRegistry creates an empty backend registry. catalog may be nil.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		catalog:  catalog,
	}
}

// Register adds a backend to the registry under the given id, replacing any
// previous registration.
func (r *Registry) Register(id string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[id] = b
}

// Get returns the backend registered under id.
func (r *Registry) Get(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	return b, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[id]
	return ok
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns information about all registered backends, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.backends))
	for id, b := range r.backends {
		info := Info{Name: id, Trained: b.Trained()}
		if r.catalog != nil {
			if c, ok := r.catalog.Lookup(id); ok {
				info.Characteristics = &c
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Catalog returns the registry's characteristics catalog, which may be nil.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}
