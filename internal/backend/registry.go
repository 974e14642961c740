package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBackend is returned when a backend name is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Info pairs a backend name with its capabilities.
type Info struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered backends and resolves which one serves a request.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Executor
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Executor),
	}
}

// Register adds a backend to the registry under the given name, replacing
// any previous registration.
func (r *Registry) Register(name string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = e
}

// Resolve returns the backend registered under name. An empty name and
// "auto" both prefer docker when it is registered and fall back to process.
func (r *Registry) Resolve(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" || name == NameAuto {
		for _, candidate := range []string{NameDocker, NameProcess} {
			if e, ok := r.backends[candidate]; ok {
				return e, nil
			}
		}
		return nil, fmt.Errorf("resolve %q: no docker or process backend: %w", NameAuto, ErrUnknownBackend)
	}

	e, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", name, ErrUnknownBackend)
	}
	return e, nil
}

// List returns information about all registered backends, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.backends))
	for name, e := range r.backends {
		infos = append(infos, Info{
			Name:         name,
			Capabilities: e.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
