package engine

import (
	"sort"

	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

// Registry resolves engine names to adapter instances. The set is fixed at
// startup; there is no dynamic plugin loading.
type Registry struct {
	engines map[string]Engine
}

func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		r.engines[e.ID()] = e
	}
	return r
}

// Resolve returns the engine registered under name. Unknown names fail
// closed; falling back to a default engine is the orchestration layer's
// policy, not the registry's.
func (r *Registry) Resolve(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, ocrerror.NewEngineNotFound(name)
	}
	return e, nil
}

// IDs returns the registered engine names, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
