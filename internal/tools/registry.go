package tools

import (
	"sort"

	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/llm"
)

// Registry keeps the in-process tools. Registration happens once at
// container construction; the rest of the system sees a read-only view.
type Registry struct {
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register rejects duplicate names so wiring mistakes surface at startup.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.byName[t.Name()]; exists {
		return faults.Newf(faults.Config, "tool %q registered twice", t.Name())
	}
	r.byName[t.Name()] = t
	return nil
}

// MustRegister panics on duplicate registration; used from container wiring.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns LLM descriptors for the named subset; nil selects all.
func (r *Registry) Schemas(names []string) []llm.ToolSchema {
	if names == nil {
		names = r.Names()
	}
	out := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		if t, ok := r.byName[name]; ok {
			out = append(out, Schema(t))
		}
	}
	return out
}
