package pipeline

import "sort"

type Factory func() Pipeline

type Registry struct{ pipelines map[string]Factory }

func NewRegistry() *Registry { return &Registry{pipelines: map[string]Factory{}} }

func (r *Registry) Register(name string, factory Factory) { r.pipelines[name] = factory }

// Names lists registered pipelines in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.pipelines))
	for k := range r.pipelines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Create(name string) (Pipeline, bool) {
	f, ok := r.pipelines[name]
	if !ok {
		return nil, false
	}
	return f(), true
}
