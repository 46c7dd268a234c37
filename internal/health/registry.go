package health

import "context"

// Registry manages the health collectors surfaced by the status endpoint.
type Registry struct {
	collectors []Collector
}

// NewRegistry creates a registry over the given collectors.
func NewRegistry(collectors ...Collector) *Registry {
	return &Registry{collectors: collectors}
}

// Register adds a collector to the registry.
func (r *Registry) Register(collector Collector) {
	r.collectors = append(r.collectors, collector)
}

// Snapshot runs every collector and returns the non-nil results keyed by
// collector name. Collectors that fail are simply absent from the result.
func (r *Registry) Snapshot(ctx context.Context) map[string]interface{} {
	snapshot := make(map[string]interface{}, len(r.collectors))
	for _, collector := range r.collectors {
		if value := collector.Collect(ctx); value != nil {
			snapshot[collector.Name()] = value
		}
	}
	return snapshot
}
