package application

import (
	"context"

	"github.com/jobrunner/charttiler/internal/ports/input"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

// HealthService provides health check functionality.
type HealthService struct {
	registry input.ChartRegistry
	store    output.CacheStore
}

// NewHealthService creates a new health service.
func NewHealthService(registry input.ChartRegistry, store output.CacheStore) *HealthService {
	return &HealthService{
		registry: registry,
		store:    store,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true when at least one chart source is usable and the
// cache accepts writes.
func (s *HealthService) IsReady(ctx context.Context) bool {
	return s.registry.SourceCount() > 0 && s.store.Writable(ctx) == nil
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{"cache": "ok"}
	if err := s.store.Writable(ctx); err != nil {
		components["cache"] = err.Error()
	}
	for _, dir := range s.registry.Directories() {
		status := "ok"
		if dir.Error != "" {
			status = dir.Error
		}
		components["charts:"+dir.Path] = status
	}

	sources := s.registry.SourceCount()
	return input.HealthDetails{
		Healthy:       s.IsHealthy(ctx),
		Ready:         sources > 0 && components["cache"] == "ok",
		SourcesLoaded: sources,
		Components:    components,
	}
}
