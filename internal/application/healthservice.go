package application

import (
	"context"
	"log/slog"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus values reported by HealthService.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthReport is the outcome of one health check.
type HealthReport struct {
	Status  string
	Storage string
	Time    time.Time
}

// Healthy reports whether every dependency answered.
func (r HealthReport) Healthy() bool {
	return r.Status == HealthOK
}

// HealthService checks the service's hard dependencies for the health endpoint.
type HealthService struct {
	storage Pinger
	now     func() time.Time
}

// NewHealthService creates a new HealthService with the required dependencies.
func NewHealthService(storage Pinger) *HealthService {
	return &HealthService{
		storage: storage,
		now:     time.Now,
	}
}

// Check pings the storage backend with a short timeout.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	report := HealthReport{Status: HealthOK, Storage: HealthOK, Time: s.now().UTC()}
	if err := s.storage.Ping(ctx); err != nil {
		slog.Warn("storage health check failed", "error", err)
		report.Status = HealthDegraded
		report.Storage = HealthDegraded
	}
	return report
}
