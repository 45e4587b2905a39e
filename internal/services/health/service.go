package health

import (
	"context"
	"database/sql"
	"time"
)

const defaultTimeout = 2 * time.Second

// Pinger is a dependency whose liveness can be probed.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service encapsulates health-related checks.
type Service struct {
	db      Pinger
	timeout time.Duration
}

// NewService constructs a health service. A nil db means the process runs on
// in-memory repositories and the database check is skipped.
func NewService(db *sql.DB) *Service {
	s := &Service{timeout: defaultTimeout}
	if db != nil {
		s.db = db
	}
	return s
}

// Status reports each dependency check and whether all passed.
func (s *Service) Status(ctx context.Context) (map[string]string, bool) {
	checks := map[string]string{"process": "ok"}
	if s == nil || s.db == nil {
		checks["database"] = "disabled"
		return checks, true
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		checks["database"] = "unreachable"
		return checks, false
	}
	checks["database"] = "ok"
	return checks, true
}
