package health

import (
	"context"
	"errors"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestStatusWithoutDatabase(t *testing.T) {
	checks, ok := NewService(nil).Status(context.Background())
	if !ok {
		t.Fatal("expected healthy")
	}
	if checks["database"] != "disabled" {
		t.Fatalf("database check = %q", checks["database"])
	}
}

func TestStatusReportsDatabase(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		ok     bool
		status string
	}{
		{"reachable", nil, true, "ok"},
		{"unreachable", errors.New("connection refused"), false, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Service{db: pingFunc(func(context.Context) error { return tt.ping }), timeout: defaultTimeout}
			checks, ok := s.Status(context.Background())
			if ok != tt.ok || checks["database"] != tt.status {
				t.Fatalf("got %v %q, want %v %q", ok, checks["database"], tt.ok, tt.status)
			}
		})
	}
}
