package mongodb

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nimburion/dataaccess/pkg/observability/logger"
)

func TestNewAdapter_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty url and database", cfg: Config{}},
		{name: "empty database", cfg: Config{URL: "mongodb://localhost:27017"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAdapter(tt.cfg, logger.Nop()); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestPing_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected error when adapter is closed")
	}
}

func TestStartSession_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if _, err := a.StartSession(); err == nil {
		t.Fatal("expected error when adapter is closed")
	}
}

func TestWithSession_WhenClosedSkipsCallback(t *testing.T) {
	a := &Adapter{closed: true}
	called := false
	err := a.WithSession(context.Background(), func(context.Context, mongo.Session) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error when adapter is closed")
	}
	if called {
		t.Fatal("callback must not run without a session")
	}
}

func TestClose_IdempotentWhenAlreadyClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if err := a.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
	if a.OperationTimeout() != 2*time.Second {
		t.Fatalf("expected operation timeout 2s, got %v", a.OperationTimeout())
	}
}

func TestWithOperationTimeout_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := a.withOperationTimeout(parentCtx)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}
