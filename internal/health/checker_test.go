package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dperdic/s3-asset-manager-vault/internal/token"
	"github.com/dperdic/s3-asset-manager-vault/internal/vault"
	"go.uber.org/zap"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newLedger(t *testing.T) *vault.MemoryLedger {
	t.Helper()
	engine := token.NewMemoryEngine(zap.NewNop())
	return vault.NewMemoryLedger(engine, zap.NewNop())
}

func TestChecker_healthyLedger(t *testing.T) {
	c := New(newLedger(t), nil, Config{Interval: time.Hour}, zap.NewNop())

	var recorded []bool
	c.SetAuditRecord(func(ok bool) { recorded = append(recorded, ok) })

	c.check(context.Background())

	st := c.Status()
	if !st.Healthy {
		t.Errorf("expected healthy, got %+v", st)
	}
	if st.LastCheck.IsZero() {
		t.Error("last check time not set")
	}
	if len(recorded) != 1 || !recorded[0] {
		t.Errorf("audit record = %v, want [true]", recorded)
	}
}

func TestChecker_pingFailure(t *testing.T) {
	pingErr := errors.New("connection refused")
	c := New(newLedger(t), stubPinger{err: pingErr}, Config{}, zap.NewNop())

	c.check(context.Background())

	st := c.Status()
	if st.Healthy {
		t.Error("expected unhealthy status on ping failure")
	}
	if st.Error != pingErr.Error() {
		t.Errorf("error = %q, want %q", st.Error, pingErr.Error())
	}
}

func TestChecker_runStopsOnCancel(t *testing.T) {
	c := New(newLedger(t), nil, Config{Interval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if !c.Status().Healthy {
		t.Errorf("expected healthy status, got %+v", c.Status())
	}
}
