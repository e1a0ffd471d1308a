// Package health runs the periodic liveness and conservation audit loop.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/dperdic/s3-asset-manager-vault/internal/vault"
	"go.uber.org/zap"
)

// Config holds audit loop configuration.
type Config struct {
	Interval time.Duration
}

// Pinger reports storage reachability. *pgxpool.Pool satisfies it; the
// memory ledger deployment passes nil.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditRecordFunc is an optional callback for recording audit results.
type AuditRecordFunc func(ok bool)

// Status is a snapshot of the most recent audit.
type Status struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

// Checker periodically pings storage and audits ledger conservation
// (total_deposits == sum of sub-account balances for every vault).
type Checker struct {
	ledger   vault.Ledger
	pinger   Pinger
	cfg      Config
	onRecord AuditRecordFunc
	logger   *zap.Logger

	mu     sync.RWMutex
	status Status
}

// New creates a Checker.
func New(ledger vault.Ledger, pinger Pinger, cfg Config, logger *zap.Logger) *Checker {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	return &Checker{
		ledger: ledger,
		pinger: pinger,
		cfg:    cfg,
		logger: logger,
		status: Status{Healthy: true},
	}
}

// SetAuditRecord configures the audit metrics callback.
func (c *Checker) SetAuditRecord(fn AuditRecordFunc) {
	c.onRecord = fn
}

// Run audits immediately and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.check(ctx)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

// Status returns the most recent audit snapshot.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Checker) check(ctx context.Context) {
	err := c.audit(ctx)

	c.mu.Lock()
	c.status = Status{Healthy: err == nil, LastCheck: time.Now().UTC()}
	if err != nil {
		c.status.Error = err.Error()
	}
	c.mu.Unlock()

	if c.onRecord != nil {
		c.onRecord(err == nil)
	}
	if err != nil {
		c.logger.Warn("health check failed", zap.Error(err))
	}
}

func (c *Checker) audit(ctx context.Context) error {
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			return err
		}
	}
	return c.ledger.Verify(ctx)
}
