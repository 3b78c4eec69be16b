package calllog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Defaults for Pruner.
const (
	DefaultPruneSchedule = "0 3 * * *"
	DefaultRetention     = 30 * 24 * time.Hour
)

// Pruner periodically deletes calls older than the retention window.
type Pruner struct {
	store     *Store
	schedule  cron.Schedule
	retention time.Duration
	now       func() time.Time
}

// PrunerOpts holds parameters for creating a Pruner.
type PrunerOpts struct {
	Store     *Store
	Schedule  string           // 5-field cron; defaults to DefaultPruneSchedule
	Retention time.Duration    // defaults to DefaultRetention
	Now       func() time.Time // defaults to time.Now
}

// NewPruner creates a Pruner. The schedule is validated up front.
func NewPruner(opts PrunerOpts) (*Pruner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("calllog: store is required")
	}
	expr := opts.Schedule
	if expr == "" {
		expr = DefaultPruneSchedule
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("calllog: parse schedule %q: %w", expr, err)
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pruner{store: opts.Store, schedule: sched, retention: retention, now: now}, nil
}

// Next returns the duration until the next scheduled prune.
func (p *Pruner) Next() time.Duration {
	now := p.now()
	d := p.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// PruneOnce deletes everything older than the retention window.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	return p.store.Prune(ctx, p.now().Add(-p.retention))
}

// Run prunes on schedule until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	timer := time.NewTimer(p.Next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			n, err := p.PruneOnce(ctx)
			if err != nil {
				log.Printf("calllog: scheduled prune: %v", err)
			} else if n > 0 {
				log.Printf("calllog: pruned %d calls older than %s", n, p.retention)
			}
			timer.Reset(p.Next())
		}
	}
}
