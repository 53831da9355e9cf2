package gateway

import (
	"context"
	"log"
	"time"

	"github.com/ewancrowle/hpsdr-gateway/internal/persistence"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

// Reaper implements spec.md §4.F: a periodic task that scans the
// session table for expired and idle sessions and terminates them.
type Reaper struct {
	tbl         *session.Table
	hook        persistence.Hook
	period      time.Duration
	idleTimeout time.Duration
}

// NewReaper constructs a Reaper. hook may be persistence.NoopHook{}.
func NewReaper(tbl *session.Table, hook persistence.Hook, period, idleTimeout time.Duration) *Reaper {
	return &Reaper{tbl: tbl, hook: hook, period: period, idleTimeout: idleTimeout}
}

// Run ticks every r.period until ctx is cancelled. On shutdown it
// completes its current tick, if any, and returns.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick collects victim keys under the table's lock, releases it, then
// terminates one at a time — the session table must never hold its
// write lock across the external I/O a terminate hook might perform.
func (r *Reaper) tick(ctx context.Context) {
	now := time.Now()
	expired, idle := r.tbl.Sweep(now, r.idleTimeout)

	for _, clientEp := range expired {
		r.tbl.Terminate(clientEp, "expired", now)
		r.tbl.Stats.ExpiredSessions.Add(1)
	}
	for _, clientEp := range idle {
		r.tbl.Terminate(clientEp, "idle_timeout", now)
		r.tbl.Stats.IdleTimeouts.Add(1)
	}

	if len(expired) > 0 || len(idle) > 0 {
		log.Printf("reaper: terminated %d expired, %d idle sessions", len(expired), len(idle))
	}

	if r.hook != nil {
		if err := r.hook.CleanupExpired(ctx); err != nil {
			log.Printf("reaper: cleanup_expired hook failed: %v", err)
		}
	}
}

// StatsFlusher periodically hands the session table's counter
// snapshots to the persistence hook (the "counters-flusher" background
// task of spec.md §5).
type StatsFlusher struct {
	tbl      *session.Table
	hook     persistence.Hook
	interval time.Duration
}

func NewStatsFlusher(tbl *session.Table, hook persistence.Hook, interval time.Duration) *StatsFlusher {
	return &StatsFlusher{tbl: tbl, hook: hook, interval: interval}
}

func (f *StatsFlusher) Run(ctx context.Context) {
	if f.hook == nil {
		return
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshots := f.tbl.Snapshots(time.Now())
			if err := f.hook.RecordStatsInterval(ctx, snapshots); err != nil {
				log.Printf("stats flusher: record_stats_interval failed: %v", err)
			}
		}
	}
}
