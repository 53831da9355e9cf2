// Package persistence defines the gateway's optional external audit
// contract and a Redis-backed implementation. All four operations may
// be no-ops; the core gateway must not require them to function.
package persistence

import (
	"context"

	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

// Hook is the full external persistence contract from spec.md §6.
type Hook interface {
	RecordSessionCreated(s *session.Session)
	RecordSessionTerminated(id uint64, clientEndpoint, reason string)
	RecordStatsInterval(ctx context.Context, snapshots []session.Snapshot) error
	CleanupExpired(ctx context.Context) error
}

// NoopHook implements Hook as pure no-ops, used when no persistence
// backend is configured.
type NoopHook struct{}

func (NoopHook) RecordSessionCreated(*session.Session)          {}
func (NoopHook) RecordSessionTerminated(uint64, string, string) {}
func (NoopHook) RecordStatsInterval(context.Context, []session.Snapshot) error {
	return nil
}
func (NoopHook) CleanupExpired(context.Context) error { return nil }
