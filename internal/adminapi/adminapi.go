// Package adminapi exposes the task queue's read-only status surface: plain
// functions a CLI can call directly, and a minimal net/http mux an operator
// can scrape. It never mutates queue state.
package adminapi

import (
	"context"

	"github.com/basket/taskqueue/internal/manager"
)

// Status returns the full aggregate status across every known channel.
func Status(ctx context.Context, mgr *manager.Manager, simple bool) (manager.Status, error) {
	return mgr.GetStatus(ctx, simple)
}

// ChannelStatus returns the pending/running/completed/error counts for a
// single channel.
func ChannelStatus(ctx context.Context, mgr *manager.Manager, channel string) (manager.ChannelStatus, error) {
	return mgr.GetChannelStatus(ctx, channel)
}

// ActiveRunners returns every registered runner, with stale entries past
// threshold relabeled "timeout".
func ActiveRunners(ctx context.Context, mgr *manager.Manager) (map[string]manager.RunnerDescriptor, error) {
	return mgr.GetActiveRunners(ctx)
}
