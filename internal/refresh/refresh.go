// Package refresh keeps the view's event snapshot current: an on-demand
// Refresher, a cron Scheduler and a file Watcher for local ICS sources.
package refresh

import (
	"context"
	"errors"
	"sync"

	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/source"
)

// Target receives each new snapshot.
type Target interface {
	LoadEvents(events []model.Event)
}

// ErrAllSourcesFailed means no source answered; the previous snapshot is kept.
var ErrAllSourcesFailed = errors.New("refresh: all sources failed")

// Result summarizes one refresh.
type Result struct {
	Events  int
	Sources int
	Failed  int
}

// Refresher fetches every source and hands the merged collection to the
// target. Concurrent calls are serialized so snapshots arrive in order.
type Refresher struct {
	mu      sync.Mutex
	sources []source.Source
	target  Target
}

func New(sources []source.Source, target Target) *Refresher {
	return &Refresher{sources: sources, target: target}
}

// Refresh replaces the target's snapshot with the merged collection from
// all sources that answered. Per-source failures are logged. When every
// source fails the target is not touched and ErrAllSourcesFailed is
// returned joined with each source's error.
func (r *Refresher) Refresh(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Result{Sources: len(r.sources)}
	events, errs := source.FetchAll(ctx, r.sources)
	res.Failed = len(errs)
	for _, err := range errs {
		appLog.Error("source refresh failed", err)
	}

	if len(r.sources) > 0 && len(errs) == len(r.sources) {
		appLog.Warn("keeping previous snapshot", "sources", len(r.sources))
		return res, errors.Join(append([]error{ErrAllSourcesFailed}, errs...)...)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Events = len(events)
	r.target.LoadEvents(events)
	appLog.Info("snapshot refreshed", "events", res.Events, "sources", res.Sources, "failed", res.Failed)
	return res, nil
}

// Paths returns the local files backing ICS sources, for the Watcher.
func (r *Refresher) Paths() []string {
	var out []string
	for _, s := range r.sources {
		if p, ok := s.(interface{ Path() string }); ok && p.Path() != "" {
			out = append(out, p.Path())
		}
	}
	return out
}
