// Package source implements the event source collaborators: the
// scheduling server's JSON API and iCalendar feeds. Each Fetch returns the
// source's whole collection; callers replace their snapshot with it.
package source

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"calview/internal/config"
	"calview/internal/model"
)

// Source supplies the full current event collection.
type Source interface {
	ID() string
	Fetch(ctx context.Context) ([]model.Event, error)
}

// FromConfig builds sources in config order. Remote sources share one
// HTTP client and cache directory.
func FromConfig(cfgs []config.SourceConfig, cacheDir string, loc *time.Location) ([]Source, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	cacheDir = filepath.Join(cacheDir, "sources")

	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Kind {
		case config.SourceHTTP:
			out = append(out, NewHTTP(HTTPOptions{
				ID:       c.ID,
				URL:      c.URL,
				APIKey:   c.APIKey,
				Expand:   c.Expand,
				Window:   time.Duration(c.ExpandDays) * 24 * time.Hour,
				Location: loc,
				Client:   client,
				CacheDir: cacheDir,
			}))
		case config.SourceICS:
			out = append(out, NewICS(ICSOptions{
				ID:       c.ID,
				Path:     c.Path,
				URL:      c.URL,
				Location: loc,
				Client:   client,
				CacheDir: cacheDir,
			}))
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", c.ID, c.Kind)
		}
	}
	return out, nil
}

const maxParallelFetches = 4

// FetchAll fetches every source concurrently and merges the results in
// source order. Failed sources contribute no events and one error each,
// wrapped with the source ID.
func FetchAll(ctx context.Context, sources []Source) ([]model.Event, []error) {
	results := make([][]model.Event, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, src := range sources {
		g.Go(func() error {
			events, err := src.Fetch(ctx)
			if err != nil {
				failures[i] = fmt.Errorf("source %s: %w", src.ID(), err)
				return nil
			}
			results[i] = events
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]model.Event, 0)
	errs := make([]error, 0)
	for i := range sources {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		merged = append(merged, results[i]...)
	}
	return merged, errs
}
