package service

import (
	"context"
	"sync"
	"time"

	"github.com/Abhinavsb985/Smart-Traffic-Control/metrics"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// Feed is the in-memory view of all reports shown to signed-in users.
// It is only ever replaced wholesale by Refresh.
type Feed struct {
	store ReportLister

	mu          sync.RWMutex
	reports     []models.Report
	refreshedAt time.Time
	started     uint64 // refreshes begun
	applied     uint64 // newest refresh whose result is visible
	subscribers []func([]models.Report)
}

// NewFeed creates an empty feed backed by store.
func NewFeed(store ReportLister) *Feed {
	return &Feed{store: store, reports: []models.Report{}}
}

// Subscribe registers fn to be called with a copy of the reports after every
// successful refresh.
func (f *Feed) Subscribe(fn func([]models.Report)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, fn)
}

// Refresh reloads the feed from the store. On failure the previous view is
// kept. When refreshes overlap, a result older than the visible one is dropped.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.started++
	seq := f.started
	f.mu.Unlock()

	start := time.Now()
	reports, err := f.store.ListAll(ctx)
	metrics.StageDurationSeconds.WithLabelValues("refresh").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedRefreshFailuresTotal.Inc()
		return err
	}

	f.mu.Lock()
	if seq < f.applied {
		f.mu.Unlock()
		return nil
	}
	f.applied = seq
	f.reports = reports
	f.refreshedAt = time.Now()
	subscribers := append([]func([]models.Report){}, f.subscribers...)
	f.mu.Unlock()

	metrics.FeedSize.Set(float64(len(reports)))
	for _, fn := range subscribers {
		fn(cloneReports(reports))
	}
	return nil
}

// Reports returns a copy of the current view.
func (f *Feed) Reports() []models.Report {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneReports(f.reports)
}

// Count returns the number of reports in the current view.
func (f *Feed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.reports)
}

// RefreshedAt returns when the view was last replaced, zero if never.
func (f *Feed) RefreshedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.refreshedAt
}

func cloneReports(in []models.Report) []models.Report {
	out := make([]models.Report, len(in))
	copy(out, in)
	return out
}
