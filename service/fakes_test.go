package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

var kottakkal = models.Location{Label: "Kottakkal, Kerala", Latitude: 10.5276, Longitude: 76.2144}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeTables is an in-memory TableStore.
type fakeTables struct {
	mu        sync.Mutex
	clock     Clock
	seq       int
	records   []models.Record
	inserts   []models.Record
	insertErr error
	selectErr error
	countErr  error
	selects   int
}

func newFakeTables(clock Clock) *fakeTables {
	return &fakeTables{clock: clock}
}

func (f *fakeTables) Insert(_ context.Context, table string, record models.Record) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, copyRecord(record))
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.seq++
	stored := copyRecord(record)
	stored["id"] = fmt.Sprintf("report-%03d", f.seq)
	stored["created_at"] = f.clock.Now()
	f.records = append(f.records, stored)
	return copyRecord(stored), nil
}

func (f *fakeTables) Select(_ context.Context, table, orderBy string, dir models.Direction) ([]models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects++
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	out := make([]models.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, copyRecord(r))
	}
	return out, nil
}

func (f *fakeTables) Count(_ context.Context, table string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.records), nil
}

func (f *fakeTables) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts)
}

func (f *fakeTables) selectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects
}

func copyRecord(r models.Record) models.Record {
	out := make(models.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// fakeUploader records calls and optionally blocks until released.
type fakeUploader struct {
	mu      sync.Mutex
	url     string
	err     error
	names   []string
	data    [][]byte
	entered chan struct{}
	release chan struct{}
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, name string) (string, error) {
	u.mu.Lock()
	u.names = append(u.names, name)
	u.data = append(u.data, data)
	u.mu.Unlock()

	if u.entered != nil {
		u.entered <- struct{}{}
	}
	if u.release != nil {
		<-u.release
	}
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.names)
}

// fakeObjects is an in-memory ObjectStore.
type fakeObjects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	returnURL    bool
	err          error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, contentTypes: map[string]string{}, returnURL: true}
}

func (o *fakeObjects) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	o.objects[key] = data
	o.contentTypes[key] = contentType
	if !o.returnURL {
		return "", nil
	}
	return o.PublicURLFor(key), nil
}

func (o *fakeObjects) PublicURLFor(key string) string {
	return "https://cdn.example.com/reports-images/" + key
}

// fakePublisher collects published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
	err    error
}

func (p *fakePublisher) Publish(message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message)
	return p.err
}

// countingRefresher wraps a Refresher and counts calls.
type countingRefresher struct {
	mu    sync.Mutex
	next  Refresher
	err   error
	calls int
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if r.next == nil {
		return nil
	}
	return r.next.Refresh(ctx)
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// harness wires a workflow over fakes.
type harness struct {
	clock     *fakeClock
	tables    *fakeTables
	uploader  *fakeUploader
	publisher *fakePublisher
	feed      *Feed
	refresher *countingRefresher
	workflow  *Workflow
	form      *Form
}

func newHarness() *harness {
	h := &harness{
		clock:     newFakeClock(),
		uploader:  &fakeUploader{url: "https://cdn.example.com/reports-images/photo.jpg"},
		publisher: &fakePublisher{},
	}
	h.tables = newFakeTables(h.clock)
	store := NewReportStore(h.tables, "reports")
	h.feed = NewFeed(store)
	h.refresher = &countingRefresher{next: h.feed}
	h.workflow = NewWorkflow(Dependencies{
		Uploader:  h.uploader,
		Store:     store,
		Feed:      h.refresher,
		Publisher: h.publisher,
		Clock:     h.clock,
		Location:  kottakkal,
	})
	h.form = h.workflow.NewForm()
	return h
}
