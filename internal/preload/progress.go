package preload

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Event struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	Locator string    `json:"locator,omitempty"`
	At      time.Time `json:"at"`
}

// Progress is immutable snapshot of one preload run.
type Progress struct {
	RunID     string   `json:"run_id"`
	Provider  string   `json:"-"`
	Loaded    int      `json:"loaded"`
	Total     int      `json:"total"`
	IsLoading bool     `json:"is_loading"`
	Events    []Event  `json:"events"`
	Locators  []string `json:"locators,omitempty"` // working set in listing order
}

func (p *Progress) Errors() int {
	n := 0
	for _, e := range p.Events {
		if e.Status == StatusError {
			n++
		}
	}
	return n
}

func (p *Progress) Done() bool { return !p.IsLoading }

type Observer interface {
	OnProgress(Progress)
}

type ObserverFunc func(Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// Observers fans out snapshots, nil entries skipped.
type Observers []Observer

func (self Observers) OnProgress(p Progress) {
	for _, o := range self {
		if o != nil {
			o.OnProgress(p)
		}
	}
}

// run holds mutable state scoped to single Preload call.
// Observer is called under lock, so snapshots arrive in completion order.
type run struct {
	mu       sync.Mutex
	obs      Observer
	progress Progress
	counted  map[string]struct{}
	now      func() time.Time
}

func newRun(provider string, obs Observer) *run {
	return &run{
		obs: obs,
		progress: Progress{
			RunID:    xid.New().String(),
			Provider: provider,
		},
		counted: make(map[string]struct{}),
		now:     time.Now,
	}
}

// fail ends run before any item started.
func (r *run) fail(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Total = 0
	r.progress.IsLoading = false
	r.appendLocked(StatusError, "", message)
	r.notifyLocked()
}

func (r *run) begin(locators []string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Locators = locators
	r.progress.Total = len(locators)
	r.progress.IsLoading = true
	r.appendLocked(StatusLoading, "", message)
	r.notifyLocked()
}

func (r *run) success(locator, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counted[locator]; ok {
		return
	}
	r.counted[locator] = struct{}{}
	r.progress.Loaded++
	r.appendLocked(StatusSuccess, locator, message)
	r.notifyLocked()
}

func (r *run) failItem(locator, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counted[locator]; ok {
		return
	}
	r.counted[locator] = struct{}{}
	r.appendLocked(StatusError, locator, message)
	r.notifyLocked()
}

func (r *run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.IsLoading = false
	r.notifyLocked()
}

func (r *run) snapshot() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *run) appendLocked(status Status, locator, message string) {
	r.progress.Events = append(r.progress.Events, Event{
		Status:  status,
		Message: message,
		Locator: locator,
		At:      r.now(),
	})
}

func (r *run) snapshotLocked() Progress {
	p := r.progress
	p.Events = append([]Event(nil), r.progress.Events...)
	p.Locators = append([]string(nil), r.progress.Locators...)
	return p
}

func (r *run) notifyLocked() {
	if r.obs != nil {
		r.obs.OnProgress(r.snapshotLocked())
	}
}
