// Package jobs owns the process-local table of named recurring tasks.
// The registry guarantees at most one live cron entry per name; it knows
// nothing about what the tasks do.
package jobs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Status describes one registered job for diagnostics.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"nextRun"`
	Scheduled bool      `json:"scheduled"`
}

type entry struct {
	id       cron.EntryID
	schedule string
}

// Registry maps job names to cron entries. All jobs share one cron
// runner; SkipIfStillRunning keeps each named job single-flight without
// serializing different jobs against each other.
type Registry struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]entry
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		logger:  logger,
	}
	r.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	r.cron.Start()
	return r
}

// Register schedules task under name. An existing entry for the same
// name is removed first, so its timer can never fire again after this
// call returns.
func (r *Registry) Register(name, schedule string, task func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[name]; ok {
		r.cron.Remove(old.id)
		delete(r.entries, name)
	}

	id, err := r.cron.AddFunc(schedule, task)
	if err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}
	r.entries[name] = entry{id: id, schedule: schedule}
	r.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// Stop removes the named job. It is idempotent: stopping an unknown
// name reports false without error.
func (r *Registry) Stop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return false
	}
	r.cron.Remove(e.id)
	delete(r.entries, name)
	r.logger.Info("job stopped", "job", name)
	return true
}

// Has reports whether a job is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// NextRun returns the next fire time of the named job, as known to the
// underlying timer. This is the authoritative schedule; persisted
// next-run values are derived from it.
func (r *Registry) NextRun(name string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return time.Time{}, false
	}
	next := r.cron.Entry(e.id).Next
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Active returns a status snapshot of every registered job.
func (r *Registry) Active() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]Status, 0, len(r.entries))
	for name, e := range r.entries {
		ce := r.cron.Entry(e.id)
		statuses = append(statuses, Status{
			Name:      name,
			Running:   ce.Valid(),
			Schedule:  e.schedule,
			NextRun:   ce.Next,
			Scheduled: true,
		})
	}
	return statuses
}

// Count returns the number of registered jobs.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// StopAll removes every job and halts the cron runner. It blocks until
// in-flight callbacks finish, so no timer fires after process shutdown
// proceeds past this call.
func (r *Registry) StopAll() {
	r.mu.Lock()
	for name, e := range r.entries {
		r.cron.Remove(e.id)
		delete(r.entries, name)
		r.logger.Info("job stopped", "job", name)
	}
	r.mu.Unlock()

	<-r.cron.Stop().Done()
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
