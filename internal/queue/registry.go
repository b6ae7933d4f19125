// Package queue runs the worker side of the job subsystem: a handler
// registry, a claim-and-dispatch loop over the durable store, retry
// backoff, panic containment, a coarse progress tracker, and the
// ticker-driven scheduler for recurring jobs.
package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mintcal/mintcal/internal/domain"
)

// JobRun is the per-execution view handed to a handler. It carries the
// claimed row's identity and payload plus a job-scoped logger and a
// progress callback; handlers never touch the store's lifecycle methods.
type JobRun struct {
	ID          string
	QueueName   string
	Attempts    int
	MaxAttempts int
	Payload     []byte

	// LastError is the error text persisted by the previous attempt,
	// empty on the first one.
	LastError string

	Log *slog.Logger

	// Progress reports coarse completion (0..100). Safe to call from the
	// handler goroutine only. May be nil in tests.
	Progress func(pct int)
}

// ReportProgress invokes the progress callback when one is attached.
func (r *JobRun) ReportProgress(pct int) {
	if r.Progress != nil {
		r.Progress(pct)
	}
}

// Handler executes jobs of one queue. Implementations receive their
// dependencies at construction and must be safe for concurrent Execute
// calls; the dispatcher runs one goroutine per claimed job.
type Handler interface {
	Name() string
	Execute(ctx domain.Context, run *JobRun) domain.Result
}

// Registry maps queue names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering two handlers for the same queue is
// a wiring bug, so it fails instead of silently replacing.
func (r *Registry) Register(h Handler) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("op=queue.register: %w: handler must have a name", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Name()]; exists {
		return fmt.Errorf("op=queue.register: %w: queue %q already has a handler", domain.ErrConflict, h.Name())
	}
	r.handlers[h.Name()] = h
	return nil
}

// MustRegister is Register for wiring code where a duplicate is fatal.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for a queue name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered queue names sorted, for startup logs.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DecodePayload unmarshals a run's payload into the handler's typed
// payload. strict rejects unknown fields; handlers for externally-sourced
// payloads use strict, maintenance handlers tolerate extras. Callers must
// map a decode error to a terminal failure, since the bytes will not
// improve on retry.
func DecodePayload[T any](run *JobRun, strict bool) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(run.Payload))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("op=queue.decode_payload: queue=%s: %w", run.QueueName, err)
	}
	return v, nil
}
