// Package preview hands out short-lived handles that let a host display an
// image's current bytes. The registry references the bytes without copying
// them; releasing the handle drops the reference.
package preview

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Handle identifies one live preview.
type Handle string

type previewEntry struct {
	data     []byte
	mimeType string
}

// Registry is an in-memory set of live preview handles.
type Registry struct {
	mu       sync.RWMutex
	items    map[Handle]*previewEntry
	logger   *logrus.Logger
	acquired atomic.Int64
	released atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{items: make(map[Handle]*previewEntry), logger: logger}
}

// Acquire registers data and returns a new handle for it.
func (r *Registry) Acquire(data []byte, mimeType string) Handle {
	h := Handle(uuid.NewString())

	r.mu.Lock()
	for {
		if _, exists := r.items[h]; !exists {
			break
		}
		h = Handle(uuid.NewString())
	}
	r.items[h] = &previewEntry{data: data, mimeType: mimeType}
	r.mu.Unlock()

	r.acquired.Add(1)
	r.logger.WithFields(logrus.Fields{"preview": h, "bytes": len(data)}).Debug("Preview acquired")
	return h
}

// Release drops the handle. It returns false when the handle is unknown or
// was already released, so a handle is only ever released once.
func (r *Registry) Release(h Handle) bool {
	r.mu.Lock()
	_, ok := r.items[h]
	if ok {
		delete(r.items, h)
	}
	r.mu.Unlock()

	if ok {
		r.released.Add(1)
		r.logger.WithField("preview", h).Debug("Preview released")
	}
	return ok
}

// Get returns the bytes and mime type behind a live handle.
func (r *Registry) Get(h Handle) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[h]
	if !ok {
		return nil, "", false
	}
	return e.data, e.mimeType, true
}

// Live returns the number of unreleased handles.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Acquired returns the total number of handles ever acquired.
func (r *Registry) Acquired() int64 {
	return r.acquired.Load()
}

// Released returns the total number of handles released.
func (r *Registry) Released() int64 {
	return r.released.Load()
}
