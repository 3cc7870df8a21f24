// Package registry tracks the live authenticated connections of the fleet,
// keyed by device udid. It is the single shared handle between the
// per-connection sessions, which bind and unbind themselves, and the push
// notifier, which looks up a device's writable end for server-initiated
// frames.
package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

// FrameWriter is the writable end of a live session. Implementations must
// serialize concurrent writes.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// Registry maps device udids to the writable end of their session. A udid
// appears at most once; a later login supersedes the previous entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]FrameWriter
	logger   zerolog.Logger
}

// New creates an empty Registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]FrameWriter),
		logger:   logger.With().Str("com", "registry").Logger(),
	}
}

// Bind associates udid with w, superseding any previous entry. The
// superseded connection is not closed: its read loop keeps running until
// the peer drops it, which lets a watch reconnect over a fresh link while
// the stale one decays.
func (r *Registry) Bind(udid string, w FrameWriter) {
	r.mu.Lock()
	_, superseded := r.sessions[udid]
	r.sessions[udid] = w
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info().
		Str("udid", udid).
		Bool("superseded", superseded).
		Int("connections", count).
		Msg("device bound")
}

// Unbind removes udid's entry, but only when it still points at w. A
// session tearing down after being superseded must not evict its
// replacement.
func (r *Registry) Unbind(udid string, w FrameWriter) {
	r.mu.Lock()
	current, ok := r.sessions[udid]
	if ok && current == w {
		delete(r.sessions, udid)
	} else {
		ok = false
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.logger.Info().
			Str("udid", udid).
			Int("connections", count).
			Msg("device unbound")
	}
}

// Get returns the writable end registered for udid.
func (r *Registry) Get(udid string) (FrameWriter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.sessions[udid]
	return w, ok
}

// Count reports the number of bound devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
