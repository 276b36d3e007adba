package engine

import (
	"sync"

	"github.com/hctoledo/wachannel/domains/chatstorage"
	"github.com/hctoledo/wachannel/domains/link"
	"github.com/sirupsen/logrus"
)

// Handle is the in-memory state of one active session.
type Handle struct {
	SessionID   string
	UserID      string
	Link        link.DeviceLink
	Status      chatstorage.SessionStatus
	QRCode      string
	PhoneNumber string
	Generation  uint64
}

// Registry maps session IDs to their live handles. Only sessions that are
// connecting or connected live here, lookups against anything else miss.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Put registers a handle, terminating any previous link for the same
// session so a stale connection can never outlive its replacement.
func (r *Registry) Put(handle *Handle) {
	r.mu.Lock()
	prev, ok := r.handles[handle.SessionID]
	r.handles[handle.SessionID] = handle
	r.mu.Unlock()

	if ok && prev.Link != nil && prev.Link != handle.Link {
		logrus.Warnf("[REGISTRY] Replacing live link for session %s, terminating previous", handle.SessionID)
		prev.Link.Terminate()
	}
}

func (r *Registry) Get(sessionID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[sessionID]
	return handle, ok
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.handles, sessionID)
	r.mu.Unlock()
}

func (r *Registry) SetStatus(sessionID string, status chatstorage.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[sessionID]; ok {
		handle.Status = status
	}
}

func (r *Registry) SetQRCode(sessionID, qrCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[sessionID]; ok {
		handle.QRCode = qrCode
	}
}

func (r *Registry) SetPhoneNumber(sessionID, phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[sessionID]; ok {
		handle.PhoneNumber = phone
	}
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
