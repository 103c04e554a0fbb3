package mcp

import "sync"

// runBinding ties one queue item to the MCP session that submitted it and to
// the journal entry recorded for the run. Either half may be empty: a run
// submitted without a configured journal has no run ID, and a binding whose
// session disconnected keeps only the journal half.
type runBinding struct {
	sessionID string
	runID     string
}

// SessionRegistry maps queue item IDs to their run bindings. Populated when a
// session submits a workflow; consumed by the event forwarder to route queue
// notifications and settle journal entries.
type SessionRegistry struct {
	mu   sync.RWMutex
	runs map[int64]runBinding
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{runs: make(map[int64]runBinding)}
}

// Register binds a queue item to a session and an optional journal run ID.
// Re-registering an item overwrites the previous binding.
func (r *SessionRegistry) Register(itemID int64, sessionID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[itemID] = runBinding{sessionID: sessionID, runID: runID}
}

// SessionFor returns the session watching the given item, if one is attached.
func (r *SessionRegistry) SessionFor(itemID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.runs[itemID]
	if !ok || b.sessionID == "" {
		return "", false
	}
	return b.sessionID, true
}

// RunFor returns the journal run ID recorded for the given item, if any.
func (r *SessionRegistry) RunFor(itemID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.runs[itemID]
	if !ok || b.runID == "" {
		return "", false
	}
	return b.runID, true
}

// Release drops the binding for a finished item.
func (r *SessionRegistry) Release(itemID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, itemID)
}

// Remove detaches every binding held by the given session. Called when a
// session disconnects. Bindings with a journal run ID stay alive without
// their session half, so terminal outcomes still land in the journal.
func (r *SessionRegistry) Remove(sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.runs {
		if b.sessionID != sessionID {
			continue
		}
		if b.runID == "" {
			delete(r.runs, id)
			continue
		}
		b.sessionID = ""
		r.runs[id] = b
	}
}
