package ksatagent

import "sync"

// ResultStore holds at most one current artifact
type ResultStore struct {
	mu       sync.RWMutex
	artifact *Artifact
}

// NewResultStore creates an empty result store
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Set replaces the current artifact
func (rs *ResultStore) Set(a *Artifact) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.artifact = a
}

// Get returns the current artifact, if any
func (rs *ResultStore) Get() (*Artifact, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.artifact, rs.artifact != nil
}

// Clear drops the current artifact
func (rs *ResultStore) Clear() {
	rs.Set(nil)
}
