package ksatagent

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the state of one user session: the progress of its current job
// and the artifact it is looking at.
type Session struct {
	ID        string
	CreatedAt time.Time
	Results   *ResultStore

	mu         sync.RWMutex
	tasks      *TaskList
	requestID  string
	generating bool
	lastErr    error
	closed     bool
}

// NewSession creates a session with a fresh ID
func NewSession() *Session {
	return newSessionWithID(uuid.NewString())
}

func newSessionWithID(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Results:   NewResultStore(),
		tasks:     NewTaskList(nil),
	}
}

// ErrJobRunning is returned by Begin while the session's current job is still generating
var ErrJobRunning = errors.New("a generation job is already running")

// Begin starts a new job with numQuestions questions, replacing the task list.
// The returned request ID must accompany the job's delivery. Begin fails with
// ErrJobRunning while another job is generating.
func (s *Session) Begin(numQuestions int) (string, *TaskList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generating {
		return "", nil, ErrJobRunning
	}
	s.requestID = uuid.NewString()
	s.tasks = InitTaskList(numQuestions)
	s.generating = true
	s.lastErr = nil
	return s.requestID, s.tasks, nil
}

// Tasks returns the task list of the current job
func (s *Session) Tasks() *TaskList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks
}

// IsCurrent reports whether requestID is the live job of an open session
func (s *Session) IsCurrent(requestID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && requestID != "" && requestID == s.requestID
}

// Deliver stores the artifact of job requestID. Deliveries from a replaced
// job or a closed session are dropped and false is returned.
func (s *Session) Deliver(requestID string, a *Artifact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || requestID == "" || requestID != s.requestID {
		Logger().Infow("dropping stale delivery", "session", s.ID, "request", requestID)
		return false
	}
	s.Results.Set(a)
	s.generating = false
	return true
}

// Fail records the terminal error of job requestID
func (s *Session) Fail(requestID string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || requestID != s.requestID {
		return false
	}
	s.generating = false
	s.lastErr = err
	return true
}

// LoadSaved replaces the current artifact with a loaded one. Any job still in
// flight loses its right to deliver and its progress is no longer shown.
func (s *Session) LoadSaved(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestID = ""
	s.generating = false
	s.tasks = NewTaskList(nil)
	s.Results.Set(a)
}

// State returns whether a job is running and the last job error
func (s *Session) State() (generating bool, lastErr error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generating, s.lastErr
}

// Close ends the session; later deliveries are discarded
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.generating = false
}

// SessionManager keeps the live sessions of a server
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Get returns the session with id
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// GetOrCreate returns the session with id, creating it when missing.
// An empty id always creates a new session.
func (sm *SessionManager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, ok := sm.Get(id); ok {
			return s
		}
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if id != "" {
		if s, ok := sm.sessions[id]; ok {
			return s
		}
	} else {
		id = uuid.NewString()
	}
	s := newSessionWithID(id)
	sm.sessions[id] = s
	return s
}

// Remove closes and forgets the session with id
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Len returns the number of live sessions
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
