package ipc

import (
	"sync"
	"time"

	"github.com/arc-hci/arcgrid/internal/domain"
	"github.com/arc-hci/arcgrid/internal/editor"
)

// hostedSession pairs an editor session with the attempt it belongs to.
// mu serializes every command against the editor, which is single-threaded.
type hostedSession struct {
	mu        sync.Mutex
	attemptID string
	editor    *editor.Session
	// persisted is the highest sequence number already written to the store.
	persisted int
	lastUsed  time.Time
}

// SessionManager keeps one live editor session per attempt in the solving
// flow. Sessions live in memory only; a restarted host loses them and the
// client falls back to POST /api/v1/submissions.
type SessionManager struct {
	mu       sync.RWMutex
	cfg      editor.Config
	now      func() time.Time
	sessions map[string]*hostedSession
}

// NewSessionManager creates an empty manager. now may be nil.
func NewSessionManager(cfg editor.Config, now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		cfg:      cfg,
		now:      now,
		sessions: make(map[string]*hostedSession),
	}
}

// Open loads the task's test input into a fresh editor session for attemptID.
// Opening an attempt that already has a session returns the existing one.
func (m *SessionManager) Open(attemptID string, task domain.ARCTask) (*hostedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hs, ok := m.sessions[attemptID]; ok {
		return hs, nil
	}

	input, ok := task.TestInput()
	if !ok {
		return nil, domain.ErrNoTestInput
	}
	truth, _ := task.GroundTruth()

	s := editor.NewSession(m.cfg, m.now)
	if err := s.Load(input, truth); err != nil {
		return nil, err
	}
	hs := &hostedSession{attemptID: attemptID, editor: s, lastUsed: m.now()}
	m.sessions[attemptID] = hs
	return hs, nil
}

// Get returns the live session for attemptID.
func (m *SessionManager) Get(attemptID string) (*hostedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hs, ok := m.sessions[attemptID]
	if !ok {
		return nil, domain.ErrSessionMissing
	}
	return hs, nil
}

// Close finalizes and forgets the session for attemptID. The caller must hold
// hs.mu if it obtained hs from Get.
func (m *SessionManager) Close(attemptID string) error {
	m.mu.Lock()
	hs, ok := m.sessions[attemptID]
	delete(m.sessions, attemptID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return hs.editor.Close()
}

// touch marks hs as used now. The caller must hold hs.mu.
func (m *SessionManager) touch(hs *hostedSession) {
	hs.lastUsed = m.now()
}

// CloseIdle closes every session unused since before now minus maxIdle and
// returns the affected attempt ids.
func (m *SessionManager) CloseIdle(now time.Time, maxIdle time.Duration) []string {
	m.mu.RLock()
	candidates := make([]*hostedSession, 0, len(m.sessions))
	for _, hs := range m.sessions {
		candidates = append(candidates, hs)
	}
	m.mu.RUnlock()

	cutoff := now.Add(-maxIdle)
	var closed []string
	for _, hs := range candidates {
		hs.mu.Lock()
		if hs.lastUsed.Before(cutoff) && hs.editor.State() != domain.SessionClosed {
			if err := m.Close(hs.attemptID); err == nil {
				closed = append(closed, hs.attemptID)
			}
		}
		hs.mu.Unlock()
	}
	return closed
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
