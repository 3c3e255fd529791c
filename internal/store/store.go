package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pairpad/internal/models"
)

// SessionRecord is the persisted shape of a session, supplied by the Loader
// on first access and written back by a Persister after accepted updates.
type SessionRecord struct {
	SessionID string
	Title     string
	Code      string
	Language  models.Language
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Loader hydrates session state from the persistence layer. Implementations
// return models.ErrSessionNotFound when no such session exists.
type Loader interface {
	LoadSession(ctx context.Context, sessionID string) (*SessionRecord, error)
}

// Snapshot is a point-in-time read-only view of a session, used to build the
// welcome payload for new connections.
type Snapshot struct {
	SessionID    string
	Code         string
	Version      int64
	Language     models.Language
	Participants []models.ParticipantInfo
	LastActivity time.Time
}

type rosterEntry struct {
	name  string
	conns int
}

// state is the authoritative in-memory view of one session. All mutation
// happens under its mutex; the mutex is never held across a broadcast.
type state struct {
	mu           sync.Mutex
	code         string
	version      int64
	language     models.Language
	participants map[string]*rosterEntry
	lastActivity time.Time
}

// Store owns per-session mutable state, hydrated lazily from a Loader.
// Mutations to different sessions proceed in parallel; mutations to the same
// session are serialized by the session's own lock.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*state
	loader       Loader
	dedupeRoster bool
}

func New(loader Loader, dedupeRoster bool) *Store {
	return &Store{
		sessions:     make(map[string]*state),
		loader:       loader,
		dedupeRoster: dedupeRoster,
	}
}

func (s *Store) get(sessionID string) (*state, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	return st, ok
}

// getOrLoad returns the cached state, hydrating it from the loader on first
// access. Fails with models.ErrSessionNotFound when the loader has no record.
func (s *Store) getOrLoad(ctx context.Context, sessionID string) (*state, error) {
	if st, ok := s.get(sessionID); ok {
		return st, nil
	}

	rec, err := s.loader.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another connection may have hydrated while we were loading.
	if st, ok := s.sessions[sessionID]; ok {
		return st, nil
	}
	st := &state{
		code:         rec.Code,
		language:     rec.Language,
		participants: make(map[string]*rosterEntry),
		lastActivity: time.Now(),
	}
	s.sessions[sessionID] = st
	return st, nil
}

// GetOrLoad hydrates the session if needed and returns its current snapshot.
func (s *Store) GetOrLoad(ctx context.Context, sessionID string) (Snapshot, error) {
	st, err := s.getOrLoad(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return st.snapshot(sessionID), nil
}

// Snapshot returns the session's state without hydrating it.
func (s *Store) Snapshot(sessionID string) (Snapshot, error) {
	st, ok := s.get(sessionID)
	if !ok {
		return Snapshot{}, models.ErrSessionNotFound
	}
	return st.snapshot(sessionID), nil
}

// ApplyCodeUpdate replaces the session's code, last write wins, and returns
// the incremented version.
func (s *Store) ApplyCodeUpdate(sessionID, code string) (int64, error) {
	st, ok := s.get(sessionID)
	if !ok {
		return 0, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.code = code
	st.version++
	st.lastActivity = time.Now()
	return st.version, nil
}

// ApplyLanguageChange validates the language against the enumerated set and
// records it.
func (s *Store) ApplyLanguageChange(sessionID string, language models.Language) error {
	if !language.Valid() {
		return models.ErrInvalidLanguage
	}
	st, ok := s.get(sessionID)
	if !ok {
		return models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.language = language
	st.lastActivity = time.Now()
	return nil
}

// AddParticipant registers one connection under participantID and returns the
// resulting participant count. Multiple connections under the same id occupy
// separate slots unless the store was built with roster dedupe.
func (s *Store) AddParticipant(sessionID, participantID, name string) (int, error) {
	st, ok := s.get(sessionID)
	if !ok {
		return 0, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	entry, ok := st.participants[participantID]
	if !ok {
		entry = &rosterEntry{name: name}
		st.participants[participantID] = entry
	}
	if name != "" {
		entry.name = name
	}
	entry.conns++
	st.lastActivity = time.Now()
	return s.countLocked(st), nil
}

// RemoveParticipant drops one connection's roster slot. Removing an unknown
// participant is a no-op returning the current count.
func (s *Store) RemoveParticipant(sessionID, participantID string) (int, error) {
	st, ok := s.get(sessionID)
	if !ok {
		return 0, models.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if entry, ok := st.participants[participantID]; ok {
		entry.conns--
		if entry.conns <= 0 {
			delete(st.participants, participantID)
		}
	}
	st.lastActivity = time.Now()
	return s.countLocked(st), nil
}

// ParticipantCount reports the roster size for a hydrated session, zero for
// anything else.
func (s *Store) ParticipantCount(sessionID string) int {
	st, ok := s.get(sessionID)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.countLocked(st)
}

// Evict drops the session's cached state. The persisted copy is unaffected.
func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Store) countLocked(st *state) int {
	if s.dedupeRoster {
		return len(st.participants)
	}
	total := 0
	for _, entry := range st.participants {
		total += entry.conns
	}
	return total
}

func (st *state) snapshot(sessionID string) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	participants := make([]models.ParticipantInfo, 0, len(st.participants))
	for id, entry := range st.participants {
		participants = append(participants, models.ParticipantInfo{
			ParticipantID: id,
			Name:          entry.name,
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ParticipantID < participants[j].ParticipantID
	})
	return Snapshot{
		SessionID:    sessionID,
		Code:         st.code,
		Version:      st.version,
		Language:     st.language,
		Participants: participants,
		LastActivity: st.lastActivity,
	}
}
