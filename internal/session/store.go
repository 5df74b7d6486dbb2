package session

import "sync"

// Store maps owner identity to the single in-flight edit session. The bot
// runs with one operator, but the store still serializes per-owner access so
// a multi-operator deployment would not race.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: map[int64]*Session{}}
}

func (s *Store) Get(owner int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[owner]
	return sess, ok
}

// GetOrCreate returns the owner's session, creating one in StateCollecting
// if none exists. At most one session per owner exists at any time.
func (s *Store) GetOrCreate(owner int64) (sess *Session, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[owner]; ok {
		return sess, false
	}
	sess = &Session{OwnerID: owner, State: StateCollecting}
	s.sessions[owner] = sess
	return sess, true
}

// Delete destroys the owner's session and reports whether one existed.
func (s *Store) Delete(owner int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[owner]; !ok {
		return false
	}
	delete(s.sessions, owner)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
