package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applifix/backend/internal/rules"
)

// Store keeps live sessions in process memory. Each session carries its own
// lock, so messages for different sessions are handled in parallel.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	recognizer *Recognizer
	now        func() time.Time
}

func NewStore(r *rules.KeywordRules) *Store {
	return &Store{
		sessions:   map[string]*Session{},
		recognizer: NewRecognizer(r),
		now:        time.Now,
	}
}

func (s *Store) Recognizer() *Recognizer {
	return s.recognizer
}

// GetOrCreate returns the session for id, creating it when missing. An empty
// id allocates a new random one.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess = NewSession(id, s.recognizer)
	sess.now = s.now
	sess.Reset()
	s.sessions[id] = sess
	return sess, true
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// With runs fn while holding the session lock.
func (s *Store) With(id string, fn func(*Session) error) (string, error) {
	sess, _ := s.GetOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.ID, fn(sess)
}

// View runs fn on an existing session under its lock. It reports false when
// the session does not exist.
func (s *Store) View(id string, fn func(*Session)) bool {
	sess, ok := s.Get(id)
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	fn(sess)
	return true
}

// EvictIdle drops sessions not updated within ttl. Sessions busy handling a
// message are skipped and picked up by a later sweep.
func (s *Store) EvictIdle(ttl time.Duration) int {
	cutoff := s.now().UTC().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
