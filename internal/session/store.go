// Package session keeps per-chat conversation state in memory: the ordered
// turn history sent to the model as context plus the chat's model preference.
// Nothing is persisted; state is lost on restart.
package session

import "sync"

// MaxHistory bounds the number of turns kept per chat. Oldest turns are
// dropped first once the bound is exceeded.
const MaxHistory = 30

const (
	RoleUser  = "user"
	RoleModel = "model"
)

const (
	// PreferenceFlash is the default model preference.
	PreferenceFlash = "flash"
	PreferencePro   = "pro"
)

// Turn is one exchange unit in a conversation.
type Turn struct {
	Role string
	Text string
}

type state struct {
	history    []Turn
	preference string
}

// Store maps a chat id to its session state. All methods are safe for
// concurrent use; the update loop drives it single-writer per chat, the
// mutex keeps it correct if dispatch is ever parallelized.
type Store struct {
	mu         sync.Mutex
	sessions   map[int64]*state
	maxHistory int
}

func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = MaxHistory
	}
	return &Store{
		sessions:   make(map[int64]*state),
		maxHistory: maxHistory,
	}
}

func (s *Store) getOrCreateLocked(chatID int64) *state {
	st, ok := s.sessions[chatID]
	if !ok {
		st = &state{}
		s.sessions[chatID] = st
	}
	return st
}

// AppendTurn appends a turn to the chat's history, then evicts from the
// front until the history is within the bound.
func (s *Store) AppendTurn(chatID int64, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(chatID)
	st.history = append(st.history, Turn{Role: role, Text: text})
	if n := len(st.history); n > s.maxHistory {
		st.history = st.history[n-s.maxHistory:]
	}
}

// History returns a copy of the chat's history in arrival order.
func (s *Store) History(chatID int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[chatID]
	if !ok {
		return nil
	}
	return append([]Turn(nil), st.history...)
}

// Len reports the number of turns currently held for the chat.
func (s *Store) Len(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[chatID]
	if !ok {
		return 0
	}
	return len(st.history)
}

// Reset clears the chat's history. The model preference is kept. Resetting
// a chat that has no session is a no-op.
func (s *Store) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[chatID]
	if !ok {
		return
	}
	st.history = nil
}

// SetPreference records the chat's model preference.
func (s *Store) SetPreference(chatID int64, preference string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getOrCreateLocked(chatID).preference = preference
}

// Preference returns the chat's model preference, defaulting to
// PreferenceFlash when unset.
func (s *Store) Preference(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[chatID]
	if !ok || st.preference == "" {
		return PreferenceFlash
	}
	return st.preference
}
