// Package sharing holds translations that wait for the sender's confirmation
// before they are published.
package sharing

import (
	"errors"
	"sync"
	"time"
)

// ErrNoPendingTranslation is returned when a conversation has nothing to
// confirm or deny.
var ErrNoPendingTranslation = errors.New("no pending translation")

// State is the sharing state of one conversation.
type State int

const (
	NoPending State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "no_pending"
}

// PendingTranslation is a translation awaiting confirmation.
type PendingTranslation struct {
	ConversationID string
	OriginalText   string
	TranslatedText string
	CreatedAt      time.Time
}

type slot struct {
	mu      sync.Mutex
	pending *PendingTranslation
}

// Store keeps at most one pending translation per conversation. Operations
// on the same conversation are serialized; different conversations only
// share the brief slot lookup.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot

	ttl time.Duration
	now func() time.Time
}

// NewStore creates a store. Entries older than ttl are treated as absent;
// ttl <= 0 disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		slots: make(map[string]*slot),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *Store) slot(conversationID string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[conversationID]
	if !ok {
		sl = &slot{}
		s.slots[conversationID] = sl
	}
	return sl
}

func (s *Store) expired(p *PendingTranslation) bool {
	return s.ttl > 0 && s.now().Sub(p.CreatedAt) >= s.ttl
}

// StoreTranslation moves the conversation to Pending. An existing pending
// translation is replaced; replaced reports whether that happened.
func (s *Store) StoreTranslation(conversationID, original, translated string) (pending PendingTranslation, replaced bool) {
	sl := s.slot(conversationID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	replaced = sl.pending != nil && !s.expired(sl.pending)
	pending = PendingTranslation{
		ConversationID: conversationID,
		OriginalText:   original,
		TranslatedText: translated,
		CreatedAt:      s.now(),
	}
	sl.pending = &pending
	return pending, replaced
}

// Confirm takes the pending translation out of the store. Of any number of
// concurrent Confirm/Deny calls for one conversation, only one succeeds.
func (s *Store) Confirm(conversationID string) (PendingTranslation, error) {
	p, err := s.take(conversationID)
	if err != nil {
		return PendingTranslation{}, err
	}
	return *p, nil
}

// Deny discards the pending translation.
func (s *Store) Deny(conversationID string) error {
	_, err := s.take(conversationID)
	return err
}

// Clear drops any pending translation without reporting whether one existed.
func (s *Store) Clear(conversationID string) {
	_, _ = s.take(conversationID)
}

func (s *Store) take(conversationID string) (*PendingTranslation, error) {
	sl := s.slot(conversationID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	p := sl.pending
	sl.pending = nil
	if p == nil || s.expired(p) {
		return nil, ErrNoPendingTranslation
	}
	return p, nil
}

// Peek returns the pending translation without changing state.
func (s *Store) Peek(conversationID string) (PendingTranslation, bool) {
	sl := s.slot(conversationID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.pending == nil || s.expired(sl.pending) {
		return PendingTranslation{}, false
	}
	return *sl.pending, true
}

// State reports the current state of a conversation.
func (s *Store) State(conversationID string) State {
	if _, ok := s.Peek(conversationID); ok {
		return Pending
	}
	return NoPending
}

// Len counts conversations in the Pending state.
func (s *Store) Len() int {
	s.mu.Lock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.Unlock()

	count := 0
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.pending != nil && !s.expired(sl.pending) {
			count++
		}
		sl.mu.Unlock()
	}
	return count
}
