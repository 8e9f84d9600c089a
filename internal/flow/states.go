package flow

import "sync"

// StateStore holds one flow slot per conversation and the per-conversation
// lock that serializes read-modify-write cycles on it. Engines acquire the
// lock for the whole advance, including the terminal collaborator call, so
// back-to-back events for the same conversation never interleave.
type StateStore struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	// seq serializes whole operations on this conversation.
	seq sync.Mutex
	// stateMu guards the fields below for lock-free readers like ActiveKind.
	stateMu sync.Mutex
	state   State
	active  bool
}

// NewStateStore builds an empty store.
func NewStateStore() *StateStore {
	return &StateStore{slots: make(map[int64]*slot)}
}

func (s *StateStore) slotFor(id int64) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{}
		s.slots[id] = sl
	}
	return sl
}

// Lock acquires the conversation's serialization lock and returns the
// unlock function.
func (s *StateStore) Lock(id int64) func() {
	sl := s.slotFor(id)
	sl.seq.Lock()
	return sl.seq.Unlock
}

// Get returns the active state, if any. Callers that intend to modify the
// state must hold the conversation lock across Get and Set.
func (s *StateStore) Get(id int64) (State, bool) {
	sl := s.slotFor(id)
	sl.stateMu.Lock()
	defer sl.stateMu.Unlock()
	if !sl.active {
		return State{}, false
	}
	return sl.state, true
}

// Set replaces the conversation's state.
func (s *StateStore) Set(id int64, st State) {
	sl := s.slotFor(id)
	sl.stateMu.Lock()
	sl.state = st
	sl.active = st.Kind != KindNone
	sl.stateMu.Unlock()
}

// Clear removes the conversation's state; idempotent.
func (s *StateStore) Clear(id int64) {
	sl := s.slotFor(id)
	sl.stateMu.Lock()
	sl.state = State{}
	sl.active = false
	sl.stateMu.Unlock()
}

// ActiveKind reports the kind of the conversation's live flow, if any.
func (s *StateStore) ActiveKind(id int64) (Kind, bool) {
	st, ok := s.Get(id)
	if !ok {
		return KindNone, false
	}
	return st.Kind, true
}

// Count returns the number of conversations with an active flow.
func (s *StateStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		sl.stateMu.Lock()
		if sl.active {
			n++
		}
		sl.stateMu.Unlock()
	}
	return n
}
