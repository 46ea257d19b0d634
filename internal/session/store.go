// Package session keeps per-user conversation state for multi-step workflows.
// Bags are pure process-local working memory: a restart drops every in-flight
// workflow and the user starts over.
package session

import "sync"

// Bag holds one user's in-flight workflow state: the pending step plus the
// fields accumulated by prior steps. An empty Step means the user is idle.
type Bag struct {
	Flow   string
	Step   string
	Fields map[string]any
}

// Active reports whether the bag points at a pending workflow step.
func (b Bag) Active() bool {
	return b.Step != ""
}

// Set assigns a field, allocating the map on first use.
func (b *Bag) Set(key string, value any) {
	if b.Fields == nil {
		b.Fields = make(map[string]any)
	}
	b.Fields[key] = value
}

// Value returns a field and whether it was present.
func (b Bag) Value(key string) (any, bool) {
	v, ok := b.Fields[key]
	return v, ok
}

// String returns a string field, or "" when absent or of another type.
func (b Bag) String(key string) string {
	if v, ok := b.Fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int64 returns an int64 field and whether it was present as an integer.
func (b Bag) Int64(key string) (int64, bool) {
	switch v := b.Fields[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	}
	return 0, false
}

// Int returns an int field and whether it was present as an integer.
func (b Bag) Int(key string) (int, bool) {
	v, ok := b.Int64(key)
	return int(v), ok
}

// Reset clears the step and all accumulated fields in place.
func (b *Bag) Reset() {
	b.Flow = ""
	b.Step = ""
	b.Fields = nil
}

type entry struct {
	mu  sync.Mutex
	bag Bag
}

// Store maps user IDs to session bags. Operations for the same user are
// strictly serialized: Do holds the user's lock for the whole closure,
// including any workflow effect executed inside it, so two updates for one
// user (e.g. a duplicated network retry) can never both observe the same
// step and advance it twice. Different users never block one another beyond
// the brief registry lookup.
type Store struct {
	mu    sync.Mutex
	users map[int64]*entry
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{users: make(map[int64]*entry)}
}

func (s *Store) entryFor(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID]
	if !ok {
		e = &entry{}
		s.users[userID] = e
	}
	return e
}

// Do runs fn with exclusive access to the user's bag. The bag may be mutated
// in place; mutations are visible to the next Do for the same user.
func (s *Store) Do(userID int64, fn func(bag *Bag)) {
	e := s.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.bag)
}

// Get returns a snapshot copy of the user's bag (empty bag if none exists).
func (s *Store) Get(userID int64) Bag {
	var out Bag
	s.Do(userID, func(bag *Bag) {
		out = Bag{Flow: bag.Flow, Step: bag.Step}
		if len(bag.Fields) > 0 {
			out.Fields = make(map[string]any, len(bag.Fields))
			for k, v := range bag.Fields {
				out.Fields[k] = v
			}
		}
	})
	return out
}

// Set assigns a single field in the user's bag, creating the bag if absent.
func (s *Store) Set(userID int64, key string, value any) {
	s.Do(userID, func(bag *Bag) {
		bag.Set(key, value)
	})
}

// Clear removes the user's bag entirely. It is a no-op when absent.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	e, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.bag.Reset()
	e.mu.Unlock()
}

// InProgress reports whether the user currently has a pending workflow step.
func (s *Store) InProgress(userID int64) bool {
	active := false
	s.Do(userID, func(bag *Bag) {
		active = bag.Active()
	})
	return active
}
