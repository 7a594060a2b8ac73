package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by the engine loop and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message // sessionID -> ordered log
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
	}
}

func (s *MemoryStore) EnsureSession(ctx context.Context, id, title string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return false, nil
	}
	s.sessions[id] = &Session{ID: id, Title: title, CreatedAt: at, UpdatedAt: at}
	return true, nil
}

func (s *MemoryStore) Session(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (s *MemoryStore) Sessions(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		c := *sess
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetTitle(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return fmt.Errorf("session %s not found", msg.SessionID)
	}
	msg.Seq = len(s.messages[msg.SessionID]) + 1
	c := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &c)
	s.sessions[msg.SessionID].UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[sessionID]
	out := make([]*Message, 0, len(log))
	for _, m := range log {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages[msg.SessionID] {
		if m.ID == msg.ID {
			c := *msg
			s.messages[msg.SessionID][i] = &c
			return nil
		}
	}
	return fmt.Errorf("message %s not found", msg.ID)
}

func (s *MemoryStore) HasRecentKey(ctx context.Context, sessionID, key string, cutoff time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[sessionID] {
		if m.Key == key && m.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Close() error { return nil }
