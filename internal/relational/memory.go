package relational

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore is a process-local Store for tests and dependency-free runs.
type memoryStore struct {
	mu            sync.Mutex
	conversations map[int64]Conversation
	messages      map[int64][]Message
	missions      map[string]MissionLog
	missionOrder  map[int64][]string
}

// NewMemory returns an in-process Store backed by maps.
func NewMemory() Store {
	return &memoryStore{
		conversations: make(map[int64]Conversation),
		messages:      make(map[int64][]Message),
		missions:      make(map[string]MissionLog),
		missionOrder:  make(map[int64][]string),
	}
}

func (s *memoryStore) EnsureConversation(_ context.Context, id int64, title string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		return c, nil
	}
	now := time.Now().UTC()
	c := Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	s.conversations[id] = c
	return c, nil
}

func (s *memoryStore) GetConversation(_ context.Context, id int64) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) AppendMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	if c, ok := s.conversations[msg.ConversationID]; ok {
		c.UpdatedAt = msg.CreatedAt
		s.conversations[msg.ConversationID] = c
	}
	return nil
}

func (s *memoryStore) ListMessages(_ context.Context, conversationID int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *memoryStore) CreateMissionLog(_ context.Context, log MissionLog) (MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Status == "" {
		log.Status = StatusPending
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	log.Query = TruncateQuery(log.Query)
	s.missions[log.ID] = log
	s.missionOrder[log.ConversationID] = append(s.missionOrder[log.ConversationID], log.ID)
	return log, nil
}

func (s *memoryStore) UpdateMissionStatus(_ context.Context, id string, status MissionStatus, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.missions[id]
	if !ok {
		return ErrNotFound
	}
	if log.Status.IsTerminal() {
		return ErrTerminalStatus
	}
	log.Status = status
	log.Response = response
	s.missions[id] = log
	return nil
}

func (s *memoryStore) GetMissionLog(_ context.Context, id string) (MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.missions[id]
	if !ok {
		return MissionLog{}, ErrNotFound
	}
	return log, nil
}

func (s *memoryStore) ListMissionLogs(_ context.Context, conversationID int64, limit int) ([]MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.missionOrder[conversationID]
	out := make([]MissionLog, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.missions[ids[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) ListRecentMissionLogs(_ context.Context, limit int) ([]MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MissionLog, 0, len(s.missions))
	for _, log := range s.missions {
		out = append(out, log)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Stats(_ context.Context) (MissionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats MissionStats
	for _, log := range s.missions {
		stats.Total++
		switch log.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *memoryStore) Close() error { return nil }
