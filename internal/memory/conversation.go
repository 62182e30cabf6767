package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxTurns is the most recent turns kept per conversation; older turns
	// are dropped FIFO.
	MaxTurns = 10

	// ConversationTTL is how long a conversation survives without activity.
	ConversationTTL = time.Hour

	// sweepEvery is the store-operation interval for the amortized
	// expired-conversation sweep.
	sweepEvery = 100
)

// Turn is one question/answer exchange plus the query and intent behind it.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Query     string    `json:"query,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	Turns          []Turn    `json:"turns"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

func (c *Conversation) expired(now time.Time, ttl time.Duration) bool {
	return now.After(c.LastActivity.Add(ttl))
}

// Stats summarizes the store contents.
type Stats struct {
	ActiveConversations int `json:"active_conversations"`
	TotalConversations  int `json:"total_conversations"`
	TotalTurns          int `json:"total_turns"`
}

// ConversationStore keeps bounded, TTL-expiring multi-turn history so
// follow-up questions can reuse prior context. Expiry is enforced lazily on
// read plus an amortized periodic sweep.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	ttl           time.Duration
	maxTurns      int
	sweepCounter  int
	logger        *zap.Logger
	now           func() time.Time
}

func NewConversationStore(logger *zap.Logger) *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*Conversation),
		ttl:           ConversationTTL,
		maxTurns:      MaxTurns,
		logger:        logger,
		now:           time.Now,
	}
}

// GetHistory returns the turns for a conversation in order, oldest first.
// An expired conversation is deleted and reported as empty.
func (s *ConversationStore) GetHistory(conversationID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	if conv.expired(s.now(), s.ttl) {
		delete(s.conversations, conversationID)
		return nil
	}

	turns := make([]Turn, len(conv.Turns))
	copy(turns, conv.Turns)
	return turns
}

// AddTurn appends a turn, creating the conversation on first use and
// truncating to the most recent maxTurns.
func (s *ConversationStore) AddTurn(conversationID, question, answer, query, intent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep()

	now := s.now()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &Conversation{
			ConversationID: conversationID,
			CreatedAt:      now,
		}
		s.conversations[conversationID] = conv
	}

	conv.Turns = append(conv.Turns, Turn{
		Question:  question,
		Answer:    answer,
		Query:     query,
		Intent:    intent,
		Timestamp: now,
	})
	conv.LastActivity = now

	if len(conv.Turns) > s.maxTurns {
		conv.Turns = conv.Turns[len(conv.Turns)-s.maxTurns:]
	}

	s.logger.Debug("conversation_turn_added",
		zap.String("conversation_id", conversationID),
		zap.Int("turn_count", len(conv.Turns)))
}

// Get returns the full conversation, or nil if absent or expired.
func (s *ConversationStore) Get(conversationID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.expired(s.now(), s.ttl) {
		return nil
	}

	out := *conv
	out.Turns = make([]Turn, len(conv.Turns))
	copy(out.Turns, conv.Turns)
	return &out
}

// Delete removes a conversation and reports whether it existed.
func (s *ConversationStore) Delete(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return false
	}
	delete(s.conversations, conversationID)
	s.logger.Info("conversation_deleted", zap.String("conversation_id", conversationID))
	return true
}

// ContextSummary formats the last three turns for inclusion in LLM prompts.
func (s *ConversationStore) ContextSummary(conversationID string) string {
	history := s.GetHistory(conversationID)
	if len(history) == 0 {
		return ""
	}

	if len(history) > 3 {
		history = history[len(history)-3:]
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation context:")
	for i, turn := range history {
		fmt.Fprintf(&sb, "\nTurn %d:", i+1)
		fmt.Fprintf(&sb, "\n  User asked: %s", truncate(turn.Question, 100))
		if turn.Intent != "" {
			fmt.Fprintf(&sb, "\n  Intent: %s", turn.Intent)
		}
		if turn.Query != "" {
			fmt.Fprintf(&sb, "\n  Query used: %s", truncate(turn.Query, 100))
		}
	}
	return sb.String()
}

func (s *ConversationStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{TotalConversations: len(s.conversations)}
	now := s.now()
	for _, conv := range s.conversations {
		if !conv.expired(now, s.ttl) {
			stats.ActiveConversations++
		}
		stats.TotalTurns += len(conv.Turns)
	}
	return stats
}

// maybeSweep removes all expired conversations every sweepEvery operations,
// bounding growth from conversations that are written once and never read.
// Callers must hold s.mu.
func (s *ConversationStore) maybeSweep() {
	s.sweepCounter++
	if s.sweepCounter < sweepEvery {
		return
	}
	s.sweepCounter = 0

	now := s.now()
	removed := 0
	for id, conv := range s.conversations {
		if conv.expired(now, s.ttl) {
			delete(s.conversations, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("conversations_swept", zap.Int("count", removed))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
