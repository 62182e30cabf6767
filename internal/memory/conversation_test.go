package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore() *ConversationStore {
	return NewConversationStore(zap.NewNop())
}

func TestAddTurnKeepsMostRecentTen(t *testing.T) {
	store := newTestStore()

	for i := 1; i <= 11; i++ {
		store.AddTurn("conv-1",
			fmt.Sprintf("question %d", i),
			fmt.Sprintf("answer %d", i),
			"FROM sales SHOW total_sales",
			"sales")
	}

	history := store.GetHistory("conv-1")
	require.Len(t, history, MaxTurns)
	assert.Equal(t, "question 2", history[0].Question)
	assert.Equal(t, "question 11", history[len(history)-1].Question)
}

func TestGetHistoryRemovesExpiredConversation(t *testing.T) {
	store := newTestStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	store.AddTurn("conv-1", "q", "a", "", "sales")
	assert.Len(t, store.GetHistory("conv-1"), 1)

	current = current.Add(ConversationTTL + time.Minute)
	assert.Empty(t, store.GetHistory("conv-1"))

	// The expired conversation is gone even after moving time back.
	current = current.Add(-2 * time.Hour)
	assert.Empty(t, store.GetHistory("conv-1"))
}

func TestActivityExtendsLifetime(t *testing.T) {
	store := newTestStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	store.AddTurn("conv-1", "q1", "a1", "", "sales")
	current = current.Add(45 * time.Minute)
	store.AddTurn("conv-1", "q2", "a2", "", "sales")

	current = current.Add(45 * time.Minute)
	assert.Len(t, store.GetHistory("conv-1"), 2, "activity 45 minutes ago should keep the conversation alive")
}

func TestDelete(t *testing.T) {
	store := newTestStore()

	store.AddTurn("conv-1", "q", "a", "", "sales")
	assert.True(t, store.Delete("conv-1"))
	assert.False(t, store.Delete("conv-1"))
	assert.Empty(t, store.GetHistory("conv-1"))
}

func TestGetHistoryReturnsACopy(t *testing.T) {
	store := newTestStore()

	store.AddTurn("conv-1", "original", "a", "", "sales")
	history := store.GetHistory("conv-1")
	history[0].Question = "mutated"

	assert.Equal(t, "original", store.GetHistory("conv-1")[0].Question)
}

func TestContextSummaryUsesLastThreeTurns(t *testing.T) {
	store := newTestStore()

	assert.Empty(t, store.ContextSummary("missing"))

	for i := 1; i <= 5; i++ {
		store.AddTurn("conv-1",
			fmt.Sprintf("question %d", i), "a",
			fmt.Sprintf("FROM sales SHOW q%d", i), "sales")
	}

	summary := store.ContextSummary("conv-1")
	assert.Contains(t, summary, "Previous conversation context:")
	assert.Contains(t, summary, "question 3")
	assert.Contains(t, summary, "question 5")
	assert.NotContains(t, summary, "question 2")
}

func TestStats(t *testing.T) {
	store := newTestStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	store.AddTurn("conv-1", "q", "a", "", "sales")
	store.AddTurn("conv-1", "q2", "a2", "", "sales")
	store.AddTurn("conv-2", "q", "a", "", "inventory")

	current = current.Add(ConversationTTL + time.Minute)
	store.AddTurn("conv-3", "q", "a", "", "orders")

	stats := store.Stats()
	assert.Equal(t, 3, stats.TotalConversations)
	assert.Equal(t, 1, stats.ActiveConversations)
	assert.Equal(t, 4, stats.TotalTurns)
}

func TestSweepRemovesExpiredConversations(t *testing.T) {
	store := newTestStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	store.AddTurn("stale", "q", "a", "", "sales")
	current = current.Add(ConversationTTL + time.Minute)

	// Drive enough operations on other conversations to trigger the sweep
	// without ever reading the stale one.
	for i := 0; i < sweepEvery+1; i++ {
		store.AddTurn("busy", "q", "a", "", "sales")
	}

	stats := store.Stats()
	assert.Equal(t, 1, stats.TotalConversations)
	assert.NotNil(t, store.Get("busy"))
	assert.Nil(t, store.Get("stale"))
}
