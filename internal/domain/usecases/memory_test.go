package usecases

import (
	"strconv"
	"testing"
	"time"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

func TestConversationMemory_FIFOEviction(t *testing.T) {
	mem := NewConversationMemory(3)

	for i := 0; i < 5; i++ {
		mem.Append(entities.Turn{Question: "q" + strconv.Itoa(i), Timestamp: time.Now()})
	}

	if mem.Len() != 3 {
		t.Fatalf("memory holds %d turns, capacity is 3", mem.Len())
	}
	turns := mem.Recent(3)
	if turns[0].Question != "q2" || turns[2].Question != "q4" {
		t.Errorf("oldest turns not evicted first: got %s..%s", turns[0].Question, turns[2].Question)
	}
}

func TestConversationMemory_RecentOrder(t *testing.T) {
	mem := NewConversationMemory(5)
	mem.Append(entities.Turn{Question: "first"})
	mem.Append(entities.Turn{Question: "second"})
	mem.Append(entities.Turn{Question: "third"})

	turns := mem.Recent(2)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Question != "second" || turns[1].Question != "third" {
		t.Error("Recent should return the last n turns in insertion order")
	}
}

func TestConversationMemory_RecentLargerThanHeld(t *testing.T) {
	mem := NewConversationMemory(3)
	mem.Append(entities.Turn{Question: "only"})

	if got := len(mem.Recent(10)); got != 1 {
		t.Errorf("expected 1 turn, got %d", got)
	}
	if got := len(mem.Recent(0)); got != 1 {
		t.Errorf("n<=0 should return everything, got %d", got)
	}
}

func TestConversationMemory_Clear(t *testing.T) {
	mem := NewConversationMemory(3)
	mem.Append(entities.Turn{Question: "q"})
	mem.Clear()

	if mem.Len() != 0 {
		t.Error("clear should discard all turns")
	}
}

func TestSessionMemories_IsolatedPerSession(t *testing.T) {
	sessions := NewSessionMemories(3)

	sessions.Get("alice").Append(entities.Turn{Question: "alice q"})
	sessions.Get("bob").Append(entities.Turn{Question: "bob q"})

	if got := sessions.Get("alice").Recent(0); len(got) != 1 || got[0].Question != "alice q" {
		t.Error("session histories leaked across sessions")
	}
	if sessions.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", sessions.Len())
	}
}

func TestSessionMemories_Drop(t *testing.T) {
	sessions := NewSessionMemories(3)
	sessions.Get("s").Append(entities.Turn{Question: "q"})
	sessions.Drop("s")

	if got := sessions.Get("s").Len(); got != 0 {
		t.Errorf("dropped session should start fresh, has %d turns", got)
	}
}
