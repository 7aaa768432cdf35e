package session

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/clawinfra/toolclaw/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestGetOrCreateNewSession(t *testing.T) {
	st := NewStore(time.Hour, testLogger())

	s, created := st.GetOrCreate("")
	if !created {
		t.Error("expected a new session")
	}
	if len(s.ID) != 36 {
		t.Errorf("expected uuid id, got %q", s.ID)
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 session, got %d", st.Len())
	}
}

func TestGetOrCreateExisting(t *testing.T) {
	st := NewStore(time.Hour, testLogger())

	s1, _ := st.GetOrCreate("")
	s2, created := st.GetOrCreate(s1.ID)
	if created {
		t.Error("expected existing session")
	}
	if s1 != s2 {
		t.Error("expected same session instance")
	}
}

func TestGetOrCreateUnknownIDCreatesFresh(t *testing.T) {
	st := NewStore(time.Hour, testLogger())

	s, created := st.GetOrCreate("no-such-session")
	if !created {
		t.Error("expected a new session for unknown id")
	}
	if s.ID == "no-such-session" {
		t.Error("unknown id must not be adopted")
	}
}

func TestAppendAndMessages(t *testing.T) {
	st := NewStore(time.Hour, testLogger())
	s, _ := st.GetOrCreate("")

	s.Append(
		models.ChatMessage{Role: "user", Content: "hi"},
		models.ChatMessage{Role: "assistant", Content: "hello"},
	)
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", msgs)
	}

	// Mutating the returned copy must not touch the stored history.
	msgs[0].Content = "changed"
	if s.Messages()[0].Content != "hi" {
		t.Error("Messages must return a copy")
	}
}

func TestClearKeepsID(t *testing.T) {
	st := NewStore(time.Hour, testLogger())
	s, _ := st.GetOrCreate("")
	s.Append(models.ChatMessage{Role: "user", Content: "hi"})

	id := s.ID
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("expected empty history, got %d", s.Len())
	}

	got, err := st.Get(id)
	if err != nil {
		t.Fatalf("session gone after clear: %v", err)
	}
	if got.ID != id {
		t.Error("clear must not change the session id")
	}
}

func TestGetUnknown(t *testing.T) {
	st := NewStore(time.Hour, testLogger())
	if _, err := st.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	st := NewStore(10*time.Millisecond, testLogger())

	stale, _ := st.GetOrCreate("")
	fresh, _ := st.GetOrCreate("")

	time.Sleep(20 * time.Millisecond)
	fresh.Append(models.ChatMessage{Role: "user", Content: "keepalive"})

	if n := st.SweepExpired(); n != 1 {
		t.Errorf("expected 1 swept, got %d", n)
	}
	if _, err := st.Get(stale.ID); !errors.Is(err, ErrNotFound) {
		t.Error("stale session should be gone")
	}
	if _, err := st.Get(fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}

	// A second sweep finds nothing new.
	if n := st.SweepExpired(); n != 0 {
		t.Errorf("expected idempotent sweep, got %d", n)
	}
}

func TestConcurrentAppend(t *testing.T) {
	st := NewStore(time.Hour, testLogger())
	s, _ := st.GetOrCreate("")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(models.ChatMessage{Role: "user", Content: "x"})
		}()
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("expected 20 messages, got %d", s.Len())
	}
}

func TestTurnLockSerializes(t *testing.T) {
	st := NewStore(time.Hour, testLogger())
	s, _ := st.GetOrCreate("")

	s.LockTurn()
	entered := make(chan struct{})
	go func() {
		s.LockTurn()
		close(entered)
		s.UnlockTurn()
	}()

	select {
	case <-entered:
		t.Fatal("second turn entered while first held the lock")
	case <-time.After(30 * time.Millisecond):
	}

	s.UnlockTurn()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second turn never entered after unlock")
	}
}
