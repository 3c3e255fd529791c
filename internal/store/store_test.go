package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"pairpad/internal/models"
)

type fakeLoader struct {
	records map[string]*SessionRecord
	loads   atomic.Int32
}

func (l *fakeLoader) LoadSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	l.loads.Add(1)
	rec, ok := l.records[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return rec, nil
}

func newTestStore(records ...*SessionRecord) (*Store, *fakeLoader) {
	loader := &fakeLoader{records: make(map[string]*SessionRecord)}
	for _, rec := range records {
		loader.records[rec.SessionID] = rec
	}
	return New(loader, false), loader
}

func TestGetOrLoadHydratesOnce(t *testing.T) {
	s, loader := newTestStore(&SessionRecord{
		SessionID: "s1",
		Code:      "x = 1",
		Language:  models.LangPython,
	})

	snap, err := s.GetOrLoad(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Code != "x = 1" || snap.Language != models.LangPython {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}

	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loads := loader.loads.Load(); loads != 1 {
		t.Fatalf("expected single load, got %d", loads)
	}
}

func TestGetOrLoadUnknownSession(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.GetOrLoad(context.Background(), "missing")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestApplyCodeUpdateVersionIsMonotonic(t *testing.T) {
	s, _ := newTestStore(&SessionRecord{SessionID: "s1", Language: models.LangJavaScript})
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	v1, err := s.ApplyCodeUpdate("s1", "a")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	v2, err := s.ApplyCodeUpdate("s1", "b")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v2 != v1+1 {
		t.Fatalf("expected version %d, got %d", v1+1, v2)
	}

	snap, _ := s.Snapshot("s1")
	if snap.Code != "b" {
		t.Fatalf("last write should win, got %q", snap.Code)
	}
}

func TestApplyCodeUpdateConcurrent(t *testing.T) {
	s, _ := newTestStore(&SessionRecord{SessionID: "s1", Language: models.LangJavaScript})
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ApplyCodeUpdate("s1", "code"); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _ := s.Snapshot("s1")
	if snap.Version != n {
		t.Fatalf("expected version %d after %d updates, got %d", n, n, snap.Version)
	}
}

func TestApplyLanguageChangeValidation(t *testing.T) {
	s, _ := newTestStore(&SessionRecord{SessionID: "s1", Language: models.LangJavaScript})
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	if err := s.ApplyLanguageChange("s1", "brainfuck"); !errors.Is(err, models.ErrInvalidLanguage) {
		t.Fatalf("expected ErrInvalidLanguage, got %v", err)
	}
	if err := s.ApplyLanguageChange("s1", models.LangCPP); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := s.Snapshot("s1")
	if snap.Language != models.LangCPP {
		t.Fatalf("expected cpp, got %s", snap.Language)
	}
}

func TestParticipantCounting(t *testing.T) {
	s, _ := newTestStore(&SessionRecord{SessionID: "s1", Language: models.LangJavaScript})
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	count, err := s.AddParticipant("s1", "u1", "Alice")
	if err != nil || count != 1 {
		t.Fatalf("expected count 1, got %d err=%v", count, err)
	}
	count, _ = s.AddParticipant("s1", "u2", "Bob")
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	// Same identity in a second tab occupies its own slot.
	count, _ = s.AddParticipant("s1", "u1", "Alice")
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	count, _ = s.RemoveParticipant("s1", "u1")
	if count != 2 {
		t.Fatalf("expected count 2 after removal, got %d", count)
	}
	// Removing an absent participant is a no-op returning the current count.
	count, _ = s.RemoveParticipant("s1", "ghost")
	if count != 2 {
		t.Fatalf("expected count 2 after no-op removal, got %d", count)
	}

	count, _ = s.RemoveParticipant("s1", "u1")
	count, _ = s.RemoveParticipant("s1", "u2")
	if count != 0 {
		t.Fatalf("expected empty roster, got %d", count)
	}
}

func TestParticipantCountingWithDedupe(t *testing.T) {
	loader := &fakeLoader{records: map[string]*SessionRecord{
		"s1": {SessionID: "s1", Language: models.LangJavaScript},
	}}
	s := New(loader, true)
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	s.AddParticipant("s1", "u1", "Alice")
	count, _ := s.AddParticipant("s1", "u1", "Alice")
	if count != 1 {
		t.Fatalf("dedupe mode should count identities, got %d", count)
	}
	count, _ = s.RemoveParticipant("s1", "u1")
	if count != 1 {
		t.Fatalf("one connection remains under u1, got %d", count)
	}
}

func TestSnapshotListsParticipants(t *testing.T) {
	s, _ := newTestStore(&SessionRecord{SessionID: "s1", Code: "c", Language: models.LangJava})
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	s.AddParticipant("s1", "u2", "Bob")
	s.AddParticipant("s1", "u1", "Alice")

	snap, err := s.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %#v", snap.Participants)
	}
	if snap.Participants[0].ParticipantID != "u1" || snap.Participants[1].ParticipantID != "u2" {
		t.Fatalf("expected sorted roster, got %#v", snap.Participants)
	}
}

func TestEvictDropsCachedState(t *testing.T) {
	s, loader := newTestStore(&SessionRecord{SessionID: "s1", Code: "persisted", Language: models.LangPython})
	if _, err := s.GetOrLoad(context.Background(), "s1"); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	s.ApplyCodeUpdate("s1", "live")

	s.Evict("s1")
	if _, err := s.Snapshot("s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected miss after evict, got %v", err)
	}

	// A reconnect rehydrates from the loader.
	snap, err := s.GetOrLoad(context.Background(), "s1")
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if snap.Code != "persisted" {
		t.Fatalf("expected persisted code, got %q", snap.Code)
	}
	if loads := loader.loads.Load(); loads != 2 {
		t.Fatalf("expected two loads, got %d", loads)
	}
}
