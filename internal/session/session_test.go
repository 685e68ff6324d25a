package session

import (
	"sync"
	"testing"
)

func TestNew_UniqueIDs(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs = %q, %q, want distinct non-empty", a.ID(), b.ID())
	}
	if len(a.ID()) != 26 {
		t.Errorf("ID length = %d, want 26 (ULID)", len(a.ID()))
	}
}

func TestConsumeOneTimeConfig_Once(t *testing.T) {
	t.Parallel()

	s := New()
	if s.ConfigConsumed() {
		t.Fatal("fresh session reports consumed config")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ConsumeOneTimeConfig() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("ConsumeOneTimeConfig succeeded %d times, want 1", wins)
	}
	if !s.ConfigConsumed() {
		t.Error("ConfigConsumed = false after consumption")
	}
}

func TestRewriteApplied(t *testing.T) {
	t.Parallel()

	s := New()
	if s.RewriteApplied() {
		t.Fatal("fresh session reports rewrite applied")
	}
	s.MarkRewriteApplied()
	if !s.RewriteApplied() {
		t.Error("RewriteApplied = false after MarkRewriteApplied")
	}
}
