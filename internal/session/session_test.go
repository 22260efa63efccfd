package session

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestAppendAndRecentHistory(t *testing.T) {
	s := New("u1", "s1")

	if idx := s.Append("user", "q1"); idx != 0 {
		t.Errorf("first turn index = %d", idx)
	}
	if idx := s.Append("assistant", "a1"); idx != 1 {
		t.Errorf("second turn index = %d", idx)
	}
	s.Append("user", "q2")

	recent := s.RecentHistory(2)
	if len(recent) != 2 || recent[0].Content != "a1" || recent[1].Content != "q2" {
		t.Errorf("RecentHistory(2) = %+v", recent)
	}
	if got := s.RecentHistory(10); len(got) != 3 {
		t.Errorf("RecentHistory(10) = %d turns", len(got))
	}
	if got := s.RecentHistory(0); got != nil {
		t.Errorf("RecentHistory(0) = %+v", got)
	}
}

func TestSanitizeKeys(t *testing.T) {
	in := map[string]any{
		"":          "empty",
		"a.b.c":     1,
		"normal":    "ok",
		"nested":    map[string]any{"x.y": []any{map[string]any{"": "deep"}}},
	}

	got := SanitizeKeys(in).(map[string]any)

	if got["_empty"] != "empty" {
		t.Errorf("empty key: %+v", got)
	}
	if got["a_b_c"] != 1 {
		t.Errorf("dotted key: %+v", got)
	}
	nested := got["nested"].(map[string]any)
	inner := nested["x_y"].([]any)[0].(map[string]any)
	if inner["_empty"] != "deep" {
		t.Errorf("nested sanitization: %+v", nested)
	}
}

func TestSanitizeKeysIdempotent(t *testing.T) {
	in := map[string]any{
		"": "e", "a.b": 1, "list": []any{map[string]any{"c.d": 2}},
	}
	once := SanitizeKeys(in)
	twice := SanitizeKeys(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("sanitize not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestLocksSerializeSameSession(t *testing.T) {
	locks := NewLocks()

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("u", "s")
			defer release()

			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if max > 1 {
		t.Errorf("critical section overlapped: max concurrency %d", max)
	}
}

func TestLocksIndependentSessions(t *testing.T) {
	locks := NewLocks()

	r1 := locks.Acquire("u", "s1")
	defer r1()

	done := make(chan struct{})
	go func() {
		r2 := locks.Acquire("u", "s2")
		r2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("distinct sessions blocked each other")
	}
}
