package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestFallbackGroup_Order(t *testing.T) {
	fg := NewFallbackGroup("a", "first", FallbackConfig{})
	fg.AddFallback("second", "b")
	fg.AddFallback("third", "c")

	if got := fg.Names(); !slices.Equal(got, []string{"first", "second", "third"}) {
		t.Fatalf("Names() = %v", got)
	}
	var tried []string
	got, err := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
		tried = append(tried, v)
		if v != "c" {
			return "", errTest
		}
		return v + "!", nil
	})
	if err != nil || got != "c!" {
		t.Fatalf("ExecuteWithResult = %q, %v", got, err)
	}
	if !slices.Equal(tried, []string{"a", "b", "c"}) {
		t.Fatalf("tried %v", tried)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)
	err := fg.Execute(context.Background(), func(int) error { return errTest })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("backup", "backup")

	calls := map[string]int{}
	run := func() {
		_ = fg.Execute(context.Background(), func(v string) error {
			calls[v]++
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	run()
	run()
	run()
	if calls["primary"] != 1 || calls["backup"] != 3 {
		t.Fatalf("calls = %v", calls)
	}
	if fg.Breaker("primary").State() != StateOpen {
		t.Fatal("primary breaker should be open")
	}
	if fg.Breaker("missing") != nil {
		t.Fatal("Breaker(missing) should be nil")
	}
}

func TestFallbackGroup_CancelledContext(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fg.AddFallback("backup", "backup")

	ctx, cancel := context.WithCancel(context.Background())
	var tried []string
	err := fg.Execute(ctx, func(v string) error {
		tried = append(tried, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare context.Canceled", err)
	}
	if !slices.Equal(tried, []string{"primary"}) {
		t.Fatalf("tried %v, want only primary", tried)
	}
	if fg.Breaker("primary").State() != StateClosed {
		t.Fatal("cancellation must not trip the breaker")
	}

	err = fg.Execute(ctx, func(string) error {
		t.Fatal("no entry should run with a done context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestFallbackGroup_DeadlineCountsAsFailure(t *testing.T) {
	fg := NewFallbackGroup("slow", "slow", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := fg.Execute(ctx, func(string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if fg.Breaker("slow").State() != StateOpen {
		t.Fatal("a provider timing out should count as a failure")
	}
}
