package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	t.Parallel()

	t.Run("caps concurrent holders", func(t *testing.T) {
		t.Parallel()

		g := New(3)
		var inFlight, peak atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = g.Do(context.Background(), func(context.Context) error {
					n := inFlight.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inFlight.Add(-1)
					return nil
				})
			}()
		}
		wg.Wait()

		if got := peak.Load(); got > 3 {
			t.Errorf("expected at most 3 concurrent holders, got %d", got)
		}
	})

	t.Run("acquire honours cancellation", func(t *testing.T) {
		t.Parallel()

		g := New(1)
		if err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer g.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("non-positive limit becomes one", func(t *testing.T) {
		t.Parallel()

		if got := New(0).Limit(); got != 1 {
			t.Errorf("expected limit 1, got %d", got)
		}
	})

	t.Run("rate paces admissions", func(t *testing.T) {
		t.Parallel()

		g := New(10, WithRate(20))
		start := time.Now()
		for range 30 {
			if err := g.Acquire(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			g.Release()
		}
		// 20 burst tokens, then 10 more at 20/s.
		if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
			t.Errorf("expected pacing to take at least 400ms, took %s", elapsed)
		}
	})
}

func TestMap(t *testing.T) {
	t.Parallel()

	t.Run("keeps input order and drops rejected items", func(t *testing.T) {
		t.Parallel()

		items := []int{5, 1, 4, 2, 3, 6}
		got, err := Map(context.Background(), 3, items, func(_ context.Context, n int) (int, bool) {
			time.Sleep(time.Duration(n) * time.Millisecond)
			return n * 10, n%2 == 0
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []int{40, 20, 60}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("index %d: expected %d, got %d", i, want[i], got[i])
			}
		}
	})

	t.Run("returns context error when cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Map(ctx, 2, []int{1, 2, 3}, func(_ context.Context, n int) (int, bool) {
			return n, true
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
