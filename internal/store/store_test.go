package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gsarma/synthide/internal/store"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*store.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return store.NewRedis(client, ttl), mr
}

// backends runs fn against every backend that needs no external service.
func backends(t *testing.T, fn func(t *testing.T, s store.RunStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, store.NewMemory()) })
	t.Run("redis", func(t *testing.T) {
		s, _ := newRedisStore(t, time.Hour)
		fn(t, s)
	})
}

func TestRunLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s store.RunStore) {
		ctx := context.Background()
		created, err := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "print(1)", Stdin: "x"})
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if created.ID == uuid.Nil || created.Status != store.StatusPending || created.Output != nil {
			t.Fatalf("unexpected created run: %+v", created)
		}

		got, err := s.GetRun(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.SourceCode != "print(1)" || got.Stdin != "x" || got.Finished() {
			t.Errorf("unexpected stored run: %+v", got)
		}

		claimed, err := s.ClaimNextRun(ctx)
		if err != nil {
			t.Fatalf("ClaimNextRun: %v", err)
		}
		if claimed.ID != created.ID || claimed.Status != store.StatusRunning {
			t.Errorf("expected %s running, got %+v", created.ID, claimed)
		}
		if _, err := s.ClaimNextRun(ctx); !errors.Is(err, store.ErrNoPendingRuns) {
			t.Errorf("expected ErrNoPendingRuns, got %v", err)
		}

		finished, err := s.FinishRun(ctx, created.ID, "1\n")
		if err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
		if !finished.Finished() || *finished.Output != "1\n" {
			t.Errorf("unexpected finished run: %+v", finished)
		}
		got, _ = s.GetRun(ctx, created.ID)
		if got.Output == nil || *got.Output != "1\n" {
			t.Errorf("expected stored output, got %+v", got)
		}
	})
}

func TestEmptyOutputIsFinished(t *testing.T) {
	backends(t, func(t *testing.T, s store.RunStore) {
		ctx := context.Background()
		run, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
		if _, err := s.ClaimNextRun(ctx); err != nil {
			t.Fatalf("ClaimNextRun: %v", err)
		}
		if _, err := s.FinishRun(ctx, run.ID, ""); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
		got, err := s.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Output == nil || *got.Output != "" || !got.Finished() {
			t.Errorf("expected finished run with empty output, got %+v", got)
		}
	})
}

func TestClaimOrderIsFIFO(t *testing.T) {
	backends(t, func(t *testing.T, s store.RunStore) {
		ctx := context.Background()
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			run, err := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			ids = append(ids, run.ID)
		}
		for i, want := range ids {
			got, err := s.ClaimNextRun(ctx)
			if err != nil {
				t.Fatalf("claim %d: %v", i, err)
			}
			if got.ID != want {
				t.Errorf("claim %d: expected %s, got %s", i, want, got.ID)
			}
		}
	})
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	backends(t, func(t *testing.T, s store.RunStore) {
		ctx := context.Background()
		const n = 20
		for i := 0; i < n; i++ {
			if _, err := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"}); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					run, err := s.ClaimNextRun(ctx)
					if err != nil {
						return
					}
					mu.Lock()
					seen[run.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if len(seen) != n {
			t.Errorf("expected %d distinct claims, got %d", n, len(seen))
		}
		for id, count := range seen {
			if count != 1 {
				t.Errorf("run %s claimed %d times", id, count)
			}
		}
	})
}

func TestUnknownRun(t *testing.T) {
	backends(t, func(t *testing.T, s store.RunStore) {
		ctx := context.Background()
		if _, err := s.GetRun(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetRun: expected ErrNotFound, got %v", err)
		}
		if _, err := s.FinishRun(ctx, uuid.New(), "x"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("FinishRun: expected ErrNotFound, got %v", err)
		}
	})
}

func TestRedis_ExpiredRunsAreSkipped(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	stale, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
	mr.FastForward(2 * time.Minute)
	fresh, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})

	if _, err := s.GetRun(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected expired run to be gone, got %v", err)
	}
	claimed, err := s.ClaimNextRun(ctx)
	if err != nil {
		t.Fatalf("ClaimNextRun: %v", err)
	}
	if claimed.ID != fresh.ID {
		t.Errorf("expected fresh run %s, got %s", fresh.ID, claimed.ID)
	}
}

func TestRedis_FinishRefreshesTTL(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	run, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
	mr.FastForward(50 * time.Second)
	if _, err := s.FinishRun(ctx, run.ID, "done"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	mr.FastForward(50 * time.Second)

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("expected run to outlive its original ttl: %v", err)
	}
	if got.Output == nil || *got.Output != "done" {
		t.Errorf("unexpected output: %+v", got.Output)
	}
}

func TestRedis_FinishAfterExpiryLeavesNoHash(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	run, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
	if _, err := s.ClaimNextRun(ctx); err != nil {
		t.Fatalf("ClaimNextRun: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := s.FinishRun(ctx, run.ID, "late"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("synthide:run:" + run.ID.String()) {
		t.Error("expected no run hash to be written for an expired run")
	}
}

func TestRedis_FinishReturnsStoredRun(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	run, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "cpp", SourceCode: "int main(){}", Stdin: "1"})
	finished, err := s.FinishRun(ctx, run.ID, "ok")
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if finished.Status != store.StatusFinished || finished.Language != "cpp" || finished.Stdin != "1" {
		t.Errorf("unexpected finished run: %+v", finished)
	}
	if finished.Output == nil || *finished.Output != "ok" {
		t.Errorf("unexpected output: %+v", finished.Output)
	}
	if ttl := mr.TTL("synthide:run:" + run.ID.String()); ttl != time.Minute {
		t.Errorf("expected ttl refreshed to 1m, got %s", ttl)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemory_ExpiredRunsAreEvicted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := store.NewMemory(store.WithTTL(time.Minute), store.WithClock(clock.Now))
	ctx := context.Background()

	stale, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
	clock.Advance(2 * time.Minute)
	fresh, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})

	if _, err := s.GetRun(ctx, stale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected expired run to be gone, got %v", err)
	}
	claimed, err := s.ClaimNextRun(ctx)
	if err != nil {
		t.Fatalf("ClaimNextRun: %v", err)
	}
	if claimed.ID != fresh.ID {
		t.Errorf("expected fresh run %s, got %s", fresh.ID, claimed.ID)
	}
	if _, err := s.FinishRun(ctx, stale.ID, "late"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound finishing an expired run, got %v", err)
	}
}

func TestMemory_FinishRefreshesTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := store.NewMemory(store.WithTTL(time.Minute), store.WithClock(clock.Now))
	ctx := context.Background()

	run, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
	clock.Advance(50 * time.Second)
	if _, err := s.FinishRun(ctx, run.ID, "done"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	clock.Advance(50 * time.Second)
	if _, err := s.GetRun(ctx, run.ID); err != nil {
		t.Fatalf("expected run to outlive its original ttl: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected finished run to expire, got %v", err)
	}
}

func TestMemory_NoTTLKeepsRuns(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := store.NewMemory(store.WithClock(clock.Now))
	ctx := context.Background()

	run, _ := s.CreateRun(ctx, store.CreateRunParams{Language: "python", SourceCode: "pass"})
	clock.Advance(1000 * time.Hour)
	if _, err := s.GetRun(ctx, run.ID); err != nil {
		t.Errorf("expected run to be kept without a ttl: %v", err)
	}
}
