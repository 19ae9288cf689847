package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRateLimitRepository_CheckAndIncrement(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()

	t.Run("FirstRequestCountsAsOne", func(t *testing.T) {
		res, err := repo.CheckAndIncrement(ctx, "192.168.1.1", "login", 10, time.Minute, testEpoch)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if !res.Allowed || res.Count != 1 || res.Remaining != 9 {
			t.Errorf("first request = %+v", res)
		}
		if !res.ResetAt.Equal(testEpoch.Add(time.Minute)) {
			t.Errorf("ResetAt = %v, want %v", res.ResetAt, testEpoch.Add(time.Minute))
		}
	})

	t.Run("RemainingCountsDown", func(t *testing.T) {
		ip := "1.2.3.4"
		for i := 1; i <= 10; i++ {
			res, err := repo.CheckAndIncrement(ctx, ip, "login", 10, time.Minute, testEpoch.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Fatalf("CheckAndIncrement failed on request %d: %v", i, err)
			}
			if !res.Allowed {
				t.Errorf("request %d should be allowed", i)
			}
			if res.Remaining != 10-i {
				t.Errorf("request %d: Remaining = %d, want %d", i, res.Remaining, 10-i)
			}
		}

		res, err := repo.CheckAndIncrement(ctx, ip, "login", 10, time.Minute, testEpoch.Add(11*time.Second))
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if res.Allowed {
			t.Error("11th request should be denied")
		}
		if res.Count != 11 {
			t.Errorf("Count = %d, want 11", res.Count)
		}
		// Window began at t=1s, so it resets at 61s: 50s remain.
		if res.RetryAfter != 50 {
			t.Errorf("RetryAfter = %d, want 50", res.RetryAfter)
		}
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		res, err := repo.CheckAndIncrement(ctx, "1.2.3.4", "register", 10, time.Minute, testEpoch)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if res.Count != 1 {
			t.Errorf("other endpoint Count = %d, want 1", res.Count)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		cases := []struct {
			identity, endpoint string
			max                int
			window             time.Duration
		}{
			{"", "login", 10, time.Minute},
			{"1.2.3.4", "", 10, time.Minute},
			{"1.2.3.4", "login", 0, time.Minute},
			{"1.2.3.4", "login", 10, 0},
		}
		for _, c := range cases {
			_, err := repo.CheckAndIncrement(ctx, c.identity, c.endpoint, c.max, c.window, testEpoch)
			if !errors.Is(err, repository.ErrInvalidInput) {
				t.Errorf("CheckAndIncrement(%q, %q, %d, %s) error = %v, want ErrInvalidInput", c.identity, c.endpoint, c.max, c.window, err)
			}
		}
	})
}

func TestRateLimitRepository_FixedWindowReset(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()
	window := 60 * time.Second

	// Ten requests between t=0 and t=5000ms share one window.
	for i := 0; i < 10; i++ {
		at := testEpoch.Add(time.Duration(i*500) * time.Millisecond)
		if i == 9 {
			at = testEpoch.Add(5000 * time.Millisecond)
		}
		res, err := repo.CheckAndIncrement(ctx, "9.9.9.9", "login", 10, window, at)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if res.Count != i+1 {
			t.Errorf("request %d: Count = %d, want %d", i+1, res.Count, i+1)
		}
		if !res.WindowStart.Equal(testEpoch) {
			t.Errorf("request %d: WindowStart = %v, want %v", i+1, res.WindowStart, testEpoch)
		}
	}

	// t=61000ms starts a fresh window.
	fresh := testEpoch.Add(61000 * time.Millisecond)
	res, err := repo.CheckAndIncrement(ctx, "9.9.9.9", "login", 10, window, fresh)
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Count after reset = %d, want 1", res.Count)
	}
	if !res.WindowStart.Equal(fresh) {
		t.Errorf("WindowStart after reset = %v, want %v", res.WindowStart, fresh)
	}

	entry, err := repo.GetEntry(ctx, "9.9.9.9", "login")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry.Count != 1 || !entry.LastRequest.Equal(fresh) {
		t.Errorf("entry = %+v", entry)
	}
}

func TestRateLimitRepository_ResetsExactlyAtWindowBoundary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()

	if _, err := repo.CheckAndIncrement(ctx, "1.1.1.1", "login", 1, time.Minute, testEpoch); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	res, err := repo.CheckAndIncrement(ctx, "1.1.1.1", "login", 1, time.Minute, testEpoch.Add(time.Minute-time.Millisecond))
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if res.Allowed {
		t.Error("request 1ms before the boundary should still be in the old window")
	}
	res, err = repo.CheckAndIncrement(ctx, "1.1.1.1", "login", 1, time.Minute, testEpoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if !res.Allowed || res.Count != 1 {
		t.Errorf("request at the boundary = %+v, want fresh window", res)
	}
}

func TestRateLimitRepository_CountIsCapped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()

	if _, err := repo.CheckAndIncrement(ctx, "6.6.6.6", "login", 10, time.Hour, testEpoch); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if _, err := db.Exec(`UPDATE rate_limit_windows SET count = ? WHERE identity = '6.6.6.6'`, repository.MaxWindowCount); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	res, err := repo.CheckAndIncrement(ctx, "6.6.6.6", "login", 10, time.Hour, testEpoch.Add(time.Second))
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if res.Count != repository.MaxWindowCount {
		t.Errorf("Count = %d, want cap %d", res.Count, repository.MaxWindowCount)
	}
}

func TestRateLimitRepository_ConcurrentIncrements(t *testing.T) {
	db := setupFileDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()

	const workers = 100
	counts := make(chan int, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.CheckAndIncrement(ctx, "7.7.7.7", "login", 1000, time.Hour, testEpoch)
			if err != nil {
				errs <- err
				return
			}
			counts <- res.Count
		}()
	}
	wg.Wait()
	close(counts)
	close(errs)

	for err := range errs {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}

	seen := make(map[int]bool, workers)
	for c := range counts {
		if seen[c] {
			t.Errorf("count %d returned twice", c)
		}
		seen[c] = true
	}
	for i := 1; i <= workers; i++ {
		if !seen[i] {
			t.Errorf("count %d never returned", i)
		}
	}

	entry, err := repo.GetEntry(ctx, "7.7.7.7", "login")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry.Count != workers {
		t.Errorf("final Count = %d, want %d", entry.Count, workers)
	}
	if !entry.WindowStart.Equal(testEpoch) {
		t.Errorf("WindowStart = %v, window was reset under load", entry.WindowStart)
	}
}

func TestRateLimitRepository_AdminOperations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()

	entry, err := repo.GetEntry(ctx, "8.8.8.8", "login")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry != nil {
		t.Errorf("GetEntry(missing) = %+v, want nil", entry)
	}

	seed := []struct {
		endpoint string
		at       time.Time
	}{
		{"login", testEpoch.Add(-48 * time.Hour)},
		{"register", testEpoch.Add(-time.Minute)},
		{"admin", testEpoch},
	}
	for _, s := range seed {
		if _, err := repo.CheckAndIncrement(ctx, "8.8.8.8", s.endpoint, 10, time.Minute, s.at); err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
	}

	list, err := repo.ListForIdentity(ctx, "8.8.8.8")
	if err != nil {
		t.Fatalf("ListForIdentity failed: %v", err)
	}
	if len(list) != 3 || list[0].Endpoint != "admin" {
		t.Errorf("ListForIdentity = %+v", list)
	}

	removed, err := repo.CleanupExpired(ctx, testEpoch.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupExpired removed %d, want 1", removed)
	}

	if err := repo.ResetEntry(ctx, "8.8.8.8", "admin"); err != nil {
		t.Fatalf("ResetEntry failed: %v", err)
	}
	list, err = repo.ListForIdentity(ctx, "8.8.8.8")
	if err != nil {
		t.Fatalf("ListForIdentity failed: %v", err)
	}
	if len(list) != 1 || list[0].Endpoint != "register" {
		t.Errorf("after cleanup and reset = %+v", list)
	}
}
