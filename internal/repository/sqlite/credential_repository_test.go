package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

func TestCredentialRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := repo.Get(ctx, "member@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := repo.Create(ctx, "member@example.com", "aa$bb", now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, "member@example.com", "cc$dd", now); !errors.Is(err, repository.ErrDuplicateKey) {
		t.Errorf("duplicate Create = %v, want ErrDuplicateKey", err)
	}

	c, err := repo.Get(ctx, "member@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if c.EncodedHash != "aa$bb" || !c.CreatedAt.Equal(now) {
		t.Errorf("credential = %+v", c)
	}

	later := now.Add(time.Hour)
	if err := repo.Upsert(ctx, "member@example.com", "ee$ff", later); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	c, err = repo.Get(ctx, "member@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if c.EncodedHash != "ee$ff" || !c.CreatedAt.Equal(now) || !c.UpdatedAt.Equal(later) {
		t.Errorf("after upsert = %+v", c)
	}

	if err := repo.Create(ctx, "", "aa$bb", now); !errors.Is(err, repository.ErrInvalidInput) {
		t.Errorf("Create(empty identity) = %v, want ErrInvalidInput", err)
	}
	if err := repo.Upsert(ctx, "x@example.com", "", now); !errors.Is(err, repository.ErrInvalidInput) {
		t.Errorf("Upsert(empty hash) = %v, want ErrInvalidInput", err)
	}

	if err := repo.Delete(ctx, "member@example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "member@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}
