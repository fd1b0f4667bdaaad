package keypool

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/memory"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

func newTestManager() (*Manager, *memory.KeyPoolStore) {
	store := memory.NewKeyPoolStore()
	logger := log.New(io.Discard, "", 0)
	return NewManager(store, logger), store
}

func generatedRecord(t *testing.T, category domain.KeyCategory, ending string) *domain.KeyRecord {
	t.Helper()
	kp, err := txwire.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	return &domain.KeyRecord{
		Category:      category,
		SecretKey:     kp.SecretKey(),
		PublicAddress: kp.Address(),
		Ending:        ending,
	}
}

func TestManager_ReserveCommitLifecycle(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	inserted, skipped, err := manager.Import(ctx, []*domain.KeyRecord{generatedRecord(t, domain.CategoryMeme, "")})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if inserted != 1 || skipped != 0 {
		t.Fatalf("Import = (%d, %d), want (1, 0)", inserted, skipped)
	}

	rec, err := manager.ReserveRandom(ctx, domain.CategoryMeme)
	if err != nil {
		t.Fatalf("ReserveRandom failed: %v", err)
	}

	if err := manager.Commit(ctx, rec.ID, "MintAddr"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := manager.Commit(ctx, rec.ID, "MintAddr"); !errors.Is(err, storage.ErrInvalidState) {
		t.Errorf("double commit error = %v, want ErrInvalidState", err)
	}
}

func TestManager_CommitRequiresMintAddress(t *testing.T) {
	manager, _ := newTestManager()

	err := manager.Commit(context.Background(), 1, "")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestManager_ReserveByEnding(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	kp, _ := txwire.GenerateKeypair()
	rec := &domain.KeyRecord{
		Category:      domain.CategoryCustom,
		SecretKey:     kp.SecretKey(),
		PublicAddress: kp.Address(),
		Ending:        kp.Address()[len(kp.Address())-4:],
	}
	if _, _, err := manager.Import(ctx, []*domain.KeyRecord{rec}); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	got, err := manager.ReserveByEnding(ctx, rec.Ending)
	if err != nil {
		t.Fatalf("ReserveByEnding failed: %v", err)
	}
	if got.PublicAddress != rec.PublicAddress {
		t.Errorf("reserved %s, want %s", got.PublicAddress, rec.PublicAddress)
	}

	if _, err := manager.ReserveByEnding(ctx, ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty ending error = %v, want ErrInvalidInput", err)
	}
}

func TestManager_ReleaseAndInvalidate(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	if _, _, err := manager.Import(ctx, []*domain.KeyRecord{generatedRecord(t, domain.CategoryMeme, "")}); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	rec, err := manager.ReserveRandom(ctx, domain.CategoryMeme)
	if err != nil {
		t.Fatalf("ReserveRandom failed: %v", err)
	}
	if err := manager.Release(ctx, rec.ID); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	rec, err = manager.ReserveRandom(ctx, domain.CategoryMeme)
	if err != nil {
		t.Fatalf("re-reserve failed: %v", err)
	}
	if err := manager.Invalidate(ctx, rec.ID); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	// The invalidated key never returns.
	if _, err := manager.ReserveRandom(ctx, domain.CategoryMeme); !errors.Is(err, storage.ErrPoolExhausted) {
		t.Errorf("error = %v, want ErrPoolExhausted", err)
	}
}

func TestManager_ImportRejectsMismatchedKey(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	kp, _ := txwire.GenerateKeypair()
	other, _ := txwire.GenerateKeypair()
	bad := &domain.KeyRecord{
		Category:      domain.CategoryMeme,
		SecretKey:     kp.SecretKey(),
		PublicAddress: other.Address(),
	}

	if _, _, err := manager.Import(ctx, []*domain.KeyRecord{bad}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestManager_ImportSkipsDuplicates(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	rec := generatedRecord(t, domain.CategoryMeme, "")
	dup := *rec
	inserted, skipped, err := manager.Import(ctx, []*domain.KeyRecord{rec, &dup})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if inserted != 1 || skipped != 1 {
		t.Errorf("Import = (%d, %d), want (1, 1)", inserted, skipped)
	}
}

func TestManager_ReleaseStuck(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()

	if _, _, err := manager.Import(ctx, []*domain.KeyRecord{generatedRecord(t, domain.CategoryMeme, "")}); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if _, err := manager.ReserveRandom(ctx, domain.CategoryMeme); err != nil {
		t.Fatalf("ReserveRandom failed: %v", err)
	}

	// Nothing is old enough yet.
	n, err := manager.ReleaseStuck(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ReleaseStuck failed: %v", err)
	}
	if n != 0 {
		t.Errorf("released = %d, want 0", n)
	}

	n, err = manager.ReleaseStuck(ctx, 0)
	if err != nil {
		t.Fatalf("ReleaseStuck failed: %v", err)
	}
	if n != 1 {
		t.Errorf("released = %d, want 1", n)
	}

	if _, err := store.ClaimRandom(ctx, domain.CategoryMeme); err != nil {
		t.Errorf("released key should be claimable: %v", err)
	}
}
