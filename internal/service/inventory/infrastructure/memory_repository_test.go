// internal/service/inventory/infrastructure/memory_repository_test.go
package infrastructure

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"stockhold/internal/service/inventory/domain"
)

func newRepoWithStock(t *testing.T, productID string, total int64) *MemoryStockRepository {
	t.Helper()
	repo := NewMemoryStockRepository()
	if err := repo.Create(context.Background(), productID, total, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return repo
}

func reservationFor(session string, quantity int64, ttl time.Duration) domain.Reservation {
	now := time.Now()
	return domain.Reservation{
		ID:         uuid.New().String(),
		SessionID:  session,
		Quantity:   quantity,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestCreateDuplicate(t *testing.T) {
	repo := newRepoWithStock(t, "p-1", 10)
	if err := repo.Create(context.Background(), "p-1", 5, 0); !errors.Is(err, domain.ErrStockRecordExists) {
		t.Errorf("duplicate Create = %v, want ErrStockRecordExists", err)
	}
}

func TestGetMissingProduct(t *testing.T) {
	repo := NewMemoryStockRepository()
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("Get = %v, want ErrProductNotFound", err)
	}
}

func TestGetBatchSkipsMissing(t *testing.T) {
	repo := newRepoWithStock(t, "p-1", 10)
	records, err := repo.GetBatch(context.Background(), []string{"p-1", "ghost"})
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if _, ok := records["ghost"]; ok {
		t.Error("missing product must not appear in the batch result")
	}
}

// 核心正确性属性：N 件库存面对 2N 个并发的单件预留，
// 恰好 N 个成功、N 个失败，且绝不超卖。
func TestConcurrentReservesNeverOversell(t *testing.T) {
	const stock = 100
	repo := newRepoWithStock(t, "p-hot", stock)

	var successes, failures atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2*stock; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Reserve(context.Background(), "p-hot", reservationFor(uuid.New().String(), 1, time.Hour))
			switch {
			case err == nil:
				successes.Add(1)
			default:
				if _, ok := domain.IsInsufficientStock(err); !ok {
					t.Errorf("unexpected error: %v", err)
				}
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != stock {
		t.Errorf("successes = %d, want %d", successes.Load(), stock)
	}
	if failures.Load() != stock {
		t.Errorf("failures = %d, want %d", failures.Load(), stock)
	}

	record, err := repo.Get(context.Background(), "p-hot")
	if err != nil {
		t.Fatal(err)
	}
	if record.ReservedQuantity != stock || record.AvailableQuantity() != 0 {
		t.Errorf("reserved=%d available=%d, want %d/0", record.ReservedQuantity, record.AvailableQuantity(), stock)
	}
}

func TestReleaseMissingProductIsNoop(t *testing.T) {
	repo := NewMemoryStockRepository()
	released, err := repo.Release(context.Background(), "ghost", "sess-a", 0)
	if err != nil || released != 0 {
		t.Errorf("Release = (%d, %v), want (0, nil)", released, err)
	}
}

func TestReleaseIdempotentThroughRepository(t *testing.T) {
	repo := newRepoWithStock(t, "p-1", 10)
	ctx := context.Background()
	if err := repo.Reserve(ctx, "p-1", reservationFor("sess-a", 4, time.Hour)); err != nil {
		t.Fatal(err)
	}

	released, err := repo.Release(ctx, "p-1", "sess-a", 0)
	if err != nil || released != 4 {
		t.Fatalf("first release = (%d, %v), want (4, nil)", released, err)
	}
	released, err = repo.Release(ctx, "p-1", "sess-a", 0)
	if err != nil || released != 0 {
		t.Errorf("second release = (%d, %v), want (0, nil)", released, err)
	}
}

func TestCommitMissingReservation(t *testing.T) {
	repo := newRepoWithStock(t, "p-1", 10)
	if err := repo.Commit(context.Background(), "p-1", "sess-a", 1); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Errorf("Commit = %v, want ErrReservationNotFound", err)
	}
}

func TestFindWithExpiredAndRelease(t *testing.T) {
	repo := NewMemoryStockRepository()
	ctx := context.Background()
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		if err := repo.Create(ctx, id, 10, 0); err != nil {
			t.Fatal(err)
		}
	}
	// p-1 持有过期预留，p-2 持有有效预留，p-3 没有预留
	if err := repo.Reserve(ctx, "p-1", reservationFor("sess-old", 3, -time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Reserve(ctx, "p-2", reservationFor("sess-live", 2, time.Hour)); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	candidates, err := repo.FindWithExpired(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0] != "p-1" {
		t.Fatalf("candidates = %v, want [p-1]", candidates)
	}

	count, units, err := repo.ReleaseExpired(ctx, "p-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || units != 3 {
		t.Errorf("ReleaseExpired = (%d, %d), want (1, 3)", count, units)
	}

	record, _ := repo.Get(ctx, "p-1")
	if record.AvailableQuantity() != 10 {
		t.Errorf("available = %d, want 10", record.AvailableQuantity())
	}
	live, _ := repo.Get(ctx, "p-2")
	if live.ReservedQuantity != 2 {
		t.Errorf("live reservation was touched, reserved = %d", live.ReservedQuantity)
	}
}

func TestFindWithExpiredHonorsLimit(t *testing.T) {
	repo := NewMemoryStockRepository()
	ctx := context.Background()
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		if err := repo.Create(ctx, id, 10, 0); err != nil {
			t.Fatal(err)
		}
		if err := repo.Reserve(ctx, id, reservationFor("sess-"+id, 1, -time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	candidates, err := repo.FindWithExpired(ctx, time.Now(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Errorf("got %d candidates, want 2", len(candidates))
	}
}

func TestGetReturnsCopy(t *testing.T) {
	repo := newRepoWithStock(t, "p-1", 10)
	ctx := context.Background()
	record, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	record.TotalQuantity = 0

	again, _ := repo.Get(ctx, "p-1")
	if again.TotalQuantity != 10 {
		t.Error("mutating the returned record leaked into the repository")
	}
}
