// internal/service/inventory/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/infrastructure"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	repo        *infrastructure.MemoryStockRepository
	clock       *fakeClock
	events      *recordingEvents
	cache       *fakeCache
	broadcaster *recordingBroadcaster
	service     *InventoryApplicationService
}

func newServiceFixture(t *testing.T, ttl time.Duration) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:        infrastructure.NewMemoryStockRepository(),
		clock:       newFakeClock(testStart),
		events:      &recordingEvents{},
		cache:       newFakeCache(),
		broadcaster: &recordingBroadcaster{},
	}
	f.service = NewInventoryApplicationService(
		f.repo, f.clock, ttl, testTracer(),
		f.events, f.cache, thresholdAlertEngine{}, f.broadcaster,
	)
	return f
}

func TestReserveStockStampsExpiry(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}

	reservation, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 3)
	if err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}
	if reservation.ID == "" {
		t.Error("reservation must get a unique handle")
	}
	wantExpiry := testStart.Add(30 * time.Minute)
	if !reservation.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiresAt = %v, want %v", reservation.ExpiresAt, wantExpiry)
	}

	record, _ := f.repo.Get(ctx, "p-1")
	if record.AvailableQuantity() != 7 {
		t.Errorf("available = %d, want 7", record.AvailableQuantity())
	}
}

func TestReserveStockRejectsNonPositiveQuantity(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	for _, q := range []int64{0, -5} {
		if _, err := f.service.ReserveStock(ctx, "p-1", "sess-a", q); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("ReserveStock(%d) = %v, want ErrInvalidQuantity", q, err)
		}
	}
}

func TestReserveStockSurfacesInsufficient(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 2, 0); err != nil {
		t.Fatal(err)
	}

	_, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 5)
	insufficient, ok := domain.IsInsufficientStock(err)
	if !ok {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 2 {
		t.Errorf("available = %d, want 2", insufficient.Available)
	}
	if got := len(f.events.byType(domain.EventStockReserved)); got != 0 {
		t.Errorf("failed reserve published %d events", got)
	}
}

func TestReserveStockSideEffects(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 3); err != nil {
		t.Fatal(err)
	}

	reserved := f.events.byType(domain.EventStockReserved)
	if len(reserved) != 1 {
		t.Fatalf("got %d STOCK_RESERVED events, want 1", len(reserved))
	}
	if reserved[0].Available != 7 || reserved[0].SessionID != "sess-a" {
		t.Errorf("event = %+v", reserved[0])
	}
	if f.broadcaster.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", f.broadcaster.count())
	}
	cached, _ := f.cache.GetLevels(ctx, []string{"p-1"})
	if level, ok := cached["p-1"]; !ok || level.AvailableQuantity != 7 {
		t.Errorf("cache not refreshed, got %+v", cached)
	}
}

func TestReleaseStockIdempotent(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 4); err != nil {
		t.Fatal(err)
	}

	released, err := f.service.ReleaseStock(ctx, "p-1", "sess-a", 0)
	if err != nil || released != 4 {
		t.Fatalf("first release = (%d, %v)", released, err)
	}
	released, err = f.service.ReleaseStock(ctx, "p-1", "sess-a", 0)
	if err != nil || released != 0 {
		t.Errorf("second release = (%d, %v), want (0, nil)", released, err)
	}
	// 无操作的释放不应该发布事件
	if got := len(f.events.byType(domain.EventStockReleased)); got != 1 {
		t.Errorf("got %d STOCK_RELEASED events, want 1", got)
	}
}

func TestCommitStockHappyPath(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 4); err != nil {
		t.Fatal(err)
	}

	if err := f.service.CommitStock(ctx, "p-1", "sess-a", 4); err != nil {
		t.Fatalf("CommitStock: %v", err)
	}
	record, _ := f.repo.Get(ctx, "p-1")
	if record.TotalQuantity != 6 || record.ReservedQuantity != 0 {
		t.Errorf("total=%d reserved=%d, want 6/0", record.TotalQuantity, record.ReservedQuantity)
	}
	if got := len(f.events.byType(domain.EventStockCommitted)); got != 1 {
		t.Errorf("got %d STOCK_COMMITTED events, want 1", got)
	}
}

func TestCommitStockWithoutReservation(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.service.CommitStock(ctx, "p-1", "sess-ghost", 1); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Errorf("CommitStock = %v, want ErrReservationNotFound", err)
	}
}

func TestLowStockAlertPublished(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	// 阈值 5，预留后可用量降到 2，应触发 LOW_STOCK
	if err := f.service.CreateStock(ctx, "p-1", 10, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 8); err != nil {
		t.Fatal(err)
	}

	alerts := f.events.byType(domain.EventLowStock)
	if len(alerts) != 1 {
		t.Fatalf("got %d LOW_STOCK events, want 1", len(alerts))
	}
	if alerts[0].Available != 2 {
		t.Errorf("alert available = %d, want 2", alerts[0].Available)
	}
}

func TestRestockIncreasesAvailable(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.service.Restock(ctx, "p-1", 5); err != nil {
		t.Fatalf("Restock: %v", err)
	}
	record, _ := f.repo.Get(ctx, "p-1")
	if record.TotalQuantity != 7 {
		t.Errorf("total = %d, want 7", record.TotalQuantity)
	}
}

func TestSideEffectFailuresDoNotFailMutation(t *testing.T) {
	f := newServiceFixture(t, 30*time.Minute)
	ctx := context.Background()
	if err := f.service.CreateStock(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	f.cache.failing = true

	if _, err := f.service.ReserveStock(ctx, "p-1", "sess-a", 1); err != nil {
		t.Errorf("ReserveStock failed because the cache was down: %v", err)
	}
}
