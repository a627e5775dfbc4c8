// internal/service/inventory/application/reaper_test.go
package application

import (
	"context"
	"testing"
	"time"

	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/infrastructure"
)

type reaperFixture struct {
	repo   *infrastructure.MemoryStockRepository
	clock  *fakeClock
	events *recordingEvents
	reaper *ReservationExpiryReaper
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()
	f := &reaperFixture{
		repo:   infrastructure.NewMemoryStockRepository(),
		clock:  newFakeClock(testStart),
		events: &recordingEvents{},
	}
	f.reaper = NewReservationExpiryReaper(f.repo, f.clock, 15*time.Minute, 256, testTracer(), nil, f.events)
	return f
}

func (f *reaperFixture) reserve(t *testing.T, productID, sessionID string, quantity int64, ttl time.Duration) {
	t.Helper()
	now := f.clock.Now()
	err := f.repo.Reserve(context.Background(), productID, domain.Reservation{
		ID:         sessionID + "-r",
		SessionID:  sessionID,
		Quantity:   quantity,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
}

func TestReaperReleasesOnlyExpired(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()
	if err := f.repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	f.reserve(t, "p-1", "sess-abandoned", 3, 30*time.Minute)
	f.reserve(t, "p-1", "sess-active", 2, 2*time.Hour)

	// 推进 31 分钟：第一条过期，第二条仍然有效
	f.clock.Advance(31 * time.Minute)
	stats, err := f.reaper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.ReservationsReleased != 1 || stats.StockUnitsReleased != 3 {
		t.Errorf("stats = %+v, want 1 reservation / 3 units", stats)
	}

	record, _ := f.repo.Get(ctx, "p-1")
	if record.ReservedQuantity != 2 {
		t.Errorf("reserved = %d, want 2", record.ReservedQuantity)
	}
	if record.AvailableQuantity() != 8 {
		t.Errorf("available = %d, want 8", record.AvailableQuantity())
	}

	expired := f.events.byType(domain.EventStockExpired)
	if len(expired) != 1 || expired[0].Quantity != 3 {
		t.Errorf("expired events = %+v", expired)
	}
}

func TestReaperNoopWhenNothingExpired(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()
	if err := f.repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	f.reserve(t, "p-1", "sess-a", 3, time.Hour)

	stats, err := f.reaper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.ReservationsReleased != 0 || stats.StockUnitsReleased != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
	if len(f.events.byType(domain.EventStockExpired)) != 0 {
		t.Error("no-op pass must not publish events")
	}
}

func TestReaperCoversMultipleProducts(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		if err := f.repo.Create(ctx, id, 10, 0); err != nil {
			t.Fatal(err)
		}
		f.reserve(t, id, "sess-"+id, 2, 10*time.Minute)
	}

	f.clock.Advance(time.Hour)
	stats, err := f.reaper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.ReservationsReleased != 3 || stats.StockUnitsReleased != 6 {
		t.Errorf("stats = %+v, want 3 reservations / 6 units", stats)
	}
}

func TestReaperPassIsIdempotent(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()
	if err := f.repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	f.reserve(t, "p-1", "sess-a", 3, 10*time.Minute)
	f.clock.Advance(time.Hour)

	if _, err := f.reaper.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	stats, err := f.reaper.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ReservationsReleased != 0 {
		t.Errorf("second pass released %d reservations, want 0", stats.ReservationsReleased)
	}
}

// fakeLock 记录加锁尝试并可拒绝
type fakeLock struct {
	allow    bool
	tries    int
	unlocked int
}

func (l *fakeLock) TryLock() (bool, error) {
	l.tries++
	return l.allow, nil
}

func (l *fakeLock) Unlock() error {
	l.unlocked++
	return nil
}

func TestReaperSkipsPassWhenLockHeldElsewhere(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()
	if err := f.repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	f.reserve(t, "p-1", "sess-a", 3, 10*time.Minute)
	f.clock.Advance(time.Hour)

	lock := &fakeLock{allow: false}
	f.reaper.lock = lock
	f.reaper.runGuarded()

	if lock.tries != 1 {
		t.Errorf("lock tries = %d, want 1", lock.tries)
	}
	if lock.unlocked != 0 {
		t.Error("lock must not be unlocked when it was never acquired")
	}
	record, _ := f.repo.Get(ctx, "p-1")
	if record.ReservedQuantity != 3 {
		t.Error("pass ran despite the lock being held elsewhere")
	}
}

func TestReaperRunsPassWhenLockAcquired(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()
	if err := f.repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	f.reserve(t, "p-1", "sess-a", 3, 10*time.Minute)
	f.clock.Advance(time.Hour)

	lock := &fakeLock{allow: true}
	f.reaper.lock = lock
	f.reaper.runGuarded()

	if lock.unlocked != 1 {
		t.Errorf("lock unlocked %d times, want 1", lock.unlocked)
	}
	record, _ := f.repo.Get(ctx, "p-1")
	if record.ReservedQuantity != 0 {
		t.Errorf("reserved = %d, want 0", record.ReservedQuantity)
	}
}

func TestReaperStartStop(t *testing.T) {
	f := newReaperFixture(t)
	f.reaper.Start()
	done := make(chan struct{})
	go func() {
		f.reaper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	// 重复 Stop 必须安全
	f.reaper.Stop()
}
