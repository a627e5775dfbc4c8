// internal/service/inventory/application/validator_test.go
package application

import (
	"context"
	"testing"
	"time"

	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/infrastructure"
)

func newValidatorFixture(t *testing.T) (*infrastructure.MemoryStockRepository, *InventoryValidator) {
	t.Helper()
	repo := infrastructure.NewMemoryStockRepository()
	return repo, NewInventoryValidator(repo, testTracer())
}

func TestValidateAllFulfillable(t *testing.T) {
	repo, validator := newValidatorFixture(t)
	ctx := context.Background()
	if err := repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, "p-2", 5, 0); err != nil {
		t.Fatal(err)
	}

	result, err := validator.Validate(ctx, []domain.CartItem{
		{ProductID: "p-1", Quantity: 3},
		{ProductID: "p-2", Quantity: 5},
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid {
		t.Errorf("result = %+v, want valid", result)
	}
	for _, item := range result.Items {
		if !item.CanFulfill {
			t.Errorf("item %s not fulfillable: %+v", item.ProductID, item)
		}
	}
}

func TestValidateReportsShortfall(t *testing.T) {
	repo, validator := newValidatorFixture(t)
	ctx := context.Background()
	if err := repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}
	// 预留 8 件后可用量只剩 2
	err := repo.Reserve(ctx, "p-1", domain.Reservation{
		ID: "r-1", SessionID: "sess-other", Quantity: 8,
		ReservedAt: testStart, ExpiresAt: testStart.Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := validator.Validate(ctx, []domain.CartItem{{ProductID: "p-1", Quantity: 5}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("result must be invalid when any item cannot be fulfilled")
	}
	item := result.Items[0]
	if item.Available != 2 || item.CanFulfill || item.MaxAllowed != 2 {
		t.Errorf("item = %+v", item)
	}
}

func TestValidateMissingProductIsZeroAvailability(t *testing.T) {
	_, validator := newValidatorFixture(t)

	result, err := validator.Validate(context.Background(), []domain.CartItem{{ProductID: "ghost", Quantity: 1}})
	if err != nil {
		t.Fatalf("missing product must not fail validation: %v", err)
	}
	item := result.Items[0]
	if item.Available != 0 || item.CanFulfill || item.MaxAllowed != 0 {
		t.Errorf("item = %+v, want zero availability", item)
	}
}

func TestValidateIsReadOnly(t *testing.T) {
	repo, validator := newValidatorFixture(t)
	ctx := context.Background()
	if err := repo.Create(ctx, "p-1", 10, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := validator.Validate(ctx, []domain.CartItem{{ProductID: "p-1", Quantity: 3}}); err != nil {
		t.Fatal(err)
	}
	record, _ := repo.Get(ctx, "p-1")
	if record.ReservedQuantity != 0 {
		t.Errorf("validation reserved stock: reserved = %d", record.ReservedQuantity)
	}
}
