package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"terminal-telemetry/internal/model"
)

func TestUpdateEntityFieldsStorageTank(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	tank := &model.StorageTank{Name: "TK-101", ProductName: "Diesel"}
	if err := d.ORM.Create(tank).Error; err != nil {
		t.Fatalf("create tank: %v", err)
	}

	n, err := d.UpdateEntityFields(ctx, model.KindStorageTank, tank.ID, map[string]float64{
		"CurrentVolume":      8250,
		"CurrentTemperature": 21.5,
	})
	if err != nil {
		t.Fatalf("UpdateEntityFields failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected row, got %d", n)
	}

	var got model.StorageTank
	if err := d.ORM.First(&got, "storage_tank_id = ?", tank.ID).Error; err != nil {
		t.Fatalf("reload tank: %v", err)
	}
	if got.CurrentVolume != 8250 || got.CurrentTemperature != 21.5 {
		t.Fatalf("fields not written: %+v", got)
	}
	if got.LastReadingAt == nil {
		t.Fatal("expected last_reading_at to be stamped")
	}
}

func TestUpdateEntityFieldsRejectsLiveOnlyColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	// FlowRate and CurrentWeight never hit the database.
	if _, err := d.UpdateEntityFields(ctx, model.KindLoadingArm, 1, map[string]float64{"FlowRate": 420}); !errors.Is(err, ErrValidation) {
		t.Fatalf("FlowRate: want ErrValidation, got %v", err)
	}
	if _, err := d.UpdateEntityFields(ctx, model.KindWeighbridge, 1, map[string]float64{"CurrentWeight": 7480}); !errors.Is(err, ErrValidation) {
		t.Fatalf("CurrentWeight: want ErrValidation, got %v", err)
	}
}

func TestTankReadingsWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := d.InsertTankReading(ctx, &model.TankReading{
			StorageTankID: 7,
			Volume:        float64(8000 + i),
			ReadAt:        base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertTankReading %d failed: %v", i, err)
		}
	}

	rows, err := d.TankReadings(ctx, 7, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("TankReadings failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 readings in window, got %d", len(rows))
	}
	if rows[0].Volume != 8000 || rows[1].Volume != 8001 {
		t.Fatalf("unexpected readings: %+v", rows)
	}
}

func TestClaimOrderLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	order := &model.Order{ProductName: "Diesel", PlannedQuantity: 25000, Status: model.OrderPending}
	if err := d.ORM.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}

	claimed, err := d.ClaimOrder(ctx, order.ID, 1, 5, "B-1234-XY")
	if err != nil {
		t.Fatalf("ClaimOrder failed: %v", err)
	}
	if claimed.Status != model.OrderInProgress {
		t.Fatalf("expected status InProgress, got %q", claimed.Status)
	}
	if claimed.WeighbridgeID == nil || *claimed.WeighbridgeID != 1 {
		t.Fatalf("weighbridge not assigned: %+v", claimed)
	}

	// An InProgress order is still weighable, so re-claiming from the
	// same workflow succeeds; a Completed one is not.
	if _, err := d.ClaimOrder(ctx, order.ID, 1, 5, "B-1234-XY"); err != nil {
		t.Fatalf("re-claim InProgress failed: %v", err)
	}

	if err := d.CompleteOrder(ctx, order.ID, 7480, 32480, 25000); err != nil {
		t.Fatalf("CompleteOrder failed: %v", err)
	}
	got, err := d.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != model.OrderCompleted {
		t.Fatalf("expected Completed, got %q", got.Status)
	}
	if got.NetWeight == nil || *got.NetWeight != 25000 {
		t.Fatalf("net weight not stored: %+v", got)
	}
	if got.LoadedAt == nil {
		t.Fatal("expected loaded_at to be stamped")
	}

	if _, err := d.ClaimOrder(ctx, order.ID, 1, 5, "B-1234-XY"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("claim Completed: want ErrNotFound, got %v", err)
	}
	if err := d.CompleteOrder(ctx, order.ID, 1, 2, 1); !errors.Is(err, ErrPersistence) {
		t.Fatalf("double complete: want ErrPersistence, got %v", err)
	}
}

func TestListWeighableOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	statuses := []string{
		model.OrderPending,
		model.OrderReady,
		model.OrderInProgress,
		model.OrderCompleted,
		model.OrderCancelled,
	}
	for _, s := range statuses {
		if err := d.ORM.Create(&model.Order{ProductName: "Diesel", Status: s}).Error; err != nil {
			t.Fatalf("create %s order: %v", s, err)
		}
	}

	orders, err := d.ListWeighableOrders(ctx)
	if err != nil {
		t.Fatalf("ListWeighableOrders failed: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 weighable orders, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Status == model.OrderCompleted || o.Status == model.OrderCancelled {
			t.Fatalf("finished order %d leaked into weighable list", o.ID)
		}
	}
}
