// Package projector translates raw poll snapshots into domain entity
// state for storage tanks, loading arms and weighbridges, and hosts the
// weighbridge weighing workflow.
package projector

import (
	"context"

	"terminal-telemetry/internal/model"
)

// TankStore is what the tank projector needs from the repository.
type TankStore interface {
	ListStorageTanks(ctx context.Context) ([]model.StorageTank, error)
	UpdateEntityFields(ctx context.Context, kind model.EntityKind, entityID int64, fields map[string]float64) (int64, error)
	InsertTankReading(ctx context.Context, r *model.TankReading) error
}

// ArmStore is what the loading-arm projector needs from the repository.
type ArmStore interface {
	ListLoadingArms(ctx context.Context) ([]model.LoadingArm, error)
}

// WeighbridgeStore is what the weighbridge projector needs from the
// repository.
type WeighbridgeStore interface {
	ListWeighbridges(ctx context.Context) ([]model.Weighbridge, error)
}

// OrderStore carries the order transitions of the weighing workflow.
type OrderStore interface {
	ClaimOrder(ctx context.Context, orderID, weighbridgeID, driverID int64, vehicleLicense string) (*model.Order, error)
	CompleteOrder(ctx context.Context, orderID int64, tare, gross, net float64) error
}
