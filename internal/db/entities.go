package db

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"terminal-telemetry/internal/model"
)

// mappedColumns translates mapping column names (as configured in the
// register mapping table) to the physical columns of each entity table.
var mappedColumns = map[model.EntityKind]map[string]string{
	model.KindStorageTank: {
		"CurrentVolume":      "current_volume",
		"CurrentMass":        "current_mass",
		"CurrentTemperature": "current_temperature",
	},
	// FlowRate and CurrentWeight are live-only: the arm and weighbridge
	// projectors never write them back.
	model.KindLoadingArm:  {},
	model.KindWeighbridge: {},
}

func tableFor(kind model.EntityKind) (any, string, error) {
	switch kind {
	case model.KindStorageTank:
		return &model.StorageTank{}, "storage_tank_id", nil
	case model.KindLoadingArm:
		return &model.LoadingArm{}, "loading_arm_id", nil
	case model.KindWeighbridge:
		return &model.Weighbridge{}, "weighbridge_id", nil
	default:
		return nil, "", errors.Wrapf(ErrValidation, "unknown entity kind %q", kind)
	}
}

// UpdateEntityFields writes mapped columns of one entity row and stamps the
// last-reading time where the table carries one. Returns the affected row
// count; zero rows is not an error here, callers decide.
func (d *DB) UpdateEntityFields(ctx context.Context, kind model.EntityKind, entityID int64, fields map[string]float64) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	table, idColumn, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	translated := make(map[string]any, len(fields)+1)
	for name, value := range fields {
		column, ok := mappedColumns[kind][name]
		if !ok {
			return 0, errors.Wrapf(ErrValidation, "column %q is not writable on %s", name, kind)
		}
		translated[column] = value
	}
	if kind == model.KindStorageTank {
		translated["last_reading_at"] = time.Now()
	}
	res := d.ORM.WithContext(ctx).Model(table).Where(idColumn+" = ?", entityID).Updates(translated)
	if res.Error != nil {
		return 0, errors.Wrap(ErrPersistence, res.Error.Error())
	}
	return res.RowsAffected, nil
}

// --------------------
// Entity lists and details
// --------------------

func (d *DB) ListStorageTanks(ctx context.Context) ([]model.StorageTank, error) {
	var tanks []model.StorageTank
	if err := d.ORM.WithContext(ctx).Order("storage_tank_name").Find(&tanks).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return tanks, nil
}

func (d *DB) ListLoadingArms(ctx context.Context) ([]model.LoadingArm, error) {
	var arms []model.LoadingArm
	if err := d.ORM.WithContext(ctx).Order("loading_arm_id").Find(&arms).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return arms, nil
}

func (d *DB) ListWeighbridges(ctx context.Context) ([]model.Weighbridge, error) {
	var bridges []model.Weighbridge
	if err := d.ORM.WithContext(ctx).Order("weighbridge_id").Find(&bridges).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return bridges, nil
}

// InsertTankReading appends one historical tank sample.
func (d *DB) InsertTankReading(ctx context.Context, r *model.TankReading) error {
	if r.ReadAt.IsZero() {
		r.ReadAt = time.Now()
	}
	if err := d.ORM.WithContext(ctx).Create(r).Error; err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	return nil
}

// TankReadings returns historical samples for a tank within [from, to].
func (d *DB) TankReadings(ctx context.Context, tankID int64, from, to time.Time) ([]model.TankReading, error) {
	var rows []model.TankReading
	if err := d.ORM.WithContext(ctx).
		Where("storage_tank_id = ? AND read_at BETWEEN ? AND ?", tankID, from, to).
		Order("read_at").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return rows, nil
}

// --------------------
// Orders
// --------------------

var weighableStatuses = []string{model.OrderPending, model.OrderReady, model.OrderInProgress}

// ListWeighableOrders returns orders in a status that allows starting a
// weighing, newest first.
func (d *DB) ListWeighableOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := d.ORM.WithContext(ctx).
		Where("status IN ?", weighableStatuses).
		Order("order_id DESC").Find(&orders).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return orders, nil
}

// ClaimOrder marks an order InProgress for one weighbridge/driver. The
// status guard is repeated in the UPDATE so a concurrent claim loses the
// race with zero affected rows instead of double-assigning the order.
func (d *DB) ClaimOrder(ctx context.Context, orderID, weighbridgeID, driverID int64, vehicleLicense string) (*model.Order, error) {
	var claimed model.Order
	err := d.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		err := tx.Where("order_id = ? AND status IN ?", orderID, weighableStatuses).First(&o).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrNotFound, "order %d not available for weighing", orderID)
		}
		if err != nil {
			return errors.Wrap(ErrPersistence, err.Error())
		}
		res := tx.Model(&model.Order{}).
			Where("order_id = ? AND status IN ?", orderID, weighableStatuses).
			Updates(map[string]any{
				"status":          model.OrderInProgress,
				"weighbridge_id":  weighbridgeID,
				"driver_id":       driverID,
				"vehicle_license": vehicleLicense,
			})
		if res.Error != nil {
			return errors.Wrap(ErrPersistence, res.Error.Error())
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrPersistence, "order %d claimed concurrently", orderID)
		}
		claimed = o
		claimed.Status = model.OrderInProgress
		claimed.WeighbridgeID = &weighbridgeID
		claimed.DriverID = &driverID
		claimed.VehicleLicense = vehicleLicense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// CompleteOrder stores the captured weights and moves the order to
// Completed. Zero affected rows surfaces as a persistence failure so the
// caller keeps its session alive.
func (d *DB) CompleteOrder(ctx context.Context, orderID int64, tare, gross, net float64) error {
	now := time.Now()
	res := d.ORM.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND status = ?", orderID, model.OrderInProgress).
		Updates(map[string]any{
			"tare_weight":  tare,
			"gross_weight": gross,
			"net_weight":   net,
			"status":       model.OrderCompleted,
			"loaded_at":    now,
		})
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrPersistence, "order %d was not in progress", orderID)
	}
	return nil
}

// GetOrder fetches one order regardless of status.
func (d *DB) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var o model.Order
	err := d.ORM.WithContext(ctx).First(&o, "order_id = ?", orderID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "order %d", orderID)
	}
	if err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return &o, nil
}
