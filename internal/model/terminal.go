package model

import (
	"time"

	"gorm.io/gorm"
)

// StorageTank holds product in the tank farm. Current* columns are written
// only by the tank projector; everything else is operator-maintained.
type StorageTank struct {
	ID                 int64          `gorm:"column:storage_tank_id;primaryKey;autoIncrement"`
	Name               string         `gorm:"column:storage_tank_name;uniqueIndex"`
	ProductName        string         `gorm:"column:product_name"`
	OwnerName          string         `gorm:"column:owner_name"`
	TotalVolume        float64        `gorm:"column:total_volume"`
	CurrentVolume      float64        `gorm:"column:current_volume"`
	CurrentMass        float64        `gorm:"column:current_mass"`
	CurrentTemperature float64        `gorm:"column:current_temperature"`
	UnitName           string         `gorm:"column:unit_name"`
	LastReadingAt      *time.Time     `gorm:"column:last_reading_at"`
	Remarks            string         `gorm:"column:remarks"`
	DeletedAt          gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (StorageTank) TableName() string { return "storage_tanks" }

// TankReading is one historical sample for a storage tank, written when a
// mapping has the store-historical flag set.
type TankReading struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StorageTankID int64     `gorm:"column:storage_tank_id;index"`
	Volume        float64   `gorm:"column:volume"`
	Mass          float64   `gorm:"column:mass"`
	Temperature   float64   `gorm:"column:temperature"`
	ReadAt        time.Time `gorm:"column:read_at;index"`
}

func (TankReading) TableName() string { return "tank_readings" }

// LoadingArm dispenses product into tank trucks. FlowRate is live-only and
// never persisted; LoadingWeight is the configured arm capacity.
type LoadingArm struct {
	ID            int64          `gorm:"column:loading_arm_id;primaryKey;autoIncrement"`
	Code          string         `gorm:"column:loading_arm_code"`
	Name          string         `gorm:"column:loading_arm_name"`
	LoadingWeight float64        `gorm:"column:loading_weight"`
	UnitName      string         `gorm:"column:unit_name"`
	LastReadingAt *time.Time     `gorm:"column:last_reading_at"`
	Remarks       string         `gorm:"column:remarks"`
	DeletedAt     gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (LoadingArm) TableName() string { return "loading_arms" }

// Weighbridge is a truck scale.
type Weighbridge struct {
	ID        int64          `gorm:"column:weighbridge_id;primaryKey;autoIncrement"`
	Code      string         `gorm:"column:weighbridge_code"`
	Name      string         `gorm:"column:weighbridge_name"`
	Active    bool           `gorm:"column:active"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Weighbridge) TableName() string { return "weighbridges" }

// Order statuses. Only Pending/Ready/InProgress orders may be claimed for
// weighing.
const (
	OrderPending    = "Pending"
	OrderReady      = "Ready"
	OrderInProgress = "InProgress"
	OrderCompleted  = "Completed"
	OrderCancelled  = "Cancelled"
)

// Order is one truck-loading order. The weighing workflow claims it,
// captures tare and gross weights off the weighbridge and completes it.
type Order struct {
	ID              int64          `gorm:"column:order_id;primaryKey;autoIncrement"`
	ProductName     string         `gorm:"column:product_name"`
	PlannedQuantity float64        `gorm:"column:planned_quantity"`
	Status          string         `gorm:"column:status;index"`
	WeighbridgeID   *int64         `gorm:"column:weighbridge_id"`
	DriverID        *int64         `gorm:"column:driver_id"`
	VehicleLicense  string         `gorm:"column:vehicle_license"`
	TareWeight      *float64       `gorm:"column:tare_weight"`
	GrossWeight     *float64       `gorm:"column:gross_weight"`
	NetWeight       *float64       `gorm:"column:net_weight"`
	LoadedAt        *time.Time     `gorm:"column:loaded_at"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Order) TableName() string { return "orders" }
