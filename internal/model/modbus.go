package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Register types as stored in the mapping table. Each one corresponds to
// exactly one Modbus read function code.
const (
	RegisterCoil     = "coil"
	RegisterDiscrete = "discrete"
	RegisterHolding  = "holding"
	RegisterInput    = "input"
)

// FunctionCodeFor returns the read function code for a register type.
func FunctionCodeFor(registerType string) (int, error) {
	switch registerType {
	case RegisterCoil:
		return 1, nil
	case RegisterDiscrete:
		return 2, nil
	case RegisterHolding:
		return 3, nil
	case RegisterInput:
		return 4, nil
	default:
		return 0, fmt.Errorf("unknown register type %q", registerType)
	}
}

// EntityKind names the table a register mapping feeds.
type EntityKind string

const (
	KindStorageTank EntityKind = "StorageTank"
	KindLoadingArm  EntityKind = "LoadingArm"
	KindWeighbridge EntityKind = "Weighbridge"
)

// EntityKinds lists the kinds a mapping may target, in display order.
func EntityKinds() []EntityKind {
	return []EntityKind{KindStorageTank, KindLoadingArm, KindWeighbridge}
}

// SlaveDevice is an RTU field device on the shared serial bus.
// Identity is the bus address (1..247). Active is the operator enable
// flag that selects the device into the poll plan; Connected is
// poller-maintained reachability and never affects the plan, so a
// device that misses a cycle keeps being polled and can recover.
type SlaveDevice struct {
	Address   int            `gorm:"column:slave_address;primaryKey"`
	Name      string         `gorm:"column:slave_name"`
	Baudrate  int            `gorm:"column:baudrate"`
	Port      string         `gorm:"column:port"`
	DataBits  int            `gorm:"column:data_bits"`
	Parity    string         `gorm:"column:parity"`
	StopBits  int            `gorm:"column:stop_bits"`
	Active    bool           `gorm:"column:active"`
	Connected bool           `gorm:"column:connected"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`

	Mappings []RegisterMapping `gorm:"foreignKey:SlaveAddress;references:Address"`
}

func (SlaveDevice) TableName() string { return "slave_devices" }

// RegisterMapping binds one physical register to one column of a logical
// entity. (SlaveAddress, RegisterAddress) may repeat across rows when a
// register feeds multiple columns; MappingID is the cache key.
type RegisterMapping struct {
	MappingID       int64          `gorm:"column:mapping_id;primaryKey;autoIncrement"`
	SlaveAddress    int            `gorm:"column:slave_address;index"`
	RegisterAddress uint16         `gorm:"column:register_address"`
	RegisterType    string         `gorm:"column:register_type"`
	FunctionCode    int            `gorm:"column:function_code"`
	EntityKind      EntityKind     `gorm:"column:entity_kind;index"`
	EntityID        int64          `gorm:"column:entity_id"`
	Column          string         `gorm:"column:mapped_column"`
	ScaleFactor     float64        `gorm:"column:scale_factor;default:1"`
	Offset          float64        `gorm:"column:register_offset;default:0"`
	StoreHistorical bool           `gorm:"column:store_historical"`
	ReadOnly        bool           `gorm:"column:read_only"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (RegisterMapping) TableName() string { return "register_mappings" }
