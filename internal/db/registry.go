package db

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"terminal-telemetry/internal/model"
)

// Registry failure taxonomy. CRUD callers branch on these with errors.Is.
var (
	ErrValidation  = stderrors.New("validation error")
	ErrNotFound    = stderrors.New("not found")
	ErrPersistence = stderrors.New("persistence error")
)

// Baudrates the serial bus supports.
var allowedBaudrates = map[int]bool{9600: true, 19200: true, 38400: true, 57600: true, 115200: true}

func validateDevice(d *model.SlaveDevice) error {
	if d.Address < 1 || d.Address > 247 {
		return errors.Wrapf(ErrValidation, "slave address %d outside 1..247", d.Address)
	}
	if d.Name == "" {
		return errors.Wrap(ErrValidation, "device name required")
	}
	if !allowedBaudrates[d.Baudrate] {
		return errors.Wrapf(ErrValidation, "unsupported baudrate %d", d.Baudrate)
	}
	switch d.Parity {
	case "N", "E", "O":
	default:
		return errors.Wrapf(ErrValidation, "parity must be N, E or O, got %q", d.Parity)
	}
	if d.StopBits != 1 && d.StopBits != 2 {
		return errors.Wrapf(ErrValidation, "stop bits must be 1 or 2, got %d", d.StopBits)
	}
	if d.DataBits != 7 && d.DataBits != 8 {
		return errors.Wrapf(ErrValidation, "data bits must be 7 or 8, got %d", d.DataBits)
	}
	return nil
}

func validateMapping(m *model.RegisterMapping) error {
	fc, err := model.FunctionCodeFor(m.RegisterType)
	if err != nil {
		return errors.Wrap(ErrValidation, err.Error())
	}
	if m.FunctionCode != fc {
		return errors.Wrapf(ErrValidation, "function code %d does not match register type %q (want %d)",
			m.FunctionCode, m.RegisterType, fc)
	}
	switch m.EntityKind {
	case model.KindStorageTank, model.KindLoadingArm, model.KindWeighbridge:
	default:
		return errors.Wrapf(ErrValidation, "unknown entity kind %q", m.EntityKind)
	}
	if m.Column == "" {
		return errors.Wrap(ErrValidation, "mapped column required")
	}
	return nil
}

// --------------------
// Slave devices
// --------------------

// ListActiveDevices returns non-deleted devices flagged active, in bus
// address order. This is the poll plan's device list.
func (d *DB) ListActiveDevices(ctx context.Context) ([]model.SlaveDevice, error) {
	var devs []model.SlaveDevice
	if err := d.ORM.WithContext(ctx).Where("active = ?", true).Order("slave_address").Find(&devs).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return devs, nil
}

// ListDevices returns all non-deleted devices in bus address order.
func (d *DB) ListDevices(ctx context.Context) ([]model.SlaveDevice, error) {
	var devs []model.SlaveDevice
	if err := d.ORM.WithContext(ctx).Order("slave_address").Find(&devs).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return devs, nil
}

func (d *DB) GetDevice(ctx context.Context, address int) (*model.SlaveDevice, error) {
	var dev model.SlaveDevice
	err := d.ORM.WithContext(ctx).First(&dev, "slave_address = ?", address).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "device %d", address)
	}
	if err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return &dev, nil
}

func (d *DB) AddDevice(ctx context.Context, dev *model.SlaveDevice) error {
	if err := validateDevice(dev); err != nil {
		return err
	}
	var count int64
	if err := d.ORM.WithContext(ctx).Model(&model.SlaveDevice{}).
		Where("slave_address = ?", dev.Address).Count(&count).Error; err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	if count > 0 {
		return errors.Wrapf(ErrValidation, "device with address %d already exists", dev.Address)
	}
	if err := d.ORM.WithContext(ctx).Create(dev).Error; err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	return nil
}

func (d *DB) UpdateDevice(ctx context.Context, dev *model.SlaveDevice) error {
	if err := validateDevice(dev); err != nil {
		return err
	}
	res := d.ORM.WithContext(ctx).Model(&model.SlaveDevice{}).
		Where("slave_address = ?", dev.Address).
		Updates(map[string]any{
			"slave_name": dev.Name,
			"baudrate":   dev.Baudrate,
			"port":       dev.Port,
			"data_bits":  dev.DataBits,
			"parity":     dev.Parity,
			"stop_bits":  dev.StopBits,
			"active":     dev.Active,
		})
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "device %d", dev.Address)
	}
	return nil
}

// DeleteDevice soft-deletes a device. Its mappings stay in place but drop
// out of the poll plan once the map is rebuilt without their device.
func (d *DB) DeleteDevice(ctx context.Context, address int) error {
	res := d.ORM.WithContext(ctx).Where("slave_address = ?", address).Delete(&model.SlaveDevice{})
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "device %d", address)
	}
	return nil
}

// SetDeviceCommStatus records whether a device answered during the last
// poll cycle. This writes the connected column only: the active flag
// belongs to the operator, and filtering the poll plan on a column the
// poller writes would turn a transient failure into a permanent drop.
func (d *DB) SetDeviceCommStatus(ctx context.Context, address int, connected bool) error {
	res := d.ORM.WithContext(ctx).Model(&model.SlaveDevice{}).
		Where("slave_address = ?", address).
		Update("connected", connected)
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "device %d", address)
	}
	return nil
}

// --------------------
// Register mappings
// --------------------

// ListActiveMappings returns non-deleted mappings in the poll order:
// slave address ascending, then register address ascending.
func (d *DB) ListActiveMappings(ctx context.Context) ([]model.RegisterMapping, error) {
	var maps []model.RegisterMapping
	if err := d.ORM.WithContext(ctx).
		Order("slave_address, register_address").Find(&maps).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return maps, nil
}

// MappingsForEntity returns the non-deleted mappings feeding one entity.
func (d *DB) MappingsForEntity(ctx context.Context, kind model.EntityKind, entityID int64) ([]model.RegisterMapping, error) {
	var maps []model.RegisterMapping
	if err := d.ORM.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("register_address").Find(&maps).Error; err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return maps, nil
}

func (d *DB) GetMapping(ctx context.Context, mappingID int64) (*model.RegisterMapping, error) {
	var m model.RegisterMapping
	err := d.ORM.WithContext(ctx).First(&m, "mapping_id = ?", mappingID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "mapping %d", mappingID)
	}
	if err != nil {
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}
	return &m, nil
}

func (d *DB) AddMapping(ctx context.Context, m *model.RegisterMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}
	if _, err := d.GetDevice(ctx, m.SlaveAddress); err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return errors.Wrapf(ErrValidation, "mapping references unknown device %d", m.SlaveAddress)
		}
		return err
	}
	if err := d.ORM.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	return nil
}

func (d *DB) UpdateMapping(ctx context.Context, m *model.RegisterMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}
	res := d.ORM.WithContext(ctx).Model(&model.RegisterMapping{}).
		Where("mapping_id = ?", m.MappingID).
		Updates(map[string]any{
			"slave_address":    m.SlaveAddress,
			"register_address": m.RegisterAddress,
			"register_type":    m.RegisterType,
			"function_code":    m.FunctionCode,
			"entity_kind":      m.EntityKind,
			"entity_id":        m.EntityID,
			"mapped_column":    m.Column,
			"scale_factor":     m.ScaleFactor,
			"register_offset":  m.Offset,
			"store_historical": m.StoreHistorical,
			"read_only":        m.ReadOnly,
		})
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "mapping %d", m.MappingID)
	}
	return nil
}

func (d *DB) DeleteMapping(ctx context.Context, mappingID int64) error {
	res := d.ORM.WithContext(ctx).Where("mapping_id = ?", mappingID).Delete(&model.RegisterMapping{})
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "mapping %d", mappingID)
	}
	return nil
}

// TableColumns lists the columns a mapping may target for a given kind.
// The original schema exposed this through INFORMATION_SCHEMA; here the
// set is fixed per model.
func TableColumns(kind model.EntityKind) ([]string, error) {
	switch kind {
	case model.KindStorageTank:
		return []string{"CurrentVolume", "CurrentMass", "CurrentTemperature"}, nil
	case model.KindLoadingArm:
		return []string{"FlowRate"}, nil
	case model.KindWeighbridge:
		return []string{"CurrentWeight"}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}
