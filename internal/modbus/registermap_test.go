package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminal-telemetry/internal/model"
)

func TestRegisterMapOrdersBySlaveAndRegister(t *testing.T) {
	rm, err := NewRegisterMap([]model.RegisterMapping{
		{MappingID: 1, SlaveAddress: 2, RegisterAddress: 30},
		{MappingID: 2, SlaveAddress: 2, RegisterAddress: 10},
		{MappingID: 3, SlaveAddress: 2, RegisterAddress: 20},
		{MappingID: 4, SlaveAddress: 5, RegisterAddress: 0},
	})
	require.NoError(t, err)
	require.Equal(t, 4, rm.Len())

	rows := rm.ForSlave(2)
	require.Len(t, rows, 3)
	assert.Equal(t, uint16(10), rows[0].RegisterAddress)
	assert.Equal(t, uint16(20), rows[1].RegisterAddress)
	assert.Equal(t, uint16(30), rows[2].RegisterAddress)

	assert.Len(t, rm.ForSlave(5), 1)
	assert.Empty(t, rm.ForSlave(9))
}

func TestRegisterMapAllowsSharedRegister(t *testing.T) {
	// One physical register feeding two columns is legal; only the
	// mapping id must be unique.
	rm, err := NewRegisterMap([]model.RegisterMapping{
		{MappingID: 1, SlaveAddress: 1, RegisterAddress: 100, Column: "CurrentVolume"},
		{MappingID: 2, SlaveAddress: 1, RegisterAddress: 100, Column: "CurrentMass"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rm.Len())

	rows := rm.ForSlave(1)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].MappingID)
	assert.Equal(t, int64(2), rows[1].MappingID)
}

func TestRegisterMapRejectsDuplicateMappingID(t *testing.T) {
	_, err := NewRegisterMap([]model.RegisterMapping{
		{MappingID: 1, SlaveAddress: 1, RegisterAddress: 0},
		{MappingID: 1, SlaveAddress: 2, RegisterAddress: 0},
	})
	require.Error(t, err)
}

func TestRegisterMapEntityLookups(t *testing.T) {
	rm, err := NewRegisterMap([]model.RegisterMapping{
		{MappingID: 1, SlaveAddress: 1, RegisterAddress: 0, EntityKind: model.KindStorageTank, EntityID: 10, Column: "CurrentVolume"},
		{MappingID: 2, SlaveAddress: 1, RegisterAddress: 1, EntityKind: model.KindStorageTank, EntityID: 10, Column: "CurrentTemperature"},
		{MappingID: 3, SlaveAddress: 1, RegisterAddress: 2, EntityKind: model.KindWeighbridge, EntityID: 10, Column: "CurrentWeight"},
	})
	require.NoError(t, err)

	assert.Len(t, rm.ForEntity(model.KindStorageTank, 10), 2)
	assert.Empty(t, rm.ForEntity(model.KindLoadingArm, 10))

	m, ok := rm.ColumnMapping(model.KindStorageTank, 10, "CurrentTemperature")
	require.True(t, ok)
	assert.Equal(t, int64(2), m.MappingID)

	_, ok = rm.ColumnMapping(model.KindStorageTank, 10, "CurrentWeight")
	assert.False(t, ok)

	got, ok := rm.Mapping(3)
	require.True(t, ok)
	assert.Equal(t, model.KindWeighbridge, got.EntityKind)
}
