package modbus

import (
	"fmt"
	"sort"

	"terminal-telemetry/internal/model"
)

// Key addresses one cached value: the slave plus the mapping that read it.
type Key struct {
	Slave     int
	MappingID int64
}

// Snapshot is one poll cycle's complete set of freshly read values.
type Snapshot map[Key]float64

type entityRef struct {
	Kind model.EntityKind
	ID   int64
}

// RegisterMap is the per-refresh directory from physical register space to
// logical entity columns. It is immutable once built; a mapping CRUD or a
// reconnect replaces the whole map.
type RegisterMap struct {
	bySlave  map[int][]model.RegisterMapping
	byID     map[int64]model.RegisterMapping
	byEntity map[entityRef][]model.RegisterMapping
}

// NewRegisterMap indexes the given mappings. Duplicate (slave, register)
// pairs are allowed — one register may feed several columns — but a
// duplicate mapping id is rejected because it is the cache key.
func NewRegisterMap(mappings []model.RegisterMapping) (*RegisterMap, error) {
	m := &RegisterMap{
		bySlave:  make(map[int][]model.RegisterMapping),
		byID:     make(map[int64]model.RegisterMapping, len(mappings)),
		byEntity: make(map[entityRef][]model.RegisterMapping),
	}
	for _, rm := range mappings {
		if _, dup := m.byID[rm.MappingID]; dup {
			return nil, fmt.Errorf("duplicate mapping id %d", rm.MappingID)
		}
		m.byID[rm.MappingID] = rm
		m.bySlave[rm.SlaveAddress] = append(m.bySlave[rm.SlaveAddress], rm)
		ref := entityRef{Kind: rm.EntityKind, ID: rm.EntityID}
		m.byEntity[ref] = append(m.byEntity[ref], rm)
	}
	for addr := range m.bySlave {
		rows := m.bySlave[addr]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].RegisterAddress != rows[j].RegisterAddress {
				return rows[i].RegisterAddress < rows[j].RegisterAddress
			}
			return rows[i].MappingID < rows[j].MappingID
		})
	}
	return m, nil
}

// ForSlave returns the slave's mappings in register-address order.
func (m *RegisterMap) ForSlave(address int) []model.RegisterMapping {
	return m.bySlave[address]
}

// Mapping looks up one mapping by id.
func (m *RegisterMap) Mapping(id int64) (model.RegisterMapping, bool) {
	rm, ok := m.byID[id]
	return rm, ok
}

// ForEntity returns the mappings feeding one entity's columns.
func (m *RegisterMap) ForEntity(kind model.EntityKind, entityID int64) []model.RegisterMapping {
	return m.byEntity[entityRef{Kind: kind, ID: entityID}]
}

// ColumnMapping finds the mapping feeding one column of an entity.
func (m *RegisterMap) ColumnMapping(kind model.EntityKind, entityID int64, column string) (model.RegisterMapping, bool) {
	for _, rm := range m.ForEntity(kind, entityID) {
		if rm.Column == column {
			return rm, true
		}
	}
	return model.RegisterMapping{}, false
}

// Len reports the number of indexed mappings.
func (m *RegisterMap) Len() int { return len(m.byID) }
