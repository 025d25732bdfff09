package registry

import (
	"context"

	"terminal-telemetry/internal/db"
	"terminal-telemetry/internal/model"
)

// --------------------
// Mapping DTOs and converters
// --------------------

type Mapping struct {
	MappingID       int64
	SlaveAddress    int
	RegisterAddress uint16
	RegisterType    string
	FunctionCode    int
	EntityKind      string
	EntityID        int64
	Column          string
	ScaleFactor     float64
	Offset          float64
	StoreHistorical bool
	ReadOnly        bool
}

func toModelMapping(m *Mapping) *model.RegisterMapping {
	if m == nil {
		return nil
	}
	return &model.RegisterMapping{
		MappingID:       m.MappingID,
		SlaveAddress:    m.SlaveAddress,
		RegisterAddress: m.RegisterAddress,
		RegisterType:    m.RegisterType,
		FunctionCode:    m.FunctionCode,
		EntityKind:      model.EntityKind(m.EntityKind),
		EntityID:        m.EntityID,
		Column:          m.Column,
		ScaleFactor:     m.ScaleFactor,
		Offset:          m.Offset,
		StoreHistorical: m.StoreHistorical,
		ReadOnly:        m.ReadOnly,
	}
}

func fromModelMapping(m *model.RegisterMapping) *Mapping {
	if m == nil {
		return nil
	}
	return &Mapping{
		MappingID:       m.MappingID,
		SlaveAddress:    m.SlaveAddress,
		RegisterAddress: m.RegisterAddress,
		RegisterType:    m.RegisterType,
		FunctionCode:    m.FunctionCode,
		EntityKind:      string(m.EntityKind),
		EntityID:        m.EntityID,
		Column:          m.Column,
		ScaleFactor:     m.ScaleFactor,
		Offset:          m.Offset,
		StoreHistorical: m.StoreHistorical,
		ReadOnly:        m.ReadOnly,
	}
}

// --------------------
// Mapping management (CRUD)
// --------------------

// CreateMapping stores a new mapping and reports its generated id through
// the DTO.
func (c *Client) CreateMapping(ctx context.Context, m *Mapping) error {
	mm := toModelMapping(m)
	if err := c.db.AddMapping(ctx, mm); err != nil {
		return err
	}
	m.MappingID = mm.MappingID
	return nil
}

func (c *Client) GetMapping(ctx context.Context, mappingID int64) (*Mapping, error) {
	m, err := c.db.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	return fromModelMapping(m), nil
}

func (c *Client) ListMappings(ctx context.Context) ([]Mapping, error) {
	list, err := c.db.ListActiveMappings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Mapping, 0, len(list))
	for i := range list {
		out = append(out, *fromModelMapping(&list[i]))
	}
	return out, nil
}

// ListMappingsForEntity returns the mappings that feed one tank, arm or
// weighbridge.
func (c *Client) ListMappingsForEntity(ctx context.Context, kind string, entityID int64) ([]Mapping, error) {
	list, err := c.db.MappingsForEntity(ctx, model.EntityKind(kind), entityID)
	if err != nil {
		return nil, err
	}
	out := make([]Mapping, 0, len(list))
	for i := range list {
		out = append(out, *fromModelMapping(&list[i]))
	}
	return out, nil
}

func (c *Client) UpdateMapping(ctx context.Context, m *Mapping) error {
	return c.db.UpdateMapping(ctx, toModelMapping(m))
}

func (c *Client) DeleteMapping(ctx context.Context, mappingID int64) error {
	return c.db.DeleteMapping(ctx, mappingID)
}

// TableColumns lists the columns a mapping may target for an entity kind.
func TableColumns(kind string) ([]string, error) {
	return db.TableColumns(model.EntityKind(kind))
}

// EntityKinds lists the kinds a mapping may target, in display order.
func EntityKinds() []string {
	kinds := model.EntityKinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
