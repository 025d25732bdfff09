package projector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"terminal-telemetry/internal/modbus"
	"terminal-telemetry/internal/model"
)

// flowRateColumn is the loading arm's liveness column: an arm counts as
// active only while a fresh flow reading arrives.
const flowRateColumn = "FlowRate"

// Arm is the live view of one loading arm.
type Arm struct {
	ID            int64
	Code          string
	Name          string
	LoadingWeight float64
	UnitName      string
	FlowRate      float64
	Active        bool
	LastReadingAt time.Time
	MappingID     int64
}

// ArmProjector marks arms active and sets their flow rate from each
// snapshot. Flow rate is live-only and never persisted.
type ArmProjector struct {
	store ArmStore
	log   zerolog.Logger

	mu     sync.Mutex
	arms   []Arm
	regmap *modbus.RegisterMap
	subs   []func([]Arm)
}

func NewArmProjector(store ArmStore, log zerolog.Logger) *ArmProjector {
	return &ArmProjector{store: store, log: log}
}

// Reload refreshes the arm collection from the repository.
func (p *ArmProjector) Reload(ctx context.Context) error {
	rows, err := p.store.ListLoadingArms(ctx)
	if err != nil {
		return err
	}
	arms := make([]Arm, 0, len(rows))
	for _, r := range rows {
		arms = append(arms, Arm{
			ID:            r.ID,
			Code:          r.Code,
			Name:          r.Name,
			LoadingWeight: r.LoadingWeight,
			UnitName:      r.UnitName,
		})
	}
	p.mu.Lock()
	p.arms = arms
	p.resolveMappingsLocked()
	p.mu.Unlock()
	p.publish()
	return nil
}

// SetRegisterMap installs the mapping directory and re-resolves each
// arm's flow-rate mapping.
func (p *ArmProjector) SetRegisterMap(rm *modbus.RegisterMap) {
	p.mu.Lock()
	p.regmap = rm
	p.resolveMappingsLocked()
	p.mu.Unlock()
}

func (p *ArmProjector) resolveMappingsLocked() {
	if p.regmap == nil {
		return
	}
	for i := range p.arms {
		if m, ok := p.regmap.ColumnMapping(model.KindLoadingArm, p.arms[i].ID, flowRateColumn); ok {
			p.arms[i].MappingID = m.MappingID
		} else {
			p.arms[i].MappingID = 0
		}
	}
}

// OnUpdate registers a subscriber for the refreshed arm list.
func (p *ArmProjector) OnUpdate(fn func([]Arm)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// HandleSnapshot marks each arm active when its flow-rate mapping shows up
// in the snapshot, inactive otherwise. Absence means no fresh reading this
// cycle, not an error.
func (p *ArmProjector) HandleSnapshot(s modbus.Snapshot) {
	p.mu.Lock()
	rm := p.regmap
	if rm == nil {
		p.mu.Unlock()
		return
	}
	now := time.Now()
	for i := range p.arms {
		arm := &p.arms[i]
		m, ok := rm.ColumnMapping(model.KindLoadingArm, arm.ID, flowRateColumn)
		if !ok {
			arm.Active = false
			continue
		}
		value, fresh := s[modbus.Key{Slave: m.SlaveAddress, MappingID: m.MappingID}]
		if fresh {
			arm.FlowRate = value
			arm.LastReadingAt = now
			arm.Active = true
		} else {
			arm.Active = false
		}
	}
	p.mu.Unlock()
	p.publish()
}

// Arms returns a copy of the current arm views.
func (p *ArmProjector) Arms() []Arm {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Arm, len(p.arms))
	copy(out, p.arms)
	return out
}

func (p *ArmProjector) publish() {
	p.mu.Lock()
	subs := p.subs
	arms := make([]Arm, len(p.arms))
	copy(arms, p.arms)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(arms)
	}
}
