package projector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"terminal-telemetry/internal/modbus"
	"terminal-telemetry/internal/model"
)

// DefaultPersistInterval decouples the repository write rate from the
// sub-second raw poll rate.
const DefaultPersistInterval = 10 * time.Second

// Tank is the live view of one storage tank.
type Tank struct {
	ID                 int64
	Name               string
	ProductName        string
	OwnerName          string
	UnitName           string
	TotalVolume        float64
	CurrentVolume      float64
	CurrentMass        float64
	CurrentTemperature float64
	LastReadingAt      time.Time
	Active             bool
}

// TankProjector applies snapshots to the tank collection and pushes the
// accumulated readings back to the repository on a slow timer.
type TankProjector struct {
	store    TankStore
	cache    *modbus.ValueCache
	log      zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	tanks   []Tank
	regmap  *modbus.RegisterMap
	subs    []func([]Tank)
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewTankProjector(store TankStore, cache *modbus.ValueCache, log zerolog.Logger, persistInterval time.Duration) *TankProjector {
	if persistInterval <= 0 {
		persistInterval = DefaultPersistInterval
	}
	return &TankProjector{store: store, cache: cache, log: log, interval: persistInterval}
}

// Reload refreshes the tank collection from the repository.
func (p *TankProjector) Reload(ctx context.Context) error {
	rows, err := p.store.ListStorageTanks(ctx)
	if err != nil {
		return err
	}
	tanks := make([]Tank, 0, len(rows))
	for _, r := range rows {
		t := Tank{
			ID:                 r.ID,
			Name:               r.Name,
			ProductName:        r.ProductName,
			OwnerName:          r.OwnerName,
			UnitName:           r.UnitName,
			TotalVolume:        r.TotalVolume,
			CurrentVolume:      r.CurrentVolume,
			CurrentMass:        r.CurrentMass,
			CurrentTemperature: r.CurrentTemperature,
		}
		if r.LastReadingAt != nil {
			t.LastReadingAt = *r.LastReadingAt
		}
		tanks = append(tanks, t)
	}
	p.mu.Lock()
	p.tanks = tanks
	p.mu.Unlock()
	p.publish()
	return nil
}

// SetRegisterMap installs the mapping directory used to resolve tank
// columns. Called whenever the map is rebuilt.
func (p *TankProjector) SetRegisterMap(rm *modbus.RegisterMap) {
	p.mu.Lock()
	p.regmap = rm
	p.mu.Unlock()
}

// OnUpdate registers a subscriber for the refreshed tank list.
func (p *TankProjector) OnUpdate(fn func([]Tank)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// HandleSnapshot applies one poll cycle's values to the tank views. A tank
// with no fresh reading this cycle is marked inactive; that is absence,
// not failure, and its last values stay visible.
func (p *TankProjector) HandleSnapshot(s modbus.Snapshot) {
	p.mu.Lock()
	rm := p.regmap
	if rm == nil {
		p.mu.Unlock()
		return
	}
	now := time.Now()
	for i := range p.tanks {
		tank := &p.tanks[i]
		fresh := false
		for _, m := range rm.ForEntity(model.KindStorageTank, tank.ID) {
			value, ok := s[modbus.Key{Slave: m.SlaveAddress, MappingID: m.MappingID}]
			if !ok {
				continue
			}
			fresh = true
			switch m.Column {
			case "CurrentVolume":
				tank.CurrentVolume = value
			case "CurrentMass":
				tank.CurrentMass = value
			case "CurrentTemperature":
				tank.CurrentTemperature = value
			}
		}
		if fresh {
			tank.LastReadingAt = now
		}
		tank.Active = fresh
	}
	p.mu.Unlock()
	p.publish()
}

// Start launches the persist timer goroutine.
func (p *TankProjector) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.running = true
	go p.persistLoop(p.stop, p.done)
}

// Stop halts the persist timer and waits for it to exit.
func (p *TankProjector) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stop, done := p.stop, p.done
	p.running = false
	p.mu.Unlock()
	close(stop)
	<-done
}

func (p *TankProjector) persistLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.PersistOnce(context.Background())
		}
	}
}

// PersistOnce drains the cache for every tank's mapped columns and issues
// repository updates, plus a historical sample where any contributing
// mapping is flagged store-historical. Persistence failures are logged;
// the cache is never rolled back since the reads themselves succeeded.
func (p *TankProjector) PersistOnce(ctx context.Context) {
	p.mu.Lock()
	rm := p.regmap
	tanks := make([]Tank, len(p.tanks))
	copy(tanks, p.tanks)
	p.mu.Unlock()
	if rm == nil {
		return
	}

	for _, tank := range tanks {
		fields := make(map[string]float64)
		historical := false
		for _, m := range rm.ForEntity(model.KindStorageTank, tank.ID) {
			entry, ok := p.cache.Get(m.SlaveAddress, m.MappingID)
			if !ok {
				continue
			}
			fields[m.Column] = entry.Value
			if m.StoreHistorical {
				historical = true
			}
		}
		if len(fields) == 0 {
			continue
		}
		if _, err := p.store.UpdateEntityFields(ctx, model.KindStorageTank, tank.ID, fields); err != nil {
			p.log.Error().Err(err).Int64("tank", tank.ID).Msg("persist tank readings")
			continue
		}
		if historical {
			reading := &model.TankReading{
				StorageTankID: tank.ID,
				Volume:        fields["CurrentVolume"],
				Mass:          fields["CurrentMass"],
				Temperature:   fields["CurrentTemperature"],
				ReadAt:        time.Now(),
			}
			if err := p.store.InsertTankReading(ctx, reading); err != nil {
				p.log.Error().Err(err).Int64("tank", tank.ID).Msg("insert tank reading")
			}
		}
	}
}

// Tanks returns a copy of the current tank views.
func (p *TankProjector) Tanks() []Tank {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Tank, len(p.tanks))
	copy(out, p.tanks)
	return out
}

func (p *TankProjector) publish() {
	p.mu.Lock()
	subs := p.subs
	tanks := make([]Tank, len(p.tanks))
	copy(tanks, p.tanks)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(tanks)
	}
}
