package modbus

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"terminal-telemetry/internal/model"
	"terminal-telemetry/internal/telemetry"
)

// DefaultPollInterval is the rest between two poll cycles.
const DefaultPollInterval = 100 * time.Millisecond

// pollPlan is the device list and register map one cycle works from.
// Replaced atomically under the poller mutex on refresh.
type pollPlan struct {
	devices []model.SlaveDevice
	regmap  *RegisterMap
}

// Poller continuously reads every mapped register of every known slave
// device over the shared transport and fans results out through the cache
// and the event registry.
//
// Within one cycle, devices are visited in ascending bus-address order and
// each device's mappings in ascending register-address order, so two
// consecutive snapshots are comparable field by field. A failed read is
// logged, counted and skipped; it never aborts the device's remaining
// registers or the other devices.
type Poller struct {
	channel  Channel
	reader   *Reader
	cache    *ValueCache
	events   *Events
	metrics  telemetry.Collector
	log      zerolog.Logger
	interval time.Duration

	mu         sync.Mutex
	plan       pollPlan
	running    bool
	stop       chan struct{}
	done       chan struct{}
	slaveAlive map[int]bool
}

func NewPoller(channel Channel, cache *ValueCache, events *Events, metrics telemetry.Collector, log zerolog.Logger, interval time.Duration) *Poller {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		channel:    channel,
		reader:     NewReader(channel),
		cache:      cache,
		events:     events,
		metrics:    metrics,
		log:        log,
		interval:   interval,
		slaveAlive: make(map[int]bool),
	}
}

// SetPlan installs the device list and register map used from the next
// cycle on. Called at connect time and after any device or mapping CRUD.
func (p *Poller) SetPlan(devices []model.SlaveDevice, regmap *RegisterMap) {
	sorted := make([]model.SlaveDevice, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	p.mu.Lock()
	p.plan = pollPlan{devices: sorted, regmap: regmap}
	p.mu.Unlock()
}

// Start spawns the polling goroutine. Valid only while the transport is
// open and the loop is stopped.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	if !p.channel.Connected() {
		return ErrNotConnected
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.running = true
	go p.run(p.stop, p.done)
	return nil
}

// Stop signals the loop to exit at the next cycle boundary and blocks
// until it has exited. No read is in flight once Stop returns. Safe to
// call on a stopped poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Running reports whether the polling goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		started := time.Now()
		p.cycle()
		p.metrics.IncPollCycle()
		p.metrics.ObserveCycleDuration(time.Since(started))

		select {
		case <-stop:
			return
		case <-time.After(p.interval):
		}
	}
}

// cycle reads every mapped register of every device once and publishes the
// consolidated snapshot.
func (p *Poller) cycle() {
	p.mu.Lock()
	plan := p.plan
	p.mu.Unlock()
	if plan.regmap == nil {
		return
	}

	snapshot := make(Snapshot)
	for _, dev := range plan.devices {
		mappings := plan.regmap.ForSlave(dev.Address)
		if len(mappings) == 0 {
			continue
		}
		ok := 0
		for _, m := range mappings {
			res, err := p.reader.Read(dev.Address, m)
			if err != nil {
				p.metrics.IncReadError(dev.Address)
				p.log.Warn().Err(err).
					Int("slave", dev.Address).
					Int64("mapping", m.MappingID).
					Uint16("register", m.RegisterAddress).
					Msg("register read failed")
				p.events.PublishError(err.Error())
				continue
			}
			ok++
			p.metrics.IncRegisterRead(dev.Address)
			p.cache.Put(res)
			snapshot[Key{Slave: res.Slave, MappingID: res.MappingID}] = res.Value
			if m.EntityKind == model.KindWeighbridge && m.Column == "CurrentWeight" {
				p.events.PublishWeight(m.EntityID, res.Value)
			}
		}
		p.trackDevice(dev.Address, ok > 0)
	}
	p.events.PublishSnapshot(snapshot)
}

// trackDevice publishes reachability transitions so the registry can
// record communication status without a write per cycle.
func (p *Poller) trackDevice(address int, alive bool) {
	p.mu.Lock()
	prev, seen := p.slaveAlive[address]
	p.slaveAlive[address] = alive
	p.mu.Unlock()
	if !seen || prev != alive {
		p.events.PublishDeviceStatus(address, alive)
	}
}
