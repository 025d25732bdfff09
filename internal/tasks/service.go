// Package tasks wires the telemetry core together: repository, serial
// transport, polling loop and the three entity projectors, with an
// explicit connect/disconnect lifecycle instead of process-wide
// singletons.
package tasks

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog"

	"terminal-telemetry/internal/config"
	"terminal-telemetry/internal/db"
	"terminal-telemetry/internal/modbus"
	"terminal-telemetry/internal/projector"
	"terminal-telemetry/internal/telemetry"
)

// Service owns one bus worth of telemetry. Construct once, Connect to
// bring the database and serial channel up, Disconnect to tear both down.
type Service struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics telemetry.Collector

	store     *db.DB
	transport *modbus.Transport
	cache     *modbus.ValueCache
	events    *modbus.Events
	poller    *modbus.Poller
	tanks     *projector.TankProjector
	arms      *projector.ArmProjector
	bridges   *projector.WeighbridgeProjector
}

func NewService(cfg config.Config, log zerolog.Logger, metrics telemetry.Collector) *Service {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Service{cfg: cfg, log: log, metrics: metrics}
}

// Connect opens the repository and the serial channel, loads the poll
// plan, seeds the projectors and starts polling. A failure at any step
// unwinds the ones before it.
func (s *Service) Connect(ctx context.Context) error {
	store, err := db.Open(s.cfg.Database.Path)
	if err != nil {
		return err
	}

	transport := modbus.NewTransport()
	if err := transport.Open(modbus.SerialConfig{
		Port:     s.cfg.Serial.Port,
		Baudrate: s.cfg.Serial.BaudRate,
		DataBits: s.cfg.Serial.DataBits,
		Parity:   s.cfg.Serial.Parity,
		StopBits: s.cfg.Serial.StopBits,
		Timeout:  s.cfg.Serial.Timeout.Duration,
	}); err != nil {
		_ = store.Close()
		return err
	}

	cache := modbus.NewValueCache()
	events := modbus.NewEvents()
	poller := modbus.NewPoller(transport, cache, events, s.metrics, s.log, s.cfg.Polling.Interval.Duration)

	tanks := projector.NewTankProjector(store, cache, s.log, s.cfg.Polling.PersistInterval.Duration)
	arms := projector.NewArmProjector(store, s.log)
	bridges := projector.NewWeighbridgeProjector(store, store, s.log)

	events.OnSnapshot(tanks.HandleSnapshot)
	events.OnSnapshot(arms.HandleSnapshot)
	events.OnWeight(bridges.HandleWeight)
	events.OnDeviceStatus(func(slave int, connected bool) {
		if err := store.SetDeviceCommStatus(context.Background(), slave, connected); err != nil && !stderrors.Is(err, db.ErrNotFound) {
			s.log.Error().Err(err).Int("slave", slave).Msg("record device status")
		}
	})

	s.store = store
	s.transport = transport
	s.cache = cache
	s.events = events
	s.poller = poller
	s.tanks = tanks
	s.arms = arms
	s.bridges = bridges

	if err := s.RefreshPlan(ctx); err != nil {
		s.Disconnect()
		return err
	}
	if err := tanks.Reload(ctx); err != nil {
		s.Disconnect()
		return err
	}
	if err := arms.Reload(ctx); err != nil {
		s.Disconnect()
		return err
	}
	if err := bridges.Reload(ctx); err != nil {
		s.Disconnect()
		return err
	}

	if err := poller.Start(); err != nil {
		s.Disconnect()
		return err
	}
	tanks.Start()
	s.log.Info().Str("port", s.cfg.Serial.Port).Msg("telemetry connected")
	return nil
}

// RefreshPlan rebuilds the register map and device list from the
// repository and installs them in the poller and projectors. Call after
// any device or mapping CRUD.
func (s *Service) RefreshPlan(ctx context.Context) error {
	devices, err := s.store.ListActiveDevices(ctx)
	if err != nil {
		return err
	}
	mappings, err := s.store.ListActiveMappings(ctx)
	if err != nil {
		return err
	}
	regmap, err := modbus.NewRegisterMap(mappings)
	if err != nil {
		return err
	}
	s.poller.SetPlan(devices, regmap)
	s.tanks.SetRegisterMap(regmap)
	s.arms.SetRegisterMap(regmap)
	s.log.Info().Int("devices", len(devices)).Int("mappings", regmap.Len()).Msg("poll plan refreshed")
	return nil
}

// Disconnect stops polling and persistence, then closes the serial
// channel and the repository. Safe to call more than once.
func (s *Service) Disconnect() {
	if s.poller != nil {
		s.poller.Stop()
	}
	if s.tanks != nil {
		s.tanks.Stop()
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Error().Err(err).Msg("close transport")
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Error().Err(err).Msg("close database")
		}
		s.store = nil
	}
}

// Run connects, blocks until the context is cancelled, then disconnects.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Disconnect()
	return nil
}

// Store exposes the repository for registry CRUD while connected.
func (s *Service) Store() *db.DB { return s.store }

// Events exposes the observer registry for external subscribers.
func (s *Service) Events() *modbus.Events { return s.events }

// Cache exposes the last-known-good value cache.
func (s *Service) Cache() *modbus.ValueCache { return s.cache }

// Tanks exposes the storage-tank projector.
func (s *Service) Tanks() *projector.TankProjector { return s.tanks }

// Arms exposes the loading-arm projector.
func (s *Service) Arms() *projector.ArmProjector { return s.arms }

// Weighbridges exposes the weighbridge projector and weighing workflow.
func (s *Service) Weighbridges() *projector.WeighbridgeProjector { return s.bridges }
