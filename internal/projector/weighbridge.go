package projector

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"terminal-telemetry/internal/db"
)

// Weighing workflow failures, surfaced synchronously to the caller. The
// session never ends up half-transitioned: it either moves fully or the
// call fails and leaves it untouched.
var (
	ErrOrderNotAvailable = stderrors.New("order not available for weighing")
	ErrNoActiveSession   = stderrors.New("no active weighing session")
	ErrNoCurrentReading  = stderrors.New("no current weight reading")
	ErrWeighingActive    = stderrors.New("a weighing session is already active")
	ErrTareNotSet        = stderrors.New("tare weight not set")
)

// Session states.
const (
	SessionInProgress = "InProgress"
	SessionCompleted  = "Completed"
)

// Session is one active weighing on a weighbridge.
type Session struct {
	WeighbridgeID   int64
	OrderID         int64
	DriverID        int64
	VehicleLicense  string
	ProductName     string
	PlannedQuantity float64
	CurrentWeight   float64
	TareWeight      *float64
	GrossWeight     *float64
	NetWeight       *float64
	Status          string
}

// Bridge is the live view of one weighbridge.
type Bridge struct {
	ID            int64
	Code          string
	Name          string
	Active        bool
	CurrentWeight float64
	TareWeight    *float64
	GrossWeight   *float64
}

// WeighbridgeProjector consumes dedicated current-weight events (not the
// generic snapshot path — weight readings feed tare/gross capture
// synchronously) and hosts the weighing session state machine. At most one
// session may be active per weighbridge.
type WeighbridgeProjector struct {
	bridgeStore WeighbridgeStore
	orders      OrderStore
	log         zerolog.Logger

	mu             sync.Mutex
	bridges        []Bridge
	currentWeights map[int64]float64
	sessions       map[int64]*Session
	listSubs       []func([]Bridge)
	weightSubs     []func(weighbridgeID int64, weight float64)
	weighingSubs   []func(Session)
}

func NewWeighbridgeProjector(bridges WeighbridgeStore, orders OrderStore, log zerolog.Logger) *WeighbridgeProjector {
	return &WeighbridgeProjector{
		bridgeStore:    bridges,
		orders:         orders,
		log:            log,
		currentWeights: make(map[int64]float64),
		sessions:       make(map[int64]*Session),
	}
}

// Reload refreshes the weighbridge collection from the repository.
func (p *WeighbridgeProjector) Reload(ctx context.Context) error {
	rows, err := p.bridgeStore.ListWeighbridges(ctx)
	if err != nil {
		return err
	}
	bridges := make([]Bridge, 0, len(rows))
	for _, r := range rows {
		bridges = append(bridges, Bridge{ID: r.ID, Code: r.Code, Name: r.Name, Active: r.Active})
	}
	p.mu.Lock()
	p.bridges = bridges
	p.mu.Unlock()
	p.publishList()
	return nil
}

// OnRealtime registers a subscriber for the refreshed weighbridge list.
func (p *WeighbridgeProjector) OnRealtime(fn func([]Bridge)) {
	p.mu.Lock()
	p.listSubs = append(p.listSubs, fn)
	p.mu.Unlock()
}

// OnWeight registers a subscriber for (weighbridgeId, weight) updates.
func (p *WeighbridgeProjector) OnWeight(fn func(weighbridgeID int64, weight float64)) {
	p.mu.Lock()
	p.weightSubs = append(p.weightSubs, fn)
	p.mu.Unlock()
}

// OnWeighing registers a subscriber for weighing session transitions.
func (p *WeighbridgeProjector) OnWeighing(fn func(Session)) {
	p.mu.Lock()
	p.weighingSubs = append(p.weighingSubs, fn)
	p.mu.Unlock()
}

// HandleWeight records a fresh current-weight reading for a weighbridge
// and forwards it into any active session on that bridge.
func (p *WeighbridgeProjector) HandleWeight(weighbridgeID int64, weight float64) {
	p.mu.Lock()
	p.currentWeights[weighbridgeID] = weight
	for i := range p.bridges {
		if p.bridges[i].ID == weighbridgeID {
			p.bridges[i].CurrentWeight = weight
			break
		}
	}
	var updated *Session
	if s, ok := p.sessions[weighbridgeID]; ok {
		s.CurrentWeight = weight
		copied := *s
		updated = &copied
	}
	p.mu.Unlock()

	p.publishWeight(weighbridgeID, weight)
	if updated != nil {
		p.publishWeighing(*updated)
	}
	p.publishList()
}

// StartWeighing claims the order for this weighbridge and opens a session.
// The order must be Pending, Ready or InProgress; a weighbridge with a
// session already open rejects the call.
func (p *WeighbridgeProjector) StartWeighing(ctx context.Context, weighbridgeID, orderID, driverID int64, vehicleLicense string) (Session, error) {
	p.mu.Lock()
	if _, busy := p.sessions[weighbridgeID]; busy {
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrWeighingActive, "weighbridge %d", weighbridgeID)
	}
	// Reserve the bridge before touching the order store: a losing
	// concurrent start must fail here, not after claiming an order it
	// has no session for.
	session := &Session{
		WeighbridgeID:  weighbridgeID,
		OrderID:        orderID,
		DriverID:       driverID,
		VehicleLicense: vehicleLicense,
		CurrentWeight:  p.currentWeights[weighbridgeID],
		Status:         SessionInProgress,
	}
	p.sessions[weighbridgeID] = session
	p.mu.Unlock()

	order, err := p.orders.ClaimOrder(ctx, orderID, weighbridgeID, driverID, vehicleLicense)
	if err != nil {
		p.mu.Lock()
		if p.sessions[weighbridgeID] == session {
			delete(p.sessions, weighbridgeID)
		}
		p.mu.Unlock()
		if stderrors.Is(err, db.ErrNotFound) {
			return Session{}, errors.Wrapf(ErrOrderNotAvailable, "order %d", orderID)
		}
		return Session{}, err
	}

	p.mu.Lock()
	if p.sessions[weighbridgeID] != session {
		// Cancelled while the order claim was in flight.
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrNoActiveSession, "weighbridge %d", weighbridgeID)
	}
	session.ProductName = order.ProductName
	session.PlannedQuantity = order.PlannedQuantity
	copied := *session
	p.mu.Unlock()

	p.log.Info().Int64("weighbridge", weighbridgeID).Int64("order", orderID).Msg("weighing started")
	p.publishWeighing(copied)
	return copied, nil
}

// SetTare captures the bridge's current weight as the empty-vehicle
// weight.
func (p *WeighbridgeProjector) SetTare(weighbridgeID int64) (Session, error) {
	p.mu.Lock()
	session, ok := p.sessions[weighbridgeID]
	if !ok {
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrNoActiveSession, "weighbridge %d", weighbridgeID)
	}
	weight, ok := p.currentWeights[weighbridgeID]
	if !ok {
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrNoCurrentReading, "weighbridge %d", weighbridgeID)
	}
	session.TareWeight = &weight
	for i := range p.bridges {
		if p.bridges[i].ID == weighbridgeID {
			p.bridges[i].TareWeight = &weight
			break
		}
	}
	copied := *session
	p.mu.Unlock()

	p.log.Info().Int64("weighbridge", weighbridgeID).Float64("tare", weight).Msg("tare weight set")
	p.publishWeighing(copied)
	p.publishList()
	return copied, nil
}

// SetGross captures the loaded-vehicle weight, computes the net weight and
// completes the order. The session is removed only after the repository
// write succeeds; on failure it stays in progress with its tare intact.
func (p *WeighbridgeProjector) SetGross(ctx context.Context, weighbridgeID int64) (Session, error) {
	p.mu.Lock()
	session, ok := p.sessions[weighbridgeID]
	if !ok {
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrNoActiveSession, "weighbridge %d", weighbridgeID)
	}
	if session.TareWeight == nil {
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrTareNotSet, "weighbridge %d", weighbridgeID)
	}
	gross, ok := p.currentWeights[weighbridgeID]
	if !ok {
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrNoCurrentReading, "weighbridge %d", weighbridgeID)
	}
	tare := *session.TareWeight
	net := gross - tare
	orderID := session.OrderID
	p.mu.Unlock()

	if err := p.orders.CompleteOrder(ctx, orderID, tare, gross, net); err != nil {
		p.log.Error().Err(err).Int64("weighbridge", weighbridgeID).Int64("order", orderID).
			Msg("store completed weighing")
		return Session{}, err
	}

	p.mu.Lock()
	session, ok = p.sessions[weighbridgeID]
	if !ok {
		// Cancelled while the order write was in flight; the order is
		// completed, nothing left to publish for the session.
		p.mu.Unlock()
		return Session{}, errors.Wrapf(ErrNoActiveSession, "weighbridge %d", weighbridgeID)
	}
	session.GrossWeight = &gross
	session.NetWeight = &net
	session.Status = SessionCompleted
	copied := *session
	delete(p.sessions, weighbridgeID)
	for i := range p.bridges {
		if p.bridges[i].ID == weighbridgeID {
			p.bridges[i].GrossWeight = &gross
			break
		}
	}
	p.mu.Unlock()

	p.log.Info().Int64("weighbridge", weighbridgeID).Float64("gross", gross).Float64("net", net).
		Msg("weighing completed")
	p.publishWeighing(copied)
	p.publishList()
	return copied, nil
}

// CancelWeighing drops the active session and clears captured weights
// from the bridge view.
func (p *WeighbridgeProjector) CancelWeighing(weighbridgeID int64) error {
	p.mu.Lock()
	if _, ok := p.sessions[weighbridgeID]; !ok {
		p.mu.Unlock()
		return errors.Wrapf(ErrNoActiveSession, "weighbridge %d", weighbridgeID)
	}
	delete(p.sessions, weighbridgeID)
	for i := range p.bridges {
		if p.bridges[i].ID == weighbridgeID {
			p.bridges[i].TareWeight = nil
			p.bridges[i].GrossWeight = nil
			break
		}
	}
	p.mu.Unlock()

	p.log.Info().Int64("weighbridge", weighbridgeID).Msg("weighing cancelled")
	p.publishList()
	return nil
}

// ActiveSession returns a copy of the session on a weighbridge, if any.
func (p *WeighbridgeProjector) ActiveSession(weighbridgeID int64) (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[weighbridgeID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Bridges returns a copy of the current weighbridge views.
func (p *WeighbridgeProjector) Bridges() []Bridge {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Bridge, len(p.bridges))
	copy(out, p.bridges)
	return out
}

func (p *WeighbridgeProjector) publishList() {
	p.mu.Lock()
	subs := p.listSubs
	bridges := make([]Bridge, len(p.bridges))
	copy(bridges, p.bridges)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(bridges)
	}
}

func (p *WeighbridgeProjector) publishWeight(id int64, weight float64) {
	p.mu.Lock()
	subs := p.weightSubs
	p.mu.Unlock()
	for _, fn := range subs {
		fn(id, weight)
	}
}

func (p *WeighbridgeProjector) publishWeighing(s Session) {
	p.mu.Lock()
	subs := p.weighingSubs
	p.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}
