package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/state"
)

// Registry error codes.
var (
	ErrDuplicateSession = errors.New("DUPLICATE_SESSION")
	ErrNotFound         = errors.New("NOT_FOUND")
)

// EvictionHandler receives liveness-timeout evictions before the
// session is destroyed. The gateway uses it to force the Fault
// transition, drop pending commands, and notify subscribers.
type EvictionHandler interface {
	DroneEvicted(droneID string)
	OperatorEvicted(operatorID string)
}

// Registry tracks every connected drone and operator and their
// liveness. At most one active session exists per drone identifier.
type Registry struct {
	mu        sync.RWMutex
	drones    map[string]*DroneSession
	operators map[string]*OperatorSession

	livenessTimeout time.Duration
	sweepInterval   time.Duration
	evictions       EvictionHandler

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewRegistry creates a registry. Start must be called to run the
// liveness sweep.
func NewRegistry(livenessTimeout, sweepInterval time.Duration) *Registry {
	return &Registry{
		drones:          make(map[string]*DroneSession),
		operators:       make(map[string]*OperatorSession),
		livenessTimeout: livenessTimeout,
		sweepInterval:   sweepInterval,
		stop:            make(chan struct{}),
	}
}

// SetEvictionHandler installs the eviction callback. Must be called
// before Start.
func (r *Registry) SetEvictionHandler(h EvictionHandler) {
	r.evictions = h
}

// RegisterDrone creates a drone session. Fails with ErrDuplicateSession
// if the identifier already has an active session.
func (r *Registry) RegisterDrone(id string, conn DroneConn) (*DroneSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drones[id]; exists {
		return nil, ErrDuplicateSession
	}

	sess := &DroneSession{
		ID:       id,
		conn:     conn,
		machine:  state.NewMachine(),
		lastSeen: time.Now(),
	}
	r.drones[id] = sess
	nuts.L.Infof("[Registry] Drone %s connected", id)
	return sess, nil
}

// RegisterOperator creates an operator session.
func (r *Registry) RegisterOperator(id string, conn OperatorConn) (*OperatorSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operators[id]; exists {
		return nil, ErrDuplicateSession
	}

	sess := &OperatorSession{
		ID:        id,
		SessionID: uuid.NewString(),
		conn:      conn,
		lastSeen:  time.Now(),
	}
	r.operators[id] = sess
	nuts.L.Infof("[Registry] Operator %s connected (session %s)", id, sess.SessionID)
	return sess, nil
}

// Unregister destroys the session for an identifier, drone or operator,
// and closes its connection handle. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	drone := r.drones[id]
	operator := r.operators[id]
	delete(r.drones, id)
	delete(r.operators, id)
	r.mu.Unlock()

	if drone != nil {
		if drone.conn != nil {
			_ = drone.conn.Close()
		}
		nuts.L.Infof("[Registry] Drone %s unregistered", id)
	}
	if operator != nil {
		if operator.conn != nil {
			_ = operator.conn.Close()
		}
		nuts.L.Infof("[Registry] Operator %s unregistered", id)
	}
}

// Drone resolves a drone session by identifier.
func (r *Registry) Drone(id string) (*DroneSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.drones[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Operator resolves an operator session by identifier.
func (r *Registry) Operator(id string) (*OperatorSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// DroneIDs returns the identifiers of all active drone sessions.
func (r *Registry) DroneIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.drones))
	for id := range r.drones {
		ids = append(ids, id)
	}
	return ids
}

// Heartbeat refreshes the liveness timestamp of a session.
func (r *Registry) Heartbeat(id string, now time.Time) error {
	r.mu.RLock()
	drone := r.drones[id]
	operator := r.operators[id]
	r.mu.RUnlock()

	if drone != nil {
		drone.Touch(now)
		return nil
	}
	if operator != nil {
		operator.Touch(now)
		return nil
	}
	return ErrNotFound
}

// Start launches the background liveness sweep.
func (r *Registry) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep(time.Now())
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep. Sessions stay registered.
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// sweep evicts sessions whose silence exceeds the liveness timeout. The
// eviction handler runs before the session is destroyed so it can still
// resolve the session.
func (r *Registry) sweep(now time.Time) {
	cutoff := now.Add(-r.livenessTimeout)

	// Snapshot the maps first; LastSeen takes each session's own lock
	// and must never be called while registry locks are held.
	r.mu.RLock()
	drones := make(map[string]*DroneSession, len(r.drones))
	for id, sess := range r.drones {
		drones[id] = sess
	}
	operators := make(map[string]*OperatorSession, len(r.operators))
	for id, sess := range r.operators {
		operators[id] = sess
	}
	r.mu.RUnlock()

	var expiredDrones, expiredOperators []string
	for id, sess := range drones {
		if sess.LastSeen().Before(cutoff) {
			expiredDrones = append(expiredDrones, id)
		}
	}
	for id, sess := range operators {
		if sess.LastSeen().Before(cutoff) {
			expiredOperators = append(expiredOperators, id)
		}
	}

	for _, id := range expiredDrones {
		nuts.L.Warnf("[Registry] Drone %s missed liveness timeout, evicting", id)
		if r.evictions != nil {
			r.evictions.DroneEvicted(id)
		}
		r.Unregister(id)
	}
	for _, id := range expiredOperators {
		nuts.L.Warnf("[Registry] Operator %s missed liveness timeout, evicting", id)
		if r.evictions != nil {
			r.evictions.OperatorEvicted(id)
		}
		r.Unregister(id)
	}
}
