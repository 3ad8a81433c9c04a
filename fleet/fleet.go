// fleet/fleet.go
package fleet

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/gumball/machine"
	"github.com/wfunc/gumball/session"
	"github.com/wfunc/gumball/state"
)

var (
	ErrUnitNotFound = errors.New("machine not found")
	ErrUnitExists   = errors.New("machine already exists")
	ErrNotSoldOut   = errors.New("machine is not sold out")
	ErrEmptyRestock = errors.New("restock count must be positive")
)

// Transition records one accepted operation.
type Transition struct {
	Action state.Action
	From   state.State
	To     state.State
}

// Dispensed reports whether the transition released a gumball.
func (t Transition) Dispensed() bool {
	return t.To.Count() < t.From.Count()
}

// Unit 一台部署在某处的糖果机
//
// The machine itself assumes a single caller, so every operation on it goes
// through opMutex.
type Unit struct {
	ID        string
	Location  string
	CreatedAt time.Time

	machine      *machine.Machine
	opMutex      sync.Mutex
	watchers     map[string]*session.Session // sessionID -> session
	watcherMutex sync.RWMutex
}

// NewUnit 创建一台新机器
func NewUnit(id, location string, count uint) *Unit {
	return &Unit{
		ID:        id,
		Location:  location,
		CreatedAt: time.Now(),
		machine:   machine.New(count),
		watchers:  make(map[string]*session.Session),
	}
}

// Do runs action on the machine. A rejected action leaves the machine as it was.
func (u *Unit) Do(action state.Action) (Transition, error) {
	return u.DoThen(action, nil)
}

// DoThen is Do with a commit hook. commit runs only for an accepted action
// and before the unit lock is released, so hooks observe transitions in the
// order they were applied.
func (u *Unit) DoThen(action state.Action, commit func(Transition)) (Transition, error) {
	u.opMutex.Lock()
	defer u.opMutex.Unlock()

	t := Transition{Action: action, From: u.machine.State()}
	if err := u.machine.Do(action); err != nil {
		t.To = t.From
		return t, err
	}
	t.To = u.machine.State()
	if commit != nil {
		commit(t)
	}
	return t, nil
}

// Snapshot 返回当前状态
func (u *Unit) Snapshot() state.State {
	u.opMutex.Lock()
	defer u.opMutex.Unlock()
	return u.machine.State()
}

// Restock swaps in a freshly loaded machine. Only an empty machine can be
// restocked, so no customer loses a quarter in the middle of a sale. On error
// the current state is returned.
func (u *Unit) Restock(count uint) (state.State, error) {
	return u.RestockThen(count, nil)
}

// RestockThen is Restock with a commit hook run under the unit lock.
func (u *Unit) RestockThen(count uint, commit func(state.State)) (state.State, error) {
	u.opMutex.Lock()
	defer u.opMutex.Unlock()

	if count == 0 {
		return u.machine.State(), ErrEmptyRestock
	}
	if u.machine.StateID() != state.SoldOut {
		return u.machine.State(), ErrNotSoldOut
	}
	u.machine = machine.New(count)
	if commit != nil {
		commit(u.machine.State())
	}
	return u.machine.State(), nil
}

// AddWatcher subscribes a session to this unit's state changes.
func (u *Unit) AddWatcher(s *session.Session) {
	u.watcherMutex.Lock()
	defer u.watcherMutex.Unlock()

	u.watchers[s.ID] = s
	s.SetMachineID(u.ID)
}

func (u *Unit) RemoveWatcher(sessionID string) {
	u.watcherMutex.Lock()
	defer u.watcherMutex.Unlock()

	if watcher, exists := u.watchers[sessionID]; exists {
		watcher.SetMachineID("")
		delete(u.watchers, sessionID)
	}
}

// GetWatchers returns a copy of the watching sessions.
func (u *Unit) GetWatchers() []*session.Session {
	u.watcherMutex.RLock()
	defer u.watcherMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(u.watchers))
	for _, s := range u.watchers {
		sessions = append(sessions, s)
	}
	return sessions
}

// --- 机器管理器 ---

// Manager 管理所有机器
type Manager struct {
	units map[string]*Unit
	mutex sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		units: make(map[string]*Unit),
	}
}

// CreateUnit 创建一台机器并加入管理器
func (m *Manager) CreateUnit(id, location string, count uint) (*Unit, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.units[id]; exists {
		return nil, ErrUnitExists
	}
	unit := NewUnit(id, location, count)
	m.units[id] = unit
	return unit, nil
}

// RemoveUnit detaches every watcher and drops the unit.
func (m *Manager) RemoveUnit(id string) {
	m.mutex.Lock()
	unit, exists := m.units[id]
	delete(m.units, id)
	m.mutex.Unlock()

	if !exists {
		return
	}
	for _, s := range unit.GetWatchers() {
		unit.RemoveWatcher(s.ID)
	}
}

func (m *Manager) GetUnit(id string) (*Unit, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	unit, exists := m.units[id]
	return unit, exists
}

// List returns all units ordered by id.
func (m *Manager) List() []*Unit {
	m.mutex.RLock()
	units := make([]*Unit, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	m.mutex.RUnlock()

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.units)
}
