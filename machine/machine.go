// Package machine holds a single gumball machine and forwards each customer
// operation to its current state.
//
// A Machine is not safe for concurrent use. Callers that share one must
// serialize access themselves, see fleet.Unit.
package machine

import "github.com/wfunc/gumball/state"

// Machine 糖果机
type Machine struct {
	current state.State
}

// New creates a machine loaded with count gumballs. An empty machine starts
// sold out.
func New(count uint) *Machine {
	return &Machine{current: state.New(count)}
}

func (m *Machine) InsertQuarter() error {
	return m.apply(state.State.InsertQuarter)
}

func (m *Machine) EjectQuarter() error {
	return m.apply(state.State.EjectQuarter)
}

func (m *Machine) TurnCrank() error {
	return m.apply(state.State.TurnCrank)
}

func (m *Machine) Dispense() error {
	return m.apply(state.State.Dispense)
}

// Do runs the named action, for callers that receive actions as data.
func (m *Machine) Do(action state.Action) error {
	return m.apply(func(s state.State) (state.State, error) {
		return state.Apply(s, action)
	})
}

// apply installs the successor only when the handler accepts the operation.
func (m *Machine) apply(handle func(state.State) (state.State, error)) error {
	next, err := handle(m.current)
	if err != nil {
		return err
	}
	m.current = next
	return nil
}

// StateID 返回当前状态
func (m *Machine) StateID() state.ID {
	return m.current.ID()
}

// Count 返回剩余糖果数量
func (m *Machine) Count() uint {
	return m.current.Count()
}

// State returns a copy of the current state.
func (m *Machine) State() state.State {
	return m.current
}
