package state

import (
	"errors"
	"fmt"
)

// Action is an operation a customer can request from the machine.
type Action string

const (
	ActionInsertQuarter Action = "insert_quarter"
	ActionEjectQuarter  Action = "eject_quarter"
	ActionTurnCrank     Action = "turn_crank"
	ActionDispense      Action = "dispense"
)

var handlers = map[Action]func(State) (State, error){
	ActionInsertQuarter: State.InsertQuarter,
	ActionEjectQuarter:  State.EjectQuarter,
	ActionTurnCrank:     State.TurnCrank,
	ActionDispense:      State.Dispense,
}

// ErrUnknownAction is returned by ParseAction and Apply for anything outside
// the four machine operations.
var ErrUnknownAction = errors.New("unknown action")

// Actions returns every action in the order a normal purchase uses them.
func Actions() []Action {
	return []Action{ActionInsertQuarter, ActionEjectQuarter, ActionTurnCrank, ActionDispense}
}

// ParseAction converts a wire name into an Action.
func ParseAction(name string) (Action, error) {
	a := Action(name)
	if _, ok := handlers[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return a, nil
}

// Apply runs action against s. On error the returned State is s.
func Apply(s State, action Action) (State, error) {
	handle, ok := handlers[action]
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownAction, string(action))
	}
	return handle(s)
}

// InsertQuarter 投币
func (s State) InsertQuarter() (State, error) {
	switch s.id {
	case NoQuarter:
		return State{id: HasQuarter, count: s.count}, nil
	case HasQuarter:
		return s, ErrAlreadyHasQuarter
	case Sold:
		return s, ErrAlreadyTurnedCrank
	case SoldOut:
		return s, ErrOutOfGumballs
	}
	panic(invalid(s))
}

// EjectQuarter 退币
func (s State) EjectQuarter() (State, error) {
	switch s.id {
	case NoQuarter:
		return s, ErrNoQuarterInserted
	case HasQuarter:
		return State{id: NoQuarter, count: s.count}, nil
	case Sold:
		return s, ErrAlreadyTurnedCrank
	case SoldOut:
		return s, ErrOutOfGumballs
	}
	panic(invalid(s))
}

// TurnCrank 转动手柄
func (s State) TurnCrank() (State, error) {
	switch s.id {
	case NoQuarter:
		return s, ErrNoQuarterInserted
	case HasQuarter:
		return State{id: Sold, count: s.count}, nil
	case Sold:
		return s, ErrAlreadyTurnedCrank
	case SoldOut:
		return s, ErrOutOfGumballs
	}
	panic(invalid(s))
}

// Dispense releases one gumball. It is the only operation that changes the
// count, and the last gumball always leads to SoldOut.
func (s State) Dispense() (State, error) {
	switch s.id {
	case NoQuarter:
		return s, ErrNoQuarterInserted
	case HasQuarter:
		return s, ErrCrankHasNotBeenTurned
	case Sold:
		// Sold with nothing left cannot be built through New and the
		// transitions, treat it like SoldOut instead of underflowing.
		if s.count == 0 {
			return s, ErrOutOfGumballs
		}
		left := s.count - 1
		if left == 0 {
			return State{id: SoldOut}, nil
		}
		return State{id: NoQuarter, count: left}, nil
	case SoldOut:
		return s, ErrOutOfGumballs
	}
	panic(invalid(s))
}

func invalid(s State) string {
	return fmt.Sprintf("state: invalid state %s, use state.New", s)
}
