package state

import "fmt"

// ID 标识机器当前所处的状态
type ID int

const (
	NoQuarter ID = iota + 1
	HasQuarter
	Sold
	SoldOut
)

func (id ID) String() string {
	switch id {
	case NoQuarter:
		return "no_quarter"
	case HasQuarter:
		return "has_quarter"
	case Sold:
		return "sold"
	case SoldOut:
		return "sold_out"
	default:
		return fmt.Sprintf("state(%d)", int(id))
	}
}

// State is one state of the gumball machine together with the number of
// gumballs left. It is a plain value: every transition returns a new State
// and the old one is simply dropped by the caller.
//
// The zero State is not valid. Use New.
type State struct {
	id    ID
	count uint
}

// New returns the initial state for a machine loaded with count gumballs.
func New(count uint) State {
	if count == 0 {
		return State{id: SoldOut}
	}
	return State{id: NoQuarter, count: count}
}

// ID 返回状态标识
func (s State) ID() ID {
	return s.id
}

// Count 返回剩余数量
func (s State) Count() uint {
	return s.count
}

func (s State) String() string {
	return fmt.Sprintf("%s(%d)", s.id, s.count)
}
