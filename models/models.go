// models/models.go
package models

import (
	"errors"

	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/state"
)

// WatchRequest 订阅某台机器
type WatchRequest struct {
	MachineID string `json:"machine_id"`
}

// OperateRequest 对当前订阅的机器执行操作
type OperateRequest struct {
	Action string `json:"action"`
}

// MachineStatus 机器状态
type MachineStatus struct {
	MachineID string `json:"machine_id"`
	Location  string `json:"location,omitempty"`
	State     string `json:"state"`
	Count     uint   `json:"count"`
}

// ErrorReply is sent to a client whose request was rejected.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrNotWatching is returned for operations from a session without a machine.
var ErrNotWatching = errors.New("session is not watching a machine")

// NewMachineStatus builds the wire view of a unit in state s.
func NewMachineStatus(u *fleet.Unit, s state.State) MachineStatus {
	return MachineStatus{
		MachineID: u.ID,
		Location:  u.Location,
		State:     s.ID().String(),
		Count:     s.Count(),
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{state.ErrNoQuarterInserted, "no_quarter_inserted"},
	{state.ErrAlreadyHasQuarter, "already_has_quarter"},
	{state.ErrCrankHasNotBeenTurned, "crank_has_not_been_turned"},
	{state.ErrAlreadyTurnedCrank, "already_turned_crank"},
	{state.ErrOutOfGumballs, "out_of_gumballs"},
	{state.ErrUnknownAction, "unknown_action"},
	{fleet.ErrUnitNotFound, "machine_not_found"},
	{fleet.ErrUnitExists, "machine_exists"},
	{fleet.ErrNotSoldOut, "not_sold_out"},
	{fleet.ErrEmptyRestock, "empty_restock"},
	{ErrNotWatching, "not_watching"},
}

// ErrorCode maps err to a stable code for clients and metric labels.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// NewErrorReply 构造错误回复
func NewErrorReply(err error) ErrorReply {
	return ErrorReply{Code: ErrorCode(err), Message: err.Error()}
}
