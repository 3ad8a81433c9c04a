package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wfunc/gumball/broadcast"
	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/logger"
	"github.com/wfunc/gumball/models"
	"github.com/wfunc/gumball/monitor"
	"github.com/wfunc/gumball/network"
	"github.com/wfunc/gumball/state"
)

// MachineService runs customer and operator requests against the fleet.
type MachineService struct {
	fleet       *fleet.Manager
	monitor     *monitor.Monitor
	broadcaster broadcast.Broadcaster
}

func NewMachineService(f *fleet.Manager, m *monitor.Monitor, b broadcast.Broadcaster) *MachineService {
	return &MachineService{fleet: f, monitor: m, broadcaster: b}
}

// Register 注册机器并更新指标
func (s *MachineService) Register(id, location string, count uint) (models.MachineStatus, error) {
	unit, err := s.fleet.CreateUnit(id, location, count)
	if err != nil {
		return models.MachineStatus{}, fmt.Errorf("machine %s: %w", id, err)
	}
	snapshot := unit.Snapshot()
	s.monitor.SetMachines(s.fleet.Count())
	s.monitor.SetUnitsRemaining(id, snapshot.Count())
	logger.Log.Infof("Machine %s registered at %q with %d gumballs", id, location, count)
	return models.NewMachineStatus(unit, snapshot), nil
}

// Operate applies action to the machine and, when it is accepted, pushes the
// new status to everyone watching that machine. The push happens under the
// unit lock so watchers receive statuses in the order they were applied.
func (s *MachineService) Operate(machineID string, action state.Action) (models.MachineStatus, error) {
	unit, err := s.unit(machineID)
	if err != nil {
		return models.MachineStatus{}, err
	}

	start := time.Now()
	tr, err := unit.DoThen(action, func(tr fleet.Transition) {
		logger.Log.Infof("Machine %s: %s %s -> %s", machineID, action, tr.From, tr.To)
		if tr.Dispensed() {
			s.monitor.IncDispensed()
			s.monitor.SetUnitsRemaining(machineID, tr.To.Count())
		}
		s.publish(models.NewMachineStatus(unit, tr.To))
	})
	s.monitor.ObserveOperation(string(action), models.ErrorCode(err), time.Since(start))

	status := models.NewMachineStatus(unit, tr.To)
	if err != nil {
		logger.Log.Debugf("Machine %s rejected %s in %s: %v", machineID, action, tr.From, err)
		return status, fmt.Errorf("machine %s: %w", machineID, err)
	}
	return status, nil
}

func (s *MachineService) Status(machineID string) (models.MachineStatus, error) {
	unit, err := s.unit(machineID)
	if err != nil {
		return models.MachineStatus{}, err
	}
	return models.NewMachineStatus(unit, unit.Snapshot()), nil
}

// List 返回所有机器状态, 按 ID 排序
func (s *MachineService) List() []models.MachineStatus {
	units := s.fleet.List()
	result := make([]models.MachineStatus, 0, len(units))
	for _, u := range units {
		result = append(result, models.NewMachineStatus(u, u.Snapshot()))
	}
	return result
}

// Restock reloads a sold out machine with count gumballs.
func (s *MachineService) Restock(machineID string, count uint) (models.MachineStatus, error) {
	unit, err := s.unit(machineID)
	if err != nil {
		return models.MachineStatus{}, err
	}

	snapshot, err := unit.RestockThen(count, func(st state.State) {
		logger.Log.Infof("Machine %s restocked with %d gumballs", machineID, count)
		s.monitor.SetUnitsRemaining(machineID, st.Count())
		s.publish(models.NewMachineStatus(unit, st))
	})
	if err != nil {
		return models.MachineStatus{}, fmt.Errorf("machine %s: %w", machineID, err)
	}
	return models.NewMachineStatus(unit, snapshot), nil
}

// Remove takes a machine out of service. Its watchers are detached and its
// metrics series dropped. The returned status is the machine's last state.
func (s *MachineService) Remove(machineID string) (models.MachineStatus, error) {
	unit, err := s.unit(machineID)
	if err != nil {
		return models.MachineStatus{}, err
	}
	status := models.NewMachineStatus(unit, unit.Snapshot())

	s.fleet.RemoveUnit(machineID)
	s.monitor.DeleteMachine(machineID)
	s.monitor.SetMachines(s.fleet.Count())
	logger.Log.Infof("Machine %s removed", machineID)
	return status, nil
}

func (s *MachineService) unit(machineID string) (*fleet.Unit, error) {
	unit, exists := s.fleet.GetUnit(machineID)
	if !exists {
		return nil, fmt.Errorf("machine %s: %w", machineID, fleet.ErrUnitNotFound)
	}
	return unit, nil
}

func (s *MachineService) publish(status models.MachineStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		logger.Log.Errorf("Error marshalling machine status: %v", err)
		return
	}
	if err := s.broadcaster.BroadcastToMachine(status.MachineID, network.MsgTypeMachineState, data); err != nil {
		logger.Log.Warnf("Broadcast for machine %s failed: %v", status.MachineID, err)
	}
}
