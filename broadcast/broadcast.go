// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/logger"
)

// 广播接口
type Broadcaster interface {
	BroadcastToMachine(machineID string, msgID uint16, data []byte) error
}

// 基于机器订阅者的广播器
type MachineBroadcaster struct {
	fleet *fleet.Manager
}

func NewMachineBroadcaster(f *fleet.Manager) *MachineBroadcaster {
	return &MachineBroadcaster{fleet: f}
}

func (b *MachineBroadcaster) BroadcastToMachine(machineID string, msgID uint16, data []byte) error {
	unit, exists := b.fleet.GetUnit(machineID)
	if !exists {
		return fleet.ErrUnitNotFound
	}

	for _, s := range unit.GetWatchers() {
		if err := s.Send(msgID, data); err != nil {
			// a dead connection is cleaned up by its own read loop
			logger.Log.Debugf("Broadcast to session %s failed: %v", s.GetID(), err)
			continue
		}
	}

	return nil
}
