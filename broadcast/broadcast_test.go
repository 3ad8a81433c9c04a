package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/network"
	"github.com/wfunc/gumball/session"
)

// MockConnection records every frame sent to it.
type MockConnection struct {
	mu     sync.Mutex
	sent   []uint16
	broken bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	if m.broken {
		return errors.New("connection reset")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestBroadcastToMachine(t *testing.T) {
	manager := fleet.NewManager()
	unit, _ := manager.CreateUnit("m1", "", 1)
	other, _ := manager.CreateUnit("m2", "", 1)

	good := &MockConnection{}
	broken := &MockConnection{broken: true}
	elsewhere := &MockConnection{}
	unit.AddWatcher(session.NewSession("good", good))
	unit.AddWatcher(session.NewSession("broken", broken))
	other.AddWatcher(session.NewSession("elsewhere", elsewhere))

	b := NewMachineBroadcaster(manager)
	if err := b.BroadcastToMachine("m1", network.MsgTypeMachineState, []byte("{}")); err != nil {
		t.Fatalf("BroadcastToMachine returned error: %v", err)
	}

	if len(good.sent) != 1 || good.sent[0] != network.MsgTypeMachineState {
		t.Errorf("Expected one machine state frame, got %v", good.sent)
	}
	if len(elsewhere.sent) != 0 {
		t.Errorf("Watchers of other machines should not receive frames, got %v", elsewhere.sent)
	}
}

func TestBroadcastToMachine_NotFound(t *testing.T) {
	b := NewMachineBroadcaster(fleet.NewManager())
	if err := b.BroadcastToMachine("nope", network.MsgTypeMachineState, nil); !errors.Is(err, fleet.ErrUnitNotFound) {
		t.Errorf("Expected ErrUnitNotFound, got %v", err)
	}
}
