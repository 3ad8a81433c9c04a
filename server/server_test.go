package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/gumball/broadcast"
	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/models"
	"github.com/wfunc/gumball/monitor"
	"github.com/wfunc/gumball/network"
	"github.com/wfunc/gumball/services"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	f := fleet.NewManager()
	mon := monitor.NewMonitor("gumball_test")
	svc := services.NewMachineService(f, mon, broadcast.NewMachineBroadcaster(f))
	if _, err := svc.Register("m1", "lobby", 1); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	s := NewServer(opts, f, svc, mon)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown(context.Background())
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msgID uint16, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	if err := c.WriteMessage(websocket.BinaryMessage, packet); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func recv(t *testing.T, c *websocket.Conn) *network.Packet {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	packet, err := network.DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	return packet
}

func recvStatus(t *testing.T, c *websocket.Conn) models.MachineStatus {
	t.Helper()
	packet := recv(t, c)
	if packet.MsgID != network.MsgTypeMachineState {
		t.Fatalf("Expected machine state frame, got %d: %s", packet.MsgID, packet.Data)
	}
	var status models.MachineStatus
	if err := json.Unmarshal(packet.Data, &status); err != nil {
		t.Fatalf("unmarshal status failed: %v", err)
	}
	return status
}

func recvError(t *testing.T, c *websocket.Conn) models.ErrorReply {
	t.Helper()
	packet := recv(t, c)
	if packet.MsgID != network.MsgTypeError {
		t.Fatalf("Expected error frame, got %d: %s", packet.MsgID, packet.Data)
	}
	var reply models.ErrorReply
	if err := json.Unmarshal(packet.Data, &reply); err != nil {
		t.Fatalf("unmarshal error failed: %v", err)
	}
	return reply
}

func TestServer_Purchase(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := dial(t, ts)

	send(t, c, network.MsgTypeWatch, models.WatchRequest{MachineID: "m1"})
	if status := recvStatus(t, c); status.State != "no_quarter" || status.Count != 1 {
		t.Fatalf("Unexpected initial status %+v", status)
	}

	send(t, c, network.MsgTypeOperate, models.OperateRequest{Action: "eject_quarter"})
	if reply := recvError(t, c); reply.Code != "no_quarter_inserted" {
		t.Errorf("Expected no_quarter_inserted, got %+v", reply)
	}

	steps := []struct {
		action string
		state  string
		count  uint
	}{
		{"insert_quarter", "has_quarter", 1},
		{"turn_crank", "sold", 1},
		{"dispense", "sold_out", 0},
	}
	for _, step := range steps {
		send(t, c, network.MsgTypeOperate, models.OperateRequest{Action: step.action})
		status := recvStatus(t, c)
		if status.State != step.state || status.Count != step.count {
			t.Errorf("%s: got %+v, want %s(%d)", step.action, status, step.state, step.count)
		}
	}

	send(t, c, network.MsgTypeOperate, models.OperateRequest{Action: "insert_quarter"})
	if reply := recvError(t, c); reply.Code != "out_of_gumballs" {
		t.Errorf("Expected out_of_gumballs, got %+v", reply)
	}
}

func TestServer_Errors(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := dial(t, ts)

	send(t, c, network.MsgTypeOperate, models.OperateRequest{Action: "insert_quarter"})
	if reply := recvError(t, c); reply.Code != "not_watching" {
		t.Errorf("Expected not_watching, got %+v", reply)
	}

	send(t, c, network.MsgTypeWatch, models.WatchRequest{MachineID: "ghost"})
	if reply := recvError(t, c); reply.Code != "machine_not_found" {
		t.Errorf("Expected machine_not_found, got %+v", reply)
	}

	send(t, c, network.MsgTypeWatch, models.WatchRequest{MachineID: "m1"})
	recvStatus(t, c)

	send(t, c, network.MsgTypeOperate, models.OperateRequest{Action: "kick"})
	if reply := recvError(t, c); reply.Code != "unknown_action" {
		t.Errorf("Expected unknown_action, got %+v", reply)
	}
}

func TestServer_WatchersSeeEachOther(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	buyer := dial(t, ts)
	watcher := dial(t, ts)

	send(t, buyer, network.MsgTypeWatch, models.WatchRequest{MachineID: "m1"})
	recvStatus(t, buyer)
	send(t, watcher, network.MsgTypeWatch, models.WatchRequest{MachineID: "m1"})
	recvStatus(t, watcher)

	send(t, buyer, network.MsgTypeOperate, models.OperateRequest{Action: "insert_quarter"})
	recvStatus(t, buyer)

	if status := recvStatus(t, watcher); status.State != "has_quarter" {
		t.Errorf("Watcher expected has_quarter, got %+v", status)
	}
}

func TestServer_ReapsIdleSessions(t *testing.T) {
	s, ts := newTestServer(t, Options{IdleTimeout: 50 * time.Millisecond, ReapInterval: 50 * time.Millisecond})
	c := dial(t, ts)

	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("Expected the idle connection to be closed by the server")
	}

	deadline := time.Now().Add(time.Second)
	for s.Sessions().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected idle session to be removed, %d left", s.Sessions().Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_HeartbeatTimeout(t *testing.T) {
	s, ts := newTestServer(t, Options{Heartbeat: 50 * time.Millisecond})
	c := dial(t, ts)

	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("Expected a silent connection to be dropped after the heartbeat deadline")
	}

	deadline := time.Now().Add(time.Second)
	for s.Sessions().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected the silent session to be removed, %d left", s.Sessions().Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_HeartbeatKeepsAlive(t *testing.T) {
	_, ts := newTestServer(t, Options{Heartbeat: 100 * time.Millisecond})
	c := dial(t, ts)

	for i := 0; i < 5; i++ {
		send(t, c, network.MsgTypeHeartbeat, struct{}{})
		time.Sleep(60 * time.Millisecond)
	}

	send(t, c, network.MsgTypeWatch, models.WatchRequest{MachineID: "m1"})
	if status := recvStatus(t, c); status.MachineID != "m1" {
		t.Errorf("Unexpected status after heartbeats %+v", status)
	}
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	c := dial(t, ts)

	send(t, c, network.MsgTypeWatch, models.WatchRequest{MachineID: "m1"})
	recvStatus(t, c)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("Expected Shutdown to close the open websocket")
	}

	deadline := time.Now().Add(time.Second)
	for s.Sessions().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected sessions to be cleaned up, %d left", s.Sessions().Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
