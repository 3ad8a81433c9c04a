package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/logger"
	"github.com/wfunc/gumball/models"
	"github.com/wfunc/gumball/monitor"
	"github.com/wfunc/gumball/network"
	"github.com/wfunc/gumball/services"
	"github.com/wfunc/gumball/session"
	"github.com/wfunc/gumball/state"
	"github.com/wfunc/gumball/timer"
)

// Options 服务器参数
type Options struct {
	Addr         string
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	// Heartbeat drops connections that stay silent for twice this long
	Heartbeat time.Duration
}

type Server struct {
	opts           Options
	upgrader       websocket.Upgrader
	fleet          *fleet.Manager
	sessionManager *session.Manager
	machines       *services.MachineService
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	httpServer     *http.Server
	reaperID       int64
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewServer(opts Options, f *fleet.Manager, svc *services.MachineService, mon *monitor.Monitor) *Server {
	s := &Server{
		opts:           opts,
		fleet:          f,
		sessionManager: session.NewManager(),
		machines:       svc,
		monitor:        mon,
		timers:         timer.NewTimerManager(0),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.httpServer = &http.Server{Addr: opts.Addr, Handler: s.Handler()}

	if opts.IdleTimeout > 0 && opts.ReapInterval > 0 {
		s.reaperID = s.timers.AddTimer(opts.ReapInterval, opts.ReapInterval, s.reapIdleSessions)
	}
	return s
}

// Handler returns the websocket endpoint mounted at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves the websocket endpoint and blocks until Shutdown.
func (s *Server) Start() error {
	logger.Log.Infof("Gumball server listening on %s", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	if s.reaperID != 0 {
		s.timers.RemoveTimer(s.reaperID)
	}
	s.timers.Stop()
	err := s.httpServer.Shutdown(ctx)
	// hijacked websocket connections are not tracked by http.Server
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	return err
}

// Sessions exposes the session manager for inspection.
func (s *Server) Sessions() *session.Manager {
	return s.sessionManager
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *Server) handleConnection(conn network.Connection) {
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineSessions()

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
	if s.opts.Heartbeat > 0 {
		conn.SetHeartbeat(s.opts.Heartbeat)
	}

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.detach(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineSessions()
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := conn.ReadPacket()
			if err != nil {
				return
			}
			sess.Touch()
			s.handlePacket(sess, packet)
		}
	}
}

func (s *Server) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		// Touch already recorded the activity
	case network.MsgTypeWatch:
		s.handleWatch(sess, packet)
	case network.MsgTypeUnwatch:
		s.detach(sess)
	case network.MsgTypeOperate:
		s.handleOperate(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *Server) handleWatch(sess *session.Session, packet *network.Packet) {
	var req models.WatchRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	unit, exists := s.fleet.GetUnit(req.MachineID)
	if !exists {
		s.sendError(sess, fleet.ErrUnitNotFound)
		return
	}

	s.detach(sess)
	unit.AddWatcher(sess)
	logger.Log.Infof("Session %s watching machine %s", sess.GetID(), unit.ID)

	s.sendJSON(sess, network.MsgTypeMachineState, models.NewMachineStatus(unit, unit.Snapshot()))
}

func (s *Server) handleOperate(sess *session.Session, packet *network.Packet) {
	machineID := sess.MachineID()
	if machineID == "" {
		logger.Log.Warnf("Session %s sent an operation but is not watching a machine", sess.GetID())
		s.sendError(sess, models.ErrNotWatching)
		return
	}

	var req models.OperateRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}
	action, err := state.ParseAction(req.Action)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	// on success the service broadcasts the new status to every watcher,
	// this session included
	if _, err := s.machines.Operate(machineID, action); err != nil {
		s.sendError(sess, err)
	}
}

// detach stops sess from watching its current machine, if any.
func (s *Server) detach(sess *session.Session) {
	machineID := sess.MachineID()
	if machineID == "" {
		return
	}
	if unit, exists := s.fleet.GetUnit(machineID); exists {
		unit.RemoveWatcher(sess.GetID())
	}
	sess.SetMachineID("")
}

func (s *Server) reapIdleSessions() {
	cutoff := time.Now().Add(-s.opts.IdleTimeout)
	for _, sess := range s.sessionManager.Idle(cutoff) {
		logger.Log.Infof("Closing idle session %s", sess.GetID())
		// closing the connection ends its read loop, which cleans up
		sess.Close()
	}
}

func (s *Server) sendError(sess *session.Session, err error) {
	s.sendJSON(sess, network.MsgTypeError, models.NewErrorReply(err))
}

func (s *Server) sendJSON(sess *session.Session, msgID uint16, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorf("Error marshalling message %d: %v", msgID, err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugf("Send to session %s failed: %v", sess.GetID(), err)
	}
}
