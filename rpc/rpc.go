package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/gumball/logger"
	"github.com/wfunc/gumball/models"
	"github.com/wfunc/gumball/services"
)

// ServiceName is the name clients use, e.g. "Admin.Status".
const ServiceName = "Admin"

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the admin service. Services live
// on a private rpc.Server so several instances can coexist.
func NewServer(addr string, svc *services.MachineService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, NewAdminService(svc)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		rpc:      srv,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins accepting admin connections and blocks until Stop.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes operator methods. Methods follow the net/rpc
// signature: exported args, pointer reply, error return.
type AdminService struct {
	machines *services.MachineService
}

func NewAdminService(svc *services.MachineService) *AdminService {
	return &AdminService{machines: svc}
}

type StatusArgs struct {
	MachineID string
}

type StatusReply struct {
	Status models.MachineStatus
}

func (a *AdminService) Status(args *StatusArgs, reply *StatusReply) error {
	status, err := a.machines.Status(args.MachineID)
	if err != nil {
		return err
	}
	reply.Status = status
	return nil
}

// ListArgs filters machines by location, empty means all.
type ListArgs struct {
	Location string
}

type ListReply struct {
	Machines []models.MachineStatus
}

func (a *AdminService) List(args *ListArgs, reply *ListReply) error {
	for _, status := range a.machines.List() {
		if args.Location == "" || status.Location == args.Location {
			reply.Machines = append(reply.Machines, status)
		}
	}
	return nil
}

type RestockArgs struct {
	MachineID string
	Count     uint
}

// Restock 为售罄的机器补货
func (a *AdminService) Restock(args *RestockArgs, reply *StatusReply) error {
	status, err := a.machines.Restock(args.MachineID, args.Count)
	if err != nil {
		return err
	}
	reply.Status = status
	return nil
}

type RemoveArgs struct {
	MachineID string
}

// Remove 下线机器, 返回其最后状态
func (a *AdminService) Remove(args *RemoveArgs, reply *StatusReply) error {
	status, err := a.machines.Remove(args.MachineID)
	if err != nil {
		return err
	}
	reply.Status = status
	return nil
}
