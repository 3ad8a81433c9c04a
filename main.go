package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/gumball/broadcast"
	"github.com/wfunc/gumball/config"
	"github.com/wfunc/gumball/fleet"
	"github.com/wfunc/gumball/logger"
	"github.com/wfunc/gumball/monitor"
	"github.com/wfunc/gumball/rpc"
	"github.com/wfunc/gumball/server"
	"github.com/wfunc/gumball/services"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	mon := monitor.NewMonitor(cfg.Server.Namespace)
	f := fleet.NewManager()
	machines := services.NewMachineService(f, mon, broadcast.NewMachineBroadcaster(f))

	for _, m := range cfg.Machines {
		if _, err := machines.Register(m.ID, m.Location, m.Count); err != nil {
			logger.Log.Fatalf("Failed to register machine: %v", err)
		}
	}

	metricsServer := mon.StartServer(cfg.Server.MetricsAddress)
	logger.Log.Infof("Metrics on %s", cfg.Server.MetricsAddress)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, machines)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()

	gumballServer := server.NewServer(server.Options{
		Addr:         cfg.Server.HTTPAddress,
		IdleTimeout:  cfg.Session.IdleTimeout,
		ReapInterval: cfg.Session.ReapInterval,
		Heartbeat:    cfg.Session.Heartbeat,
	}, f, machines, mon)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		logger.Log.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rpcServer.Stop()
		metricsServer.Shutdown(ctx)
		if err := gumballServer.Shutdown(ctx); err != nil {
			logger.Log.Errorf("Shutdown error: %v", err)
		}
	}()

	// Start Server
	if err := gumballServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
