package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wx-shi/chainsim/internal/config"
	"github.com/wx-shi/chainsim/internal/db"
	"github.com/wx-shi/chainsim/internal/node"
	"github.com/wx-shi/chainsim/internal/runner"
	"github.com/wx-shi/chainsim/internal/server"
	"github.com/wx-shi/chainsim/internal/simulation"
	"github.com/wx-shi/chainsim/internal/streamlet"
	"github.com/wx-shi/chainsim/pkg"
	"go.uber.org/zap"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "./config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(flagconf)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := pkg.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize trace store
	traceDB, err := db.NewDB(cfg.DB, logger)
	if err != nil {
		logger.Fatal("Error initializing trace store", zap.Error(err))
	}
	defer func() {
		if err := traceDB.Close(); err != nil {
			logger.Error("DB::Close", zap.Error(err))
		}
	}()

	// Build the participants
	sim := simulation.NewSimulation(cfg.Simulation, logger, traceDB)
	genesis := streamlet.NewGenesis(cfg.Simulation.Participants())
	for i := 0; i < cfg.Simulation.Honest; i++ {
		sim.AddNode(node.NewHonest(logger, genesis))
	}
	for i := 0; i < cfg.Simulation.Byzantine; i++ {
		sim.AddNode(node.NewByzantine(logger))
	}
	for i := 0; i < cfg.Simulation.Passive; i++ {
		sim.AddNode(node.NewPassive(logger))
	}
	for i := 0; i < cfg.Simulation.Sequential; i++ {
		sim.AddNode(node.NewSequential(logger))
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the epochs
	r := runner.NewRunner(ctx, cfg.Runner, cfg.Simulation.Epochs, logger, sim, traceDB)
	r.Sync()

	// Start HTTP server
	httpServer := server.NewServer(cfg.Server, logger, traceDB, r)
	httpServer.Run()

	// Wait for signal
	<-sigCh
	logger.Info("Shutting down...")

	cancel()
	<-r.Finish // no exit while a final block is being stored

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}
}
