// Package main is the entry point for ctd, the Custodia custody-ledger node.
// It loads configuration and the persisted node identity, opens the SQLite
// store, and runs the node until interrupted.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"custodia.network/ctd/internal/config"
	"custodia.network/ctd/internal/identity"
	"custodia.network/ctd/internal/node"
	"custodia.network/ctd/internal/store"
)

func main() {
	log.Println("ctd starting...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.Port = resolvePort(cfg.Port)

	nodeID, err := identity.LoadOrCreateID(cfg.IDFile)
	if err != nil {
		log.Fatalf("Failed to load node identity: %v", err)
	}
	log.Printf("Node identity: %s", nodeID)

	st, err := store.NewSQLite(cfg.DBFile)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	log.Printf("Store opened: %s", cfg.DBFile)

	n, err := node.New(cfg, nodeID, st)
	if err != nil {
		log.Fatalf("Failed to initialize node: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}
	log.Printf("Chain length: %d", n.Ledger().Length())

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	n.Stop()
}

// resolvePort lets the PORT env var override the configured port.
func resolvePort(defaultPort int) int {
	portStr := os.Getenv("PORT")
	if portStr == "" {
		return defaultPort
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		log.Printf("Warning: invalid PORT value %q, using %d", portStr, defaultPort)
		return defaultPort
	}

	return port
}
