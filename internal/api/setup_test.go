package api

import (
	"net/http"
	"os"
	"testing"
	"time"

	"custodia.network/ctd/internal/ledger"
	"custodia.network/ctd/internal/logger"
	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/replication"
	"custodia.network/ctd/internal/store"
)

// setupTest builds a service over a temporary SQLite store and returns the
// routed mux, ready for httptest traffic.
func setupTest(t *testing.T) (*Service, *http.ServeMux) {
	t.Helper()

	// Create a temporary file for the database
	tmpDB, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db: %v", err)
	}
	tmpDB.Close() // Close it, NewSQLite will open it

	st, err := store.NewSQLite(tmpDB.Name())
	if err != nil {
		os.Remove(tmpDB.Name())
		t.Fatalf("Failed to create store: %v", err)
	}

	l, err := ledger.New("node-test", st)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}

	registry := peers.NewRegistry()
	client := replication.NewClient(time.Second)
	log := logger.New(100)

	svc := NewService(Options{
		Ledger:      l,
		Store:       st,
		Registry:    registry,
		Broadcaster: replication.NewBroadcaster(client, registry, log),
		Reconciler:  replication.NewReconciler(l, registry, client, replication.AdoptLongest, log),
		Client:      client,
		Logger:      log,
		NodeName:    "test-node",
		Port:        5000,
		SelfURL:     "http://127.0.0.1:5000",
	})

	t.Cleanup(func() {
		st.Close()
		os.Remove(tmpDB.Name())
	})

	return svc, svc.Routes()
}
