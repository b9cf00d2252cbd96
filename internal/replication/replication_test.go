package replication

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"custodia.network/ctd/internal/ledger"
	"custodia.network/ctd/internal/logger"
	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/store"
	"custodia.network/ctd/internal/types"
)

func newLedger(t *testing.T, nodeID string, items int) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(nodeID, store.NewMemory())
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	for i := 0; i < items; i++ {
		if _, _, err := l.SubmitCreation(ledger.CreationRequest{
			ItemID:      "EV-" + nodeID + "-" + string(rune('a'+i)),
			Description: "item",
			Actor:       "A",
		}); err != nil {
			t.Fatalf("Failed to grow chain: %v", err)
		}
	}
	return l
}

// chainServer serves a ledger's chain the way a real peer would.
func chainServer(t *testing.T, l *ledger.Ledger) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		chain := l.Chain()
		json.NewEncoder(w).Encode(map[string]any{"length": len(chain), "chain": chain})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBroadcastFanOut(t *testing.T) {
	var received atomic.Int32
	receiver := func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transaction types.Transaction `json:"transaction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transaction.ItemID != "EV-1" {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		received.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"status": "Transaction received"})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/transaction/receive", receiver)
	peerA := httptest.NewServer(mux)
	defer peerA.Close()
	peerB := httptest.NewServer(mux)
	defer peerB.Close()

	registry := peers.NewRegistry()
	registry.Add(peerA.URL)
	registry.Add(peerB.URL)
	registry.Add("http://127.0.0.1:1") // unreachable, must not break the others

	b := NewBroadcaster(NewClient(time.Second), registry, logger.New(50))
	b.Broadcast(types.Transaction{
		Type:   types.TxCreation,
		ItemID: "EV-1",
		Actor:  "A",
		Action: types.ActionCreated,
	})
	b.Wait()

	if got := received.Load(); got != 2 {
		t.Errorf("Expected 2 deliveries, got %d", got)
	}
}

func TestReconcileAdoptsStrictlyLongerChain(t *testing.T) {
	local := newLedger(t, "x", 2)  // length 3
	remote := newLedger(t, "y", 4) // length 5

	srv := chainServer(t, remote)
	registry := peers.NewRegistry()
	registry.Add(srv.URL)

	r := NewReconciler(local, registry, NewClient(time.Second), AdoptLongest, logger.New(50))
	result, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if !result.Adopted {
		t.Fatal("Expected the longer chain to be adopted")
	}
	if local.Length() != remote.Length() {
		t.Errorf("Lengths differ after reconcile: %d != %d", local.Length(), remote.Length())
	}
	if local.Latest().Hash != remote.Latest().Hash {
		t.Error("Latest hashes differ after reconcile")
	}
}

func TestReconcileKeepsLocalOnTieOrShorter(t *testing.T) {
	local := newLedger(t, "x", 4) // length 5
	tie := newLedger(t, "y", 4)   // same length
	short := newLedger(t, "z", 1) // shorter

	registry := peers.NewRegistry()
	registry.Add(chainServer(t, tie).URL)
	registry.Add(chainServer(t, short).URL)

	before := local.Latest().Hash

	r := NewReconciler(local, registry, NewClient(time.Second), AdoptLongest, logger.New(50))
	result, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if result.Adopted {
		t.Error("Tie or shorter chains must not be adopted")
	}
	if local.Latest().Hash != before {
		t.Error("Local chain changed despite no adoption")
	}
}

func TestReconcileSkipsUnreachablePeer(t *testing.T) {
	local := newLedger(t, "x", 0)
	remote := newLedger(t, "y", 2)

	registry := peers.NewRegistry()
	registry.Add("http://127.0.0.1:1")
	registry.Add(chainServer(t, remote).URL)

	r := NewReconciler(local, registry, NewClient(time.Second), AdoptLongest, logger.New(50))
	result, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !result.Adopted {
		t.Error("Reachable peer's longer chain should still be adopted")
	}
}

func TestAdoptValidatedRejectsTamperedChain(t *testing.T) {
	remote := newLedger(t, "y", 2)
	chain := remote.Chain()
	chain[1].Payload = json.RawMessage(`[{"type":"creation","item_id":"EV-FORGED","actor":"X","action":"Created","timestamp":"t","node":"n"}]`)

	if err := AdoptValidated(chain); err == nil {
		t.Error("Expected tampered chain to be rejected")
	}
	if err := AdoptValidated(remote.Chain()); err != nil {
		t.Errorf("Intact chain rejected: %v", err)
	}
	if err := AdoptLongest(chain); err != nil {
		t.Errorf("AdoptLongest should accept anything, got %v", err)
	}
}

func TestReconcileHonorsPolicy(t *testing.T) {
	local := newLedger(t, "x", 0)
	remote := newLedger(t, "y", 2)
	tampered := remote.Chain()
	tampered[1].Hash = "forged"

	mux := http.NewServeMux()
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"length": len(tampered), "chain": tampered})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	registry := peers.NewRegistry()
	registry.Add(srv.URL)

	r := NewReconciler(local, registry, NewClient(time.Second), AdoptValidated, logger.New(50))
	result, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if result.Adopted {
		t.Error("Validating policy must reject the tampered chain")
	}
	if local.Length() != 1 {
		t.Errorf("Local chain changed despite rejection: length %d", local.Length())
	}
}
