package ledger

import (
	"errors"
	"os"
	"testing"

	"custodia.network/ctd/internal/store"
	"custodia.network/ctd/internal/types"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New("node-test", store.NewMemory())
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	return l
}

func TestNewCreatesGenesis(t *testing.T) {
	l := newTestLedger(t)

	if l.Length() != 1 {
		t.Fatalf("Expected chain length 1, got %d", l.Length())
	}

	genesis := l.Latest()
	if genesis.Index != 0 {
		t.Errorf("Expected genesis index 0, got %d", genesis.Index)
	}
	if genesis.PreviousHash != types.GenesisPreviousHash {
		t.Errorf("Expected previous hash %q, got %q", types.GenesisPreviousHash, genesis.PreviousHash)
	}
	if _, isList := types.Transactions(genesis.Payload); isList {
		t.Error("Genesis payload should be a marker object, not a transaction list")
	}
}

func TestGenesisIdempotentAgainstPopulatedStore(t *testing.T) {
	tmpDB, err := os.CreateTemp("", "ledger-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db: %v", err)
	}
	tmpDB.Close()
	defer os.Remove(tmpDB.Name())

	st, err := store.NewSQLite(tmpDB.Name())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	first, err := New("node-test", st)
	if err != nil {
		t.Fatalf("Failed to create first ledger: %v", err)
	}
	if _, _, err := first.SubmitCreation(CreationRequest{ItemID: "EV-1", Description: "knife", Actor: "A"}); err != nil {
		t.Fatalf("Failed to submit creation: %v", err)
	}
	firstChain := first.Chain()
	st.Close()

	st, err = store.NewSQLite(tmpDB.Name())
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer st.Close()

	second, err := New("node-test", st)
	if err != nil {
		t.Fatalf("Failed to create second ledger: %v", err)
	}

	secondChain := second.Chain()
	if len(secondChain) != len(firstChain) {
		t.Fatalf("Reopen changed chain length: %d != %d", len(secondChain), len(firstChain))
	}
	for i := range firstChain {
		if secondChain[i].Hash != firstChain[i].Hash {
			t.Errorf("Block %d hash drifted across reopen", i)
		}
	}
}

func TestCreationAndTransferScenario(t *testing.T) {
	l := newTestLedger(t)

	block, tx, err := l.SubmitCreation(CreationRequest{
		ItemID:      "EV-1",
		Description: "knife",
		Actor:       "A",
		Location:    "scene",
		ItemType:    "Physical",
	})
	if err != nil {
		t.Fatalf("Failed to submit creation: %v", err)
	}
	if l.Length() != 2 {
		t.Fatalf("Expected chain length 2, got %d", l.Length())
	}
	if block.Index != 1 {
		t.Errorf("Expected block index 1, got %d", block.Index)
	}
	if tx.ContentHash == "" {
		t.Error("Expected a derived content hash")
	}
	if tx.Action != types.ActionCreated {
		t.Errorf("Expected action %q, got %q", types.ActionCreated, tx.Action)
	}
	if !l.ValidateChain() {
		t.Error("Chain invalid after creation")
	}

	if _, _, err := l.SubmitTransfer(TransferRequest{
		ItemID:    "EV-1",
		FromActor: "A",
		ToActor:   "B",
		Reason:    "lab",
	}); err != nil {
		t.Fatalf("Failed to submit transfer: %v", err)
	}
	if l.Length() != 3 {
		t.Fatalf("Expected chain length 3, got %d", l.Length())
	}
	if !l.ValidateChain() {
		t.Error("Chain invalid after transfer")
	}

	latest := l.Latest()
	if latest.PreviousHash != block.Hash {
		t.Errorf("Block 2 does not link to block 1")
	}
}

func TestSubmitRejectsMalformedTransaction(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.Submit(types.Transaction{Type: types.TxCreation}); err == nil {
		t.Error("Expected validation error for missing fields")
	}
	if l.Length() != 1 {
		t.Errorf("Malformed submission changed chain length to %d", l.Length())
	}
}

func TestValidateChainDetectsTampering(t *testing.T) {
	l := newTestLedger(t)
	if _, _, err := l.SubmitCreation(CreationRequest{ItemID: "EV-1", Description: "knife", Actor: "A"}); err != nil {
		t.Fatalf("Failed to submit creation: %v", err)
	}

	if !l.ValidateChain() {
		t.Fatal("Fresh chain should validate")
	}

	// tamper with the sealed payload
	l.chain[1].Payload = []byte(`[{"type":"creation","item_id":"EV-FORGED","actor":"X","action":"Created","timestamp":"t","node":"n"}]`)
	if l.ValidateChain() {
		t.Error("Tampered chain should not validate")
	}
}

func TestReplaceChainAdoptsLongerChain(t *testing.T) {
	local := newTestLedger(t)
	remote := newTestLedger(t)

	for _, id := range []string{"EV-1", "EV-2", "EV-3"} {
		if _, _, err := remote.SubmitCreation(CreationRequest{ItemID: id, Description: "item", Actor: "A"}); err != nil {
			t.Fatalf("Failed to grow remote chain: %v", err)
		}
	}

	if err := local.ReplaceChain(remote.Chain()); err != nil {
		t.Fatalf("Failed to replace chain: %v", err)
	}
	if local.Length() != remote.Length() {
		t.Errorf("Lengths differ after replacement: %d != %d", local.Length(), remote.Length())
	}
	if local.Latest().Hash != remote.Latest().Hash {
		t.Error("Latest hashes differ after replacement")
	}
	if !local.ValidateChain() {
		t.Error("Adopted chain should validate")
	}
}

func TestReplaceChainRejectsEmpty(t *testing.T) {
	l := newTestLedger(t)
	if err := l.ReplaceChain(nil); err == nil {
		t.Error("Expected error adopting an empty chain")
	}
}

// failingStore wraps the memory store and fails every block write.
type failingStore struct {
	*store.Memory
}

func (f *failingStore) AppendBlock(b types.Block, nodeID string) error {
	if b.Index > 0 {
		return errors.New("disk full")
	}
	return f.Memory.AppendBlock(b, nodeID)
}

func TestStorageFailureLeavesChainUnchanged(t *testing.T) {
	l, err := New("node-test", &failingStore{store.NewMemory()})
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}

	_, _, err = l.SubmitCreation(CreationRequest{ItemID: "EV-1", Description: "knife", Actor: "A"})
	if err == nil {
		t.Fatal("Expected storage failure to surface")
	}
	if l.Length() != 1 {
		t.Errorf("Failed submission changed chain length to %d", l.Length())
	}

	// the buffered transaction must not leak into the next block
	if len(l.pending) != 0 {
		t.Errorf("Pending buffer not restored: %d entries", len(l.pending))
	}
}
