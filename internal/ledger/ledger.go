// Package ledger owns a node's chain of custody blocks: sealing submitted
// transactions into new blocks, verifying hash-chaining, and wholesale chain
// replacement during reconciliation. One Ledger instance guards one chain
// behind one mutex; local submissions, inbound peer transactions and chain
// replacement all serialize through it.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"custodia.network/ctd/internal/store"
	"custodia.network/ctd/internal/types"
)

// CreationRequest carries the caller-supplied fields for recording a new
// tracked item.
type CreationRequest struct {
	ItemID      string `json:"item_id"`
	Description string `json:"description"`
	Actor       string `json:"actor"`
	Location    string `json:"location"`
	ItemType    string `json:"item_type"`
	ContentHash string `json:"content_hash"`
}

// TransferRequest carries the caller-supplied fields for a custody handover.
type TransferRequest struct {
	ItemID    string `json:"item_id"`
	FromActor string `json:"from_actor"`
	ToActor   string `json:"to_actor"`
	Reason    string `json:"reason"`
}

// Ledger is the single owner of one node's chain.
type Ledger struct {
	mu      sync.Mutex
	nodeID  string
	store   store.Store
	chain   []types.Block
	pending []types.Transaction
	updates chan struct{}
}

// New loads the chain from the store, creating the genesis block only when
// the store is empty. Opening a second Ledger against the same populated
// store yields the identical chain.
func New(nodeID string, st store.Store) (*Ledger, error) {
	l := &Ledger{
		nodeID:  nodeID,
		store:   st,
		updates: make(chan struct{}, 1),
	}

	blocks, err := st.LoadChain()
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}

	if len(blocks) > 0 {
		l.chain = blocks
		return l, nil
	}

	if err := l.createGenesis(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) createGenesis() error {
	payload, err := json.Marshal(types.GenesisPayload{
		Type:    "genesis",
		Message: "Custodia Genesis Block",
		Node:    l.nodeID,
	})
	if err != nil {
		return fmt.Errorf("encode genesis payload: %w", err)
	}

	genesis := types.Block{
		Index:        0,
		Timestamp:    time.Now().UnixMilli(),
		Payload:      payload,
		PreviousHash: types.GenesisPreviousHash,
		Nonce:        0,
	}
	genesis.Hash, err = BlockDigest(genesis)
	if err != nil {
		return fmt.Errorf("hash genesis block: %w", err)
	}

	if err := l.store.AppendBlock(genesis, l.nodeID); err != nil {
		return fmt.Errorf("persist genesis block: %w", err)
	}

	l.chain = []types.Block{genesis}
	return nil
}

// NodeID returns the identifier stamped on transactions this node originates.
func (l *Ledger) NodeID() string {
	return l.nodeID
}

// SubmitCreation records a new tracked item, deriving a content hash when
// the caller did not supply one.
func (l *Ledger) SubmitCreation(req CreationRequest) (types.Block, types.Transaction, error) {
	contentHash := req.ContentHash
	if contentHash == "" {
		contentHash = ContentHash(req.ItemID, req.Description)
	}

	tx := types.Transaction{
		Type:        types.TxCreation,
		ItemID:      req.ItemID,
		Description: req.Description,
		Actor:       req.Actor,
		Location:    req.Location,
		ItemType:    req.ItemType,
		ContentHash: contentHash,
		Action:      types.ActionCreated,
		Timestamp:   time.Now().Format(time.RFC3339),
		Node:        l.nodeID,
	}

	block, err := l.Submit(tx)
	return block, tx, err
}

// SubmitTransfer records a custody handover for an existing item.
func (l *Ledger) SubmitTransfer(req TransferRequest) (types.Block, types.Transaction, error) {
	tx := types.Transaction{
		Type:      types.TxTransfer,
		ItemID:    req.ItemID,
		FromActor: req.FromActor,
		ToActor:   req.ToActor,
		Reason:    req.Reason,
		Action:    types.ActionTransferred,
		Timestamp: time.Now().Format(time.RFC3339),
		Node:      l.nodeID,
	}

	block, err := l.Submit(tx)
	return block, tx, err
}

// Submit validates the transaction, seals it into a new block and persists
// it. Each call produces exactly one block, synchronously; there is no
// batching delay. A storage failure leaves the chain and the pending buffer
// unchanged and is returned to the caller.
func (l *Ledger) Submit(tx types.Transaction) (types.Block, error) {
	if err := tx.Validate(); err != nil {
		return types.Block{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, tx)

	block, err := l.sealLocked()
	if err != nil {
		l.pending = l.pending[:len(l.pending)-1]
		return types.Block{}, err
	}
	return block, nil
}

// sealLocked creates one block from the entire pending buffer, appends it to
// the chain and clears the buffer. Caller holds the mutex.
func (l *Ledger) sealLocked() (types.Block, error) {
	payload, err := json.Marshal(l.pending)
	if err != nil {
		return types.Block{}, fmt.Errorf("encode block payload: %w", err)
	}

	block := types.Block{
		Index:        int64(len(l.chain)),
		Timestamp:    time.Now().UnixMilli(),
		Payload:      payload,
		PreviousHash: l.chain[len(l.chain)-1].Hash,
		Nonce:        0,
	}
	block.Hash, err = BlockDigest(block)
	if err != nil {
		return types.Block{}, fmt.Errorf("hash block: %w", err)
	}

	if err := l.store.AppendBlock(block, l.nodeID); err != nil {
		return types.Block{}, fmt.Errorf("persist block %d: %w", block.Index, err)
	}

	l.chain = append(l.chain, block)
	l.pending = nil

	_ = l.store.UpdateNodeInfo(l.nodeID, len(l.chain))
	l.notify()

	return block, nil
}

// ValidateChain recomputes every block's digest and checks hash linkage from
// index 1 onward. A failure is reported, never repaired.
func (l *Ledger) ValidateChain() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 1; i < len(l.chain); i++ {
		current := l.chain[i]

		digest, err := BlockDigest(current)
		if err != nil || current.Hash != digest {
			return false
		}
		if current.PreviousHash != l.chain[i-1].Hash {
			return false
		}
	}
	return true
}

// ReplaceChain swaps the local chain for an externally supplied one. The
// reconciler decides whether the candidate should be adopted before calling;
// no hash-chaining check happens here.
func (l *Ledger) ReplaceChain(blocks []types.Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("refusing to adopt an empty chain")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.ReplaceChain(blocks, l.nodeID); err != nil {
		return fmt.Errorf("persist replacement chain: %w", err)
	}

	l.chain = append([]types.Block(nil), blocks...)

	_ = l.store.UpdateNodeInfo(l.nodeID, len(l.chain))
	l.notify()

	return nil
}

// Chain returns a copy of the current chain.
func (l *Ledger) Chain() []types.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Block(nil), l.chain...)
}

// Length returns the current chain length.
func (l *Ledger) Length() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chain)
}

// Latest returns the most recent block.
func (l *Ledger) Latest() types.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain[len(l.chain)-1]
}

// Updates returns a channel that receives a value whenever the chain gains a
// block or is replaced. Signals coalesce; slow readers miss intermediate
// notifications, not the latest state.
func (l *Ledger) Updates() <-chan struct{} {
	return l.updates
}

func (l *Ledger) notify() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}
