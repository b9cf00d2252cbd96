// Package types defines the core domain models for Custodia (ctd).
// It contains the Block and Transaction structures that make up the
// custody ledger, plus the derived projection rows served by read paths.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the current version of ctd
const Version = "0.3.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// Transaction kinds
const (
	TxCreation = "creation"
	TxTransfer = "transfer"
)

// Custody actions recorded on transactions
const (
	ActionCreated     = "Created"
	ActionTransferred = "Transferred"
)

// GenesisPreviousHash is the previous_hash sentinel carried by block 0.
const GenesisPreviousHash = "0"

// Block is one immutable entry in the custody chain. Payload is kept as the
// raw JSON it was sealed with so the hash recomputes identically after a
// round-trip through the wire or the block table. It holds a list of
// Transactions for every block except genesis, whose payload is a marker
// object (see GenesisPayload).
type Block struct {
	Index        int64           `json:"index"`         // 0 for genesis, strictly increasing
	Timestamp    int64           `json:"timestamp"`     // Unix milliseconds at sealing time
	Payload      json.RawMessage `json:"payload"`       // []Transaction, or genesis marker
	PreviousHash string          `json:"previous_hash"` // hash of block index-1, "0" for genesis
	Nonce        int64           `json:"nonce"`         // schema holdover, always 0
	Hash         string          `json:"hash"`          // hex SHA-256 over the other five fields
}

// GenesisPayload is the marker object sealed into block 0.
type GenesisPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Node    string `json:"node"`
}

// Transaction is a single custody event. The Type tag selects which fields
// are meaningful: creation carries the item metadata and the creating actor,
// transfer carries the custody handover. Both carry the originating node.
type Transaction struct {
	Type        string `json:"type"`
	ItemID      string `json:"item_id"`
	Description string `json:"description,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Location    string `json:"location,omitempty"`
	ItemType    string `json:"item_type,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	FromActor   string `json:"from_actor,omitempty"`
	ToActor     string `json:"to_actor,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Action      string `json:"action"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	Node        string `json:"node"`
}

// Validate rejects transactions that are missing the fields their kind
// requires. Called before any block is sealed from caller-supplied input.
func (t *Transaction) Validate() error {
	if t.ItemID == "" {
		return errors.New("transaction missing item_id")
	}
	switch t.Type {
	case TxCreation:
		if t.Actor == "" {
			return errors.New("creation transaction missing actor")
		}
	case TxTransfer:
		if t.FromActor == "" || t.ToActor == "" {
			return errors.New("transfer transaction missing from_actor or to_actor")
		}
	default:
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	return nil
}

// Transactions decodes a block payload into its transaction list. The second
// return is false for the genesis marker or any payload that is not a JSON
// array.
func Transactions(payload json.RawMessage) ([]Transaction, bool) {
	var txs []Transaction
	if err := json.Unmarshal(payload, &txs); err != nil {
		return nil, false
	}
	return txs, true
}

// Item is the derived projection row for one tracked item: its creation
// metadata plus whoever currently holds it. The chain is authoritative; this
// row is rebuilt from it and exists only to serve reads.
type Item struct {
	ItemID           string `json:"item_id"`
	Description      string `json:"description"`
	ItemType         string `json:"item_type"`
	ContentHash      string `json:"content_hash"`
	CreatedBy        string `json:"created_by"`
	CreatedAt        string `json:"created_at"`
	CurrentCustodian string `json:"current_custodian"`
	CurrentLocation  string `json:"current_location"`
	LastAction       string `json:"last_action"`
	BlockIndex       int64  `json:"block_index"`
}

// Transfer is one row of the derived transfer log.
type Transfer struct {
	ID         int64  `json:"id"`
	ItemID     string `json:"item_id"`
	FromActor  string `json:"from_actor"`
	ToActor    string `json:"to_actor"`
	Reason     string `json:"reason"`
	Timestamp  string `json:"timestamp"`
	BlockIndex int64  `json:"block_index"`
}

// HistoryEntry pairs a transaction with the block that sealed it, as served
// by the item history endpoint.
type HistoryEntry struct {
	BlockIndex  int64       `json:"block_index"`
	Transaction Transaction `json:"transaction"`
}

// StoreStats summarizes the persisted state of one node.
type StoreStats struct {
	Blocks    int64 `json:"blocks"`
	Items     int64 `json:"items"`
	Transfers int64 `json:"transfers"`
	SizeBytes int64 `json:"size_bytes"`
}
