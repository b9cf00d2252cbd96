// Package store provides durable persistence for one node's chain and the
// derived lookup tables served by read paths. The chain is authoritative;
// the item and transfer tables are projections rebuilt alongside every block
// write so they never observe a partial update.
package store

import (
	"errors"

	"custodia.network/ctd/internal/types"
)

// ErrItemNotFound is returned by item queries when no projection row exists.
var ErrItemNotFound = errors.New("item not found")

// ErrNoBackup is returned by Backup on stores that have nothing to snapshot.
var ErrNoBackup = errors.New("no database to back up")

// Store is the persistence contract the ledger writes through. AppendBlock
// and ReplaceChain update the projections in the same unit of work as the
// block rows; a failure leaves the store untouched.
type Store interface {
	// AppendBlock durably writes one block and the projection rows its
	// transactions imply. The block index is the unique key, so re-applying
	// the same block overwrites rather than duplicates.
	AppendBlock(b types.Block, nodeID string) error

	// ReplaceChain atomically swaps the stored chain for the supplied one
	// and rebuilds all projections from it.
	ReplaceChain(blocks []types.Block, nodeID string) error

	// LoadChain returns all persisted blocks ordered by index. An empty
	// result signals a fresh node that still needs a genesis block.
	LoadChain() ([]types.Block, error)

	QueryItem(itemID string) (*types.Item, error)
	QueryAllItems() ([]types.Item, error)
	QueryItemHistory(itemID string) ([]types.HistoryEntry, error)
	QueryTransfers(itemID string) ([]types.Transfer, error)

	// UpdateNodeInfo records this node's id, last-active time and chain
	// length. Bookkeeping only; never consulted by chain logic.
	UpdateNodeInfo(nodeID string, chainLength int) error

	Stats() (types.StoreStats, error)

	// Backup writes a snapshot of the store to a timestamped file and
	// returns its path.
	Backup() (string, error)

	Close() error
}
