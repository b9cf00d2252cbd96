package store

import (
	"sync"

	"custodia.network/ctd/internal/types"
)

// Memory keeps the chain in process memory with no durability. Used by tests
// and by nodes run with persistence disabled. Read paths derive the item and
// transfer views by scanning the held chain, so they agree with it by
// construction.
type Memory struct {
	mu     sync.RWMutex
	blocks []types.Block
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// AppendBlock stores the block, overwriting any earlier block at the same
// index.
func (m *Memory) AppendBlock(b types.Block, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.blocks {
		if m.blocks[i].Index == b.Index {
			m.blocks[i] = b
			return nil
		}
	}
	m.blocks = append(m.blocks, b)
	return nil
}

// ReplaceChain swaps the held chain for the supplied one.
func (m *Memory) ReplaceChain(blocks []types.Block, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append([]types.Block(nil), blocks...)
	return nil
}

// LoadChain returns the held blocks in order.
func (m *Memory) LoadChain() ([]types.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Block(nil), m.blocks...), nil
}

// QueryItem derives the projection row for one item from the chain.
func (m *Memory) QueryItem(itemID string) (*types.Item, error) {
	items, err := m.QueryAllItems()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ItemID == itemID {
			return &items[i], nil
		}
	}
	return nil, ErrItemNotFound
}

// QueryAllItems derives one row per item by replaying every transaction in
// chain order.
func (m *Memory) QueryAllItems() ([]types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := make(map[string]*types.Item)
	var order []string

	for _, b := range m.blocks {
		if b.Index == 0 {
			continue
		}
		txs, ok := types.Transactions(b.Payload)
		if !ok {
			continue
		}
		for _, t := range txs {
			switch t.Type {
			case types.TxCreation:
				if _, seen := byID[t.ItemID]; !seen {
					order = append(order, t.ItemID)
				}
				byID[t.ItemID] = &types.Item{
					ItemID:           t.ItemID,
					Description:      t.Description,
					ItemType:         t.ItemType,
					ContentHash:      t.ContentHash,
					CreatedBy:        t.Actor,
					CreatedAt:        t.Timestamp,
					CurrentCustodian: t.Actor,
					CurrentLocation:  t.Location,
					LastAction:       types.ActionCreated,
					BlockIndex:       b.Index,
				}
			case types.TxTransfer:
				if item, seen := byID[t.ItemID]; seen {
					item.CurrentCustodian = t.ToActor
					item.LastAction = types.ActionTransferred
					item.BlockIndex = b.Index
				}
			}
		}
	}

	items := make([]types.Item, 0, len(order))
	for _, id := range order {
		items = append(items, *byID[id])
	}
	return items, nil
}

// QueryItemHistory returns every transaction touching one item, in chain
// order.
func (m *Memory) QueryItemHistory(itemID string) ([]types.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := []types.HistoryEntry{}
	for _, b := range m.blocks {
		txs, ok := types.Transactions(b.Payload)
		if !ok {
			continue
		}
		for _, t := range txs {
			if t.ItemID == itemID {
				history = append(history, types.HistoryEntry{BlockIndex: b.Index, Transaction: t})
			}
		}
	}
	return history, nil
}

// QueryTransfers returns the transfer rows for one item, newest first.
func (m *Memory) QueryTransfers(itemID string) ([]types.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transfers := []types.Transfer{}
	var id int64
	for _, b := range m.blocks {
		txs, ok := types.Transactions(b.Payload)
		if !ok {
			continue
		}
		for _, t := range txs {
			if t.Type != types.TxTransfer {
				continue
			}
			id++
			if t.ItemID != itemID {
				continue
			}
			transfers = append(transfers, types.Transfer{
				ID:         id,
				ItemID:     t.ItemID,
				FromActor:  t.FromActor,
				ToActor:    t.ToActor,
				Reason:     t.Reason,
				Timestamp:  t.Timestamp,
				BlockIndex: b.Index,
			})
		}
	}

	// newest first, matching the SQLite read path
	for i, j := 0, len(transfers)-1; i < j; i, j = i+1, j-1 {
		transfers[i], transfers[j] = transfers[j], transfers[i]
	}
	return transfers, nil
}

// UpdateNodeInfo is a no-op for the in-memory store.
func (m *Memory) UpdateNodeInfo(nodeID string, chainLength int) error {
	return nil
}

// Stats reports counts derived from the held chain.
func (m *Memory) Stats() (types.StoreStats, error) {
	items, _ := m.QueryAllItems()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var transfers int64
	for _, b := range m.blocks {
		txs, ok := types.Transactions(b.Payload)
		if !ok {
			continue
		}
		for _, t := range txs {
			if t.Type == types.TxTransfer {
				transfers++
			}
		}
	}

	return types.StoreStats{
		Blocks:    int64(len(m.blocks)),
		Items:     int64(len(items)),
		Transfers: transfers,
	}, nil
}

// Backup is not supported without a database file.
func (m *Memory) Backup() (string, error) {
	return "", ErrNoBackup
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
