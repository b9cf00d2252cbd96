package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"custodia.network/ctd/internal/types"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile        = "ctd.db"
	defaultBackupDirName = "backups"
	maxBusyTimeoutMs     = 5000
	defaultMaxBackups    = 20
)

// SQLite persists the chain and its projections to a single database file.
type SQLite struct {
	mu        sync.RWMutex
	db        *sql.DB
	file      string
	backupDir string
}

type backupInfo struct {
	path      string
	timestamp int64
}

// NewSQLite opens (or creates) the database at filePath and ensures the
// schema exists.
func NewSQLite(filePath string) (*SQLite, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	s := &SQLite{
		file:      absPath,
		backupDir: filepath.Join(filepath.Dir(absPath), defaultBackupDirName),
	}

	if err := s.openDB(); err != nil {
		return nil, err
	}

	if err := s.ensureSchema(); err != nil {
		_ = s.db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLite) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", filepath.Clean(s.file))

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLite) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blocks (
			index_num INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			payload TEXT NOT NULL,
			previous_hash TEXT NOT NULL,
			nonce INTEGER DEFAULT 0,
			hash TEXT NOT NULL,
			node_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			item_id TEXT PRIMARY KEY,
			description TEXT,
			item_type TEXT,
			content_hash TEXT,
			created_by TEXT,
			created_at TEXT,
			current_custodian TEXT,
			current_location TEXT,
			last_action TEXT,
			last_updated TEXT,
			block_index INTEGER,
			FOREIGN KEY (block_index) REFERENCES blocks(index_num)
		)`,
		`CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			from_actor TEXT NOT NULL,
			to_actor TEXT NOT NULL,
			reason TEXT,
			timestamp TEXT NOT NULL,
			block_index INTEGER,
			FOREIGN KEY (item_id) REFERENCES items(item_id),
			FOREIGN KEY (block_index) REFERENCES blocks(index_num)
		)`,
		`CREATE TABLE IF NOT EXISTS node_info (
			node_id TEXT PRIMARY KEY,
			last_active TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			chain_length INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_custodian ON items(current_custodian)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_item ON transfers(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_hash ON blocks(hash)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return nil
}

// AppendBlock writes the block and its implied projection rows in one
// transaction. Keyed by index, so re-applying the same block overwrites the
// earlier write instead of duplicating it.
func (s *SQLite) AppendBlock(b types.Block, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}

	if err := insertBlock(tx, b, nodeID); err != nil {
		tx.Rollback()
		return err
	}

	if err := applyProjections(tx, b); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ReplaceChain swaps the stored chain for the supplied one and rebuilds the
// item and transfer projections from scratch, all in one transaction.
func (s *SQLite) ReplaceChain(blocks []types.Block, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}

	for _, table := range []string{"transfers", "items", "blocks"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			tx.Rollback()
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	for _, b := range blocks {
		if err := insertBlock(tx, b, nodeID); err != nil {
			tx.Rollback()
			return err
		}
		if err := applyProjections(tx, b); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func insertBlock(tx *sql.Tx, b types.Block, nodeID string) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO blocks
		(index_num, timestamp, payload, previous_hash, nonce, hash, node_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Index, b.Timestamp, string(b.Payload), b.PreviousHash, b.Nonce, b.Hash, nodeID)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Index, err)
	}
	return nil
}

// applyProjections updates the items and transfers tables for one block.
// Transfer rows for the block index are cleared first so a re-applied block
// does not double-count its transfers.
func applyProjections(tx *sql.Tx, b types.Block) error {
	if b.Index == 0 {
		return nil
	}

	if _, err := tx.Exec(`DELETE FROM transfers WHERE block_index = ?`, b.Index); err != nil {
		return fmt.Errorf("clear transfers for block %d: %w", b.Index, err)
	}

	txs, ok := types.Transactions(b.Payload)
	if !ok {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range txs {
		switch t.Type {
		case types.TxCreation:
			_, err := tx.Exec(`INSERT OR REPLACE INTO items
				(item_id, description, item_type, content_hash, created_by, created_at,
				 current_custodian, current_location, last_action, last_updated, block_index)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ItemID, t.Description, t.ItemType, t.ContentHash, t.Actor, t.Timestamp,
				t.Actor, t.Location, types.ActionCreated, now, b.Index)
			if err != nil {
				return fmt.Errorf("project creation of %s: %w", t.ItemID, err)
			}
		case types.TxTransfer:
			_, err := tx.Exec(`UPDATE items
				SET current_custodian = ?, last_action = ?, last_updated = ?, block_index = ?
				WHERE item_id = ?`,
				t.ToActor, types.ActionTransferred, t.Timestamp, b.Index, t.ItemID)
			if err != nil {
				return fmt.Errorf("project transfer of %s: %w", t.ItemID, err)
			}

			_, err = tx.Exec(`INSERT INTO transfers
				(item_id, from_actor, to_actor, reason, timestamp, block_index)
				VALUES (?, ?, ?, ?, ?, ?)`,
				t.ItemID, t.FromActor, t.ToActor, t.Reason, t.Timestamp, b.Index)
			if err != nil {
				return fmt.Errorf("record transfer of %s: %w", t.ItemID, err)
			}
		}
	}
	return nil
}

// LoadChain returns all persisted blocks ordered by index.
func (s *SQLite) LoadChain() ([]types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT index_num, timestamp, payload, previous_hash, nonce, hash
		FROM blocks ORDER BY index_num`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []types.Block
	for rows.Next() {
		var b types.Block
		var payload string
		if err := rows.Scan(&b.Index, &b.Timestamp, &payload, &b.PreviousHash, &b.Nonce, &b.Hash); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.Payload = json.RawMessage(payload)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// QueryItem returns the projection row for one item.
func (s *SQLite) QueryItem(itemID string) (*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT item_id, description, item_type, content_hash, created_by,
		created_at, current_custodian, current_location, last_action, block_index
		FROM items WHERE item_id = ?`, itemID)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// QueryAllItems returns every projection row, most recently created first.
func (s *SQLite) QueryAllItems() ([]types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT item_id, description, item_type, content_hash, created_by,
		created_at, current_custodian, current_location, last_action, block_index
		FROM items ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []types.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// QueryItemHistory walks the block table for every transaction touching one
// item. A LIKE prefilter on the payload text narrows the scan before the
// payload is decoded and the item id confirmed.
func (s *SQLite) QueryItemHistory(itemID string) ([]types.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT index_num, payload FROM blocks
		WHERE payload LIKE ? ORDER BY index_num`, "%"+itemID+"%")
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []types.HistoryEntry{}
	for rows.Next() {
		var index int64
		var payload string
		if err := rows.Scan(&index, &payload); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		txs, ok := types.Transactions(json.RawMessage(payload))
		if !ok {
			continue
		}
		for _, t := range txs {
			if t.ItemID == itemID {
				history = append(history, types.HistoryEntry{BlockIndex: index, Transaction: t})
			}
		}
	}
	return history, rows.Err()
}

// QueryTransfers returns the transfer-log rows for one item, newest first.
func (s *SQLite) QueryTransfers(itemID string) ([]types.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, item_id, from_actor, to_actor, reason, timestamp, block_index
		FROM transfers WHERE item_id = ? ORDER BY timestamp DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	transfers := []types.Transfer{}
	for rows.Next() {
		var t types.Transfer
		if err := rows.Scan(&t.ID, &t.ItemID, &t.FromActor, &t.ToActor, &t.Reason, &t.Timestamp, &t.BlockIndex); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// UpdateNodeInfo records the node's last-active time and chain length.
func (s *SQLite) UpdateNodeInfo(nodeID string, chainLength int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO node_info (node_id, last_active, chain_length)
		VALUES (?, CURRENT_TIMESTAMP, ?)`, nodeID, chainLength)
	if err != nil {
		return fmt.Errorf("update node info: %w", err)
	}
	return nil
}

// Stats reports row counts and the database file size.
func (s *SQLite) Stats() (types.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats types.StoreStats
	counts := []struct {
		table string
		dest  *int64
	}{
		{"blocks", &stats.Blocks},
		{"items", &stats.Items},
		{"transfers", &stats.Transfers},
	}
	for _, c := range counts {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest); err != nil {
			return types.StoreStats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	if info, err := os.Stat(s.file); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// Backup snapshots the database into a timestamped file under the backups
// directory using VACUUM INTO, then prunes old snapshots.
func (s *SQLite) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.file); errors.Is(err, os.ErrNotExist) {
		return "", ErrNoBackup
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backup directory: %w", err)
	}

	base := filepath.Base(s.file)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext)
	if prefix == "" {
		prefix = base
	}

	timestamp := time.Now().Unix()
	var backupPath string
	for {
		name := fmt.Sprintf("%s-%d%s", prefix, timestamp, ext)
		backupPath = filepath.Join(s.backupDir, name)
		if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		timestamp++
	}

	escaped := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		return "", fmt.Errorf("vacuum into backup: %w", err)
	}

	pruneBackups(s.backupDir, prefix, ext, defaultMaxBackups)

	return backupPath, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (types.Item, error) {
	var (
		id, description, itemType, contentHash sql.NullString
		createdBy, createdAt                   sql.NullString
		custodian, location, lastAction        sql.NullString
		blockIndex                             sql.NullInt64
	)

	if err := scanner.Scan(
		&id, &description, &itemType, &contentHash, &createdBy,
		&createdAt, &custodian, &location, &lastAction, &blockIndex,
	); err != nil {
		return types.Item{}, err
	}

	return types.Item{
		ItemID:           id.String,
		Description:      description.String,
		ItemType:         itemType.String,
		ContentHash:      contentHash.String,
		CreatedBy:        createdBy.String,
		CreatedAt:        createdAt.String,
		CurrentCustodian: custodian.String,
		CurrentLocation:  location.String,
		LastAction:       lastAction.String,
		BlockIndex:       blockIndex.Int64,
	}, nil
}

func pruneBackups(dir, prefix, ext string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []backupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if ext != "" && !strings.HasSuffix(name, ext) {
			continue
		}

		stem := name
		if ext != "" {
			stem = strings.TrimSuffix(stem, ext)
		}
		tsPart := strings.TrimPrefix(stem, prefix+"-")
		ts, err := strconv.ParseInt(tsPart, 10, 64)
		if err != nil {
			info, statErr := entry.Info()
			if statErr != nil {
				continue
			}
			ts = info.ModTime().Unix()
		}

		backups = append(backups, backupInfo{
			path:      filepath.Join(dir, name),
			timestamp: ts,
		})
	}

	if len(backups) <= maxBackups {
		return
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].timestamp == backups[j].timestamp {
			return backups[i].path < backups[j].path
		}
		return backups[i].timestamp < backups[j].timestamp
	})

	for i := 0; i < len(backups)-maxBackups; i++ {
		_ = os.Remove(backups[i].path)
	}
}
