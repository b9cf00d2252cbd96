package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"custodia.network/ctd/internal/types"
)

// BlockDigest computes the canonical SHA-256 digest of a block's contents.
// The digest covers index, timestamp, payload, previous_hash and nonce,
// serialized as a single JSON object with sorted keys. The payload is first
// decoded to generic values so nested object keys sort too; number literals
// are kept verbatim so re-encoding cannot drift. Recomputing the digest from
// a block that round-tripped through the wire or the block table yields the
// same string.
func BlockDigest(b types.Block) (string, error) {
	var payload any
	dec := json.NewDecoder(bytes.NewReader(b.Payload))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("decode block payload: %w", err)
	}

	canonical, err := json.Marshal(map[string]any{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"payload":       payload,
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
	})
	if err != nil {
		return "", fmt.Errorf("serialize block for hashing: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ContentHash derives a content hash for an item when the caller did not
// supply one, from the item id, description and the current time.
func ContentHash(itemID, description string) string {
	content := fmt.Sprintf("%s%s%d", itemID, description, time.Now().UnixNano())
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
