// Package identity handles loading, generating, and persisting node
// identifiers. Each ctd instance keeps a stable id of the form node-<uuid>
// in a small file; the id is stamped on every transaction the node
// originates and reported over the peer protocol.
package identity

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateID loads an existing node id or creates a new one at the given
// path. An existing but empty file is treated as missing and regenerated.
// The file is written with 0600 permissions.
func LoadOrCreateID(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return generateAndSaveID(path)
	}
	if err != nil {
		return "", fmt.Errorf("stat id file: %w", err)
	}

	if info.Size() == 0 {
		return generateAndSaveID(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read id file: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return generateAndSaveID(path)
	}
	return id, nil
}

func generateAndSaveID(path string) (string, error) {
	id := NewID()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write id file: %w", err)
	}
	return id, nil
}

// NewID generates a fresh node identifier without persisting it.
func NewID() string {
	return "node-" + uuid.New().String()
}
