package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"custodia.network/ctd/internal/store"
)

// @Title: Store Stats
// @Route: GET /stats
// @Description: Row counts and database size for this node's store
// @Response: {"blocks": N, "items": N, "transfers": N, "size_bytes": N}
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read stats: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// @Title: Recent Log
// @Route: GET /log?n=50
// @Description: Most recent in-memory log messages, newest first
// @Response: {"messages": [...]}
func (s *Service) HandleLog(w http.ResponseWriter, r *http.Request) {
	n := 50
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": s.logger.GetRecent(n)})
}

// @Title: Backup Store
// @Route: POST /admin/backup
// @Description: Snapshots the database to a timestamped backup file
// @Response: {"status": "ok", "path": "..."}
func (s *Service) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, err := s.store.Backup()
	if err != nil {
		if errors.Is(err, store.ErrNoBackup) {
			s.writeError(w, http.StatusConflict, "Store has no database to back up")
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Backup failed: %v", err))
		return
	}

	s.logger.Info(fmt.Sprintf("Database backed up to %s", path))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}
