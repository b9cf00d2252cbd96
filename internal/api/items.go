package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"custodia.network/ctd/internal/ledger"
	"custodia.network/ctd/internal/store"
)

// @Title: Items
// @Route: GET /items
// @Description: POST records a new tracked item and broadcasts it; GET lists the item projection
// @Response: POST {"success": true, "block": Block, "transaction": Transaction}; GET {"items": [...], "count": N}
func (s *Service) HandleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.store.QueryAllItems()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query items: %v", err))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	case http.MethodPost:
		var req ledger.CreationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		block, tx, err := s.ledger.SubmitCreation(req)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Info(fmt.Sprintf("Recorded item %s in block %d", tx.ItemID, block.Index))
		s.broadcaster.Broadcast(tx)

		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"block":       block,
			"transaction": tx,
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// @Title: Get Item
// @Route: GET /items/{id}
// @Description: Current projection row for one item
// @Response: Item object
func (s *Service) HandleItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	item, err := s.store.QueryItem(itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Item not found: %s", itemID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query item: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, item)
}

// @Title: Item History
// @Route: GET /items/{id}/history
// @Description: Every transaction touching one item, in chain order
// @Response: {"item_id": "...", "history": [...]}
func (s *Service) HandleItemHistory(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	history, err := s.store.QueryItemHistory(itemID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query history: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"item_id": itemID,
		"history": history,
	})
}

// @Title: Item Transfers
// @Route: GET /items/{id}/transfers
// @Description: Transfer-log rows for one item, newest first
// @Response: {"item_id": "...", "transfers": [...], "count": N}
func (s *Service) HandleItemTransfers(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	transfers, err := s.store.QueryTransfers(itemID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query transfers: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"item_id":   itemID,
		"transfers": transfers,
		"count":     len(transfers),
	})
}

// @Title: Transfer Item
// @Route: POST /transfers
// @Description: Records a custody handover and broadcasts it
// @Response: {"success": true, "block": Block, "transaction": Transaction}
func (s *Service) HandleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ledger.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	block, tx, err := s.ledger.SubmitTransfer(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info(fmt.Sprintf("Transferred item %s from %s to %s in block %d", tx.ItemID, tx.FromActor, tx.ToActor, block.Index))
	s.broadcaster.Broadcast(tx)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"block":       block,
		"transaction": tx,
	})
}
