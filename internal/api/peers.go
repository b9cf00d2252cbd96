package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/types"
)

// @Title: Receive Transaction
// @Route: POST /transaction/receive
// @Description: Inbound peer broadcast; seals the transaction into a local block
// @Response: {"status": "Transaction received"}
func (s *Service) HandleReceiveTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Transaction types.Transaction `json:"transaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Seals a block of our own for the peer's transaction. The chains
	// diverge by one block until the next reconciliation pass.
	block, err := s.ledger.Submit(req.Transaction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info(fmt.Sprintf("Received transaction for %s from %s, sealed block %d", req.Transaction.ItemID, req.Transaction.Node, block.Index))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "Transaction received"})
}

// @Title: List Peers
// @Route: GET /peers
// @Description: Registered peer URLs with liveness info
// @Response: {"peers": [url...], "count": N, "detail": [...]}
func (s *Service) HandlePeers(w http.ResponseWriter, r *http.Request) {
	urls := s.registry.List()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"peers":  urls,
		"count":  len(urls),
		"detail": s.registry.Snapshot(),
	})
}

// @Title: Register Peer
// @Route: POST /peers/add
// @Description: Adds a peer URL and registers this node back with it
// @Response: {"peers": [url...]}
func (s *Service) HandleAddPeer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		PeerURL string `json:"peer_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	peerURL := peers.Normalize(req.PeerURL)
	if peerURL == "" {
		s.writeError(w, http.StatusBadRequest, "Missing peer_url")
		return
	}

	if s.registry.Add(peerURL) {
		s.logger.Info(fmt.Sprintf("Added peer: %s", peerURL))

		// Mutual registration, so the relationship is bidirectional even
		// when only one side was told about the other. Best-effort; the
		// peer may be mid-boot.
		if s.selfURL != "" && peerURL != s.selfURL {
			go func() {
				if err := s.client.RegisterSelf(context.Background(), peerURL, s.selfURL); err != nil {
					s.logger.Warning(fmt.Sprintf("Mutual registration with %s failed: %v", peerURL, err))
				}
			}()
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"peers": s.registry.List()})
}

// @Title: Sync
// @Route: POST /sync
// @Description: Runs one longest-chain reconciliation pass against all peers
// @Response: {"message": "...", "synced": bool, "new_length": N}
func (s *Service) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.reconciler.Reconcile(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	if result.Adopted {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"message":    "Chain synchronized",
			"synced":     true,
			"new_length": result.NewLength,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Chain is up to date",
		"synced":  false,
	})
}
