package api

import (
	"net/http"
)

// @Title: Ping
// @Route: GET /ping
// @Description: Liveness probe; returns this node's identifier
// @Response: {"status": "online", "node_id": "..."}
func (s *Service) HandlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"node_id": s.ledger.NodeID(),
	})
}

// @Title: Node Info
// @Route: GET /node/info
// @Description: Node identity, name, port and current chain length
// @Response: {"node_id": "...", "node_name": "...", "port": N, "chain_length": N}
func (s *Service) HandleNodeInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"node_id":      s.ledger.NodeID(),
		"node_name":    s.nodeName,
		"port":         s.port,
		"chain_length": s.ledger.Length(),
	})
}

// @Title: Fetch Chain
// @Route: GET /chain
// @Description: The full chain and its length, as consumed by peer reconciliation
// @Response: {"length": N, "chain": [Block...]}
func (s *Service) HandleChain(w http.ResponseWriter, r *http.Request) {
	chain := s.ledger.Chain()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"length": len(chain),
		"chain":  chain,
	})
}

// @Title: Fetch Blocks
// @Route: GET /blocks
// @Description: All blocks with a count
// @Response: {"blocks": [Block...], "count": N}
func (s *Service) HandleBlocks(w http.ResponseWriter, r *http.Request) {
	chain := s.ledger.Chain()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"blocks": chain,
		"count":  len(chain),
	})
}

// @Title: Validate Chain
// @Route: GET /validate
// @Description: Recompute every digest and check hash linkage
// @Response: {"valid": bool, "chain_length": N}
func (s *Service) HandleValidate(w http.ResponseWriter, r *http.Request) {
	valid := s.ledger.ValidateChain()
	if !valid {
		s.logger.Warning("Chain validation failed")
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid":        valid,
		"chain_length": s.ledger.Length(),
	})
}
