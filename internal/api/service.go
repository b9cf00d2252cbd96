// Package api exposes the node's operations over HTTP+JSON: the peer wire
// protocol (chain fetch, transaction receive, peer registration, sync) and
// the caller-facing custody surface (item creation, transfer, history).
package api

import (
	"encoding/json"
	"net/http"

	"custodia.network/ctd/internal/ledger"
	"custodia.network/ctd/internal/logger"
	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/replication"
	"custodia.network/ctd/internal/store"
)

// Options carries the collaborators a Service needs.
type Options struct {
	Ledger      *ledger.Ledger
	Store       store.Store
	Registry    *peers.Registry
	Broadcaster *replication.Broadcaster
	Reconciler  *replication.Reconciler
	Client      *replication.Client
	Logger      *logger.Logger
	NodeName    string
	Port        int
	SelfURL     string
}

// Service handles API requests.
type Service struct {
	ledger      *ledger.Ledger
	store       store.Store
	registry    *peers.Registry
	broadcaster *replication.Broadcaster
	reconciler  *replication.Reconciler
	client      *replication.Client
	logger      *logger.Logger
	nodeName    string
	port        int
	selfURL     string
	broker      *wsBroker
}

// NewService creates a new API service and starts the block-event fan-out.
func NewService(opts Options) *Service {
	s := &Service{
		ledger:      opts.Ledger,
		store:       opts.Store,
		registry:    opts.Registry,
		broadcaster: opts.Broadcaster,
		reconciler:  opts.Reconciler,
		client:      opts.Client,
		logger:      opts.Logger,
		nodeName:    opts.NodeName,
		port:        opts.Port,
		selfURL:     opts.SelfURL,
		broker:      newWSBroker(),
	}

	go s.watchLedgerUpdates()

	return s
}

// Routes returns the mux serving the full HTTP surface.
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ping", s.HandlePing)
	mux.HandleFunc("/node/info", s.HandleNodeInfo)
	mux.HandleFunc("/chain", s.HandleChain)
	mux.HandleFunc("/blocks", s.HandleBlocks)
	mux.HandleFunc("/validate", s.HandleValidate)

	mux.HandleFunc("/items", s.HandleItems)
	mux.HandleFunc("/items/{id}", s.HandleItem)
	mux.HandleFunc("/items/{id}/history", s.HandleItemHistory)
	mux.HandleFunc("/items/{id}/transfers", s.HandleItemTransfers)
	mux.HandleFunc("/transfers", s.HandleTransfers)

	mux.HandleFunc("/transaction/receive", s.HandleReceiveTransaction)
	mux.HandleFunc("/peers", s.HandlePeers)
	mux.HandleFunc("/peers/add", s.HandleAddPeer)
	mux.HandleFunc("/sync", s.HandleSync)

	mux.HandleFunc("/stats", s.HandleStats)
	mux.HandleFunc("/log", s.HandleLog)
	mux.HandleFunc("/events", s.HandleEvents)
	mux.HandleFunc("/admin/backup", s.HandleBackup)

	return mux
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
