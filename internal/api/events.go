package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsBroker fans sealed and adopted blocks out to websocket subscribers.
// Sends are non-blocking: a subscriber that falls behind drops events rather
// than stalling the ledger watch loop.
type wsBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func newWSBroker() *wsBroker {
	return &wsBroker{
		clients: make(map[chan []byte]struct{}),
	}
}

func (b *wsBroker) register(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
}

func (b *wsBroker) unregister(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
}

func (b *wsBroker) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		select {
		case client <- data:
		default:
		}
	}
}

// watchLedgerUpdates pushes the latest block to every subscriber whenever
// the chain gains a block or is replaced.
func (s *Service) watchLedgerUpdates() {
	for range s.ledger.Updates() {
		event := map[string]any{
			"chain_length": s.ledger.Length(),
			"latest_block": s.ledger.Latest(),
		}
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		s.broker.broadcast(data)
	}
}

// @Title: Block Events
// @Route: GET /events
// @Description: Websocket feed; pushes the latest block on every chain mutation
// @Response: {"chain_length": N, "latest_block": Block} per event
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	clientChan := make(chan []byte, 8)
	s.broker.register(clientChan)
	defer s.broker.unregister(clientChan)

	// Drain inbound frames so close handshakes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-clientChan:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
