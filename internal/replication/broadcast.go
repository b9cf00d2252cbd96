package replication

import (
	"context"
	"fmt"
	"sync"

	"custodia.network/ctd/internal/logger"
	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/types"
)

// Broadcaster delivers newly sealed transactions to every registered peer.
// Delivery is fire-and-forget: one goroutine per peer, failures logged and
// otherwise ignored, no retries, no acknowledgement. Broadcast equalizes
// content across nodes; reconciliation equalizes chain shape.
type Broadcaster struct {
	client   *Client
	registry *peers.Registry
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(client *Client, registry *peers.Registry, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		client:   client,
		registry: registry,
		log:      log,
	}
}

// Broadcast fans the transaction out to all known peers and returns
// immediately. A slow or dead peer only delays its own delivery goroutine.
func (b *Broadcaster) Broadcast(tx types.Transaction) {
	for _, peer := range b.registry.List() {
		b.wg.Add(1)
		go func(peerURL string) {
			defer b.wg.Done()

			if err := b.client.SendTransaction(context.Background(), peerURL, tx); err != nil {
				b.registry.MarkUnreachable(peerURL)
				b.log.Error(fmt.Sprintf("Broadcast to %s failed: %v", peerURL, err))
				return
			}
			b.registry.MarkSeen(peerURL)
			b.log.Info(fmt.Sprintf("Broadcast transaction for %s to %s", tx.ItemID, peerURL))
		}(peer)
	}
}

// Wait blocks until all in-flight deliveries finish. Used by shutdown and
// tests; the request path never calls it.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
