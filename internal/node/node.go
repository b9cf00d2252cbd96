// Package node wires one ctd process together: store, ledger, peer
// registry, replication, HTTP API, the periodic sync timer and optional
// mDNS discovery. It owns process lifecycle; the packages it wires own the
// behavior.
package node

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"custodia.network/ctd/internal/api"
	"custodia.network/ctd/internal/config"
	"custodia.network/ctd/internal/discovery"
	"custodia.network/ctd/internal/ledger"
	"custodia.network/ctd/internal/logger"
	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/replication"
	"custodia.network/ctd/internal/store"
)

// Node is one running ctd instance.
type Node struct {
	cfg      *config.Config
	nodeID   string
	store    store.Store
	ledger   *ledger.Ledger
	registry *peers.Registry
	client   *replication.Client
	logger   *logger.Logger

	reconciler *replication.Reconciler
	mdns       *discovery.Service
	listener   net.Listener
	server     *http.Server
	stop       chan struct{}
}

// New builds a node from its configuration. The store opens and the ledger
// loads (or creates genesis) here; nothing listens until Start.
func New(cfg *config.Config, nodeID string, st store.Store) (*Node, error) {
	l, err := ledger.New(nodeID, st)
	if err != nil {
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}

	n := &Node{
		cfg:      cfg,
		nodeID:   nodeID,
		store:    st,
		ledger:   l,
		registry: peers.NewRegistry(),
		client:   replication.NewClient(time.Duration(cfg.PeerTimeoutSec) * time.Second),
		logger:   logger.New(cfg.LogBufferSize),
		stop:     make(chan struct{}),
	}

	policy := replication.AdoptLongest
	if cfg.ValidateOnAdopt {
		policy = replication.AdoptValidated
	}
	n.reconciler = replication.NewReconciler(l, n.registry, n.client, policy, n.logger)

	return n, nil
}

// Ledger exposes the node's ledger, mainly for tests.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Registry exposes the node's peer registry, mainly for tests.
func (n *Node) Registry() *peers.Registry {
	return n.registry
}

// Addr returns the bound listen address, valid after Start. Lets tests run
// nodes on port 0.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// URL returns the base URL this node advertises to peers.
func (n *Node) URL() string {
	if n.cfg.AdvertiseURL != "" {
		return peers.Normalize(n.cfg.AdvertiseURL)
	}
	return fmt.Sprintf("http://127.0.0.1:%d", n.boundPort())
}

func (n *Node) boundPort() int {
	if n.listener != nil {
		if addr, ok := n.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return n.cfg.Port
}

// Start binds the listener, serves the API, and launches the sync timer,
// seed-peer join and optional mDNS discovery.
func (n *Node) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind port %d: %w", n.cfg.Port, err)
	}
	n.listener = listener

	broadcaster := replication.NewBroadcaster(n.client, n.registry, n.logger)

	svc := api.NewService(api.Options{
		Ledger:      n.ledger,
		Store:       n.store,
		Registry:    n.registry,
		Broadcaster: broadcaster,
		Reconciler:  n.reconciler,
		Client:      n.client,
		Logger:      n.logger,
		NodeName:    n.cfg.NodeName,
		Port:        n.boundPort(),
		SelfURL:     n.URL(),
	})

	n.server = &http.Server{Handler: svc.Routes()}
	go func() {
		if err := n.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: API server exited: %v", err)
		}
	}()
	log.Printf("Node %s listening on %s", n.nodeID, listener.Addr())

	go n.runSyncTimer()
	go n.joinSeedPeers()

	if n.cfg.EnableMDNS {
		mdns, err := discovery.NewService(n.cfg.MDNSServiceName, n.nodeID)
		if err != nil {
			log.Printf("Warning: mDNS unavailable: %v", err)
		} else {
			mdns.OnPeer = func(url string) {
				if n.registry.Add(url) {
					n.logger.Info(fmt.Sprintf("Discovered peer via mDNS: %s", url))
					if err := n.client.RegisterSelf(context.Background(), url, n.URL()); err != nil {
						n.logger.Warning(fmt.Sprintf("Mutual registration with %s failed: %v", url, err))
					}
				}
			}
			if err := mdns.Start(n.boundPort()); err != nil {
				log.Printf("Warning: mDNS announce failed: %v", err)
			} else {
				n.mdns = mdns
			}
		}
	}

	return nil
}

// runSyncTimer reconciles against all peers on a fixed interval, off the
// request path so a slow peer cannot stall local submissions.
func (n *Node) runSyncTimer() {
	interval := time.Duration(n.cfg.SyncIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n.registry.Len() == 0 {
				continue
			}
			if _, err := n.reconciler.Reconcile(context.Background()); err != nil {
				n.logger.Error(fmt.Sprintf("Periodic sync failed: %v", err))
			}
		case <-n.stop:
			return
		}
	}
}

// joinSeedPeers connects to each configured seed with capped exponential
// backoff; seeds are often booting at the same time this node is.
func (n *Node) joinSeedPeers() {
	for _, seed := range n.cfg.SeedPeers {
		seedURL := peers.Normalize(seed)
		if seedURL == "" || seedURL == n.URL() {
			continue
		}

		go func(url string) {
			policy := backoff.NewExponentialBackOff()
			policy.MaxElapsedTime = 2 * time.Minute

			err := backoff.Retry(func() error {
				_, err := n.client.Ping(context.Background(), url)
				return err
			}, policy)
			if err != nil {
				n.logger.Error(fmt.Sprintf("Giving up on seed peer %s: %v", url, err))
				return
			}

			n.registry.Add(url)
			n.registry.MarkSeen(url)
			if err := n.client.RegisterSelf(context.Background(), url, n.URL()); err != nil {
				n.logger.Warning(fmt.Sprintf("Mutual registration with %s failed: %v", url, err))
			}
			n.logger.Info(fmt.Sprintf("Connected to seed peer: %s", url))
		}(seedURL)
	}
}

// Stop shuts the node down cleanly.
func (n *Node) Stop() {
	close(n.stop)

	if n.mdns != nil {
		n.mdns.Stop()
	}
	if n.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.server.Shutdown(ctx)
	}
	if err := n.store.Close(); err != nil {
		log.Printf("Warning: closing store: %v", err)
	}
}
