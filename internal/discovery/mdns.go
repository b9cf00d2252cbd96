// Package discovery implements local network discovery using mDNS (zeroconf).
// It announces the local _ctd._tcp service and browses for other ctd
// instances on the LAN. Each discovered peer is reported as an http base URL
// so the node can add it to the peer registry and register itself back.
package discovery

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/grandcat/zeroconf"
)

// Service handles the mDNS registration and browsing.
type Service struct {
	serviceName string
	nodeID      string
	resolver    *zeroconf.Resolver
	server      *zeroconf.Server
	cancel      context.CancelFunc

	// OnPeer is called with the base URL of each discovered peer. Set
	// before Start.
	OnPeer func(url string)
}

// NewService creates a new mDNS discovery service.
func NewService(serviceName, nodeID string) (*Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	return &Service{
		serviceName: serviceName,
		nodeID:      nodeID,
		resolver:    resolver,
	}, nil
}

// Start announces the local service and begins browsing for remote services.
func (s *Service) Start(port int) error {
	hostname, _ := os.Hostname()
	instance := fmt.Sprintf("%s-%s", hostname, s.nodeID)

	server, err := zeroconf.Register(instance, s.serviceName, "local.", port, []string{"node=" + s.nodeID}, nil)
	if err != nil {
		return err
	}
	s.server = server
	log.Printf("mDNS: Announced service %s on the network from host %s", s.serviceName, hostname)

	go s.browseForPeers()

	return nil
}

func (s *Service) browseForPeers() {
	entries := make(chan *zeroconf.ServiceEntry)
	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			if entry.TTL == 0 {
				log.Printf("mDNS: Peer gone: %s", entry.Instance)
				continue
			}
			if s.isSelf(entry) {
				continue
			}
			if len(entry.AddrIPv4) == 0 {
				log.Printf("mDNS: Peer discovered: %s (no addr yet:%d)", entry.Instance, entry.Port)
				continue
			}

			url := fmt.Sprintf("http://%s:%d", entry.AddrIPv4[0], entry.Port)
			log.Printf("mDNS: Peer discovered: %s (%s)", entry.Instance, url)
			if s.OnPeer != nil {
				s.OnPeer(url)
			}
		}
	}(entries)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	log.Println("mDNS: Browsing for other peers...")
	if err := s.resolver.Browse(ctx, s.serviceName, "local.", entries); err != nil {
		log.Printf("ERROR: Failed to browse for mDNS services: %v", err)
	}
	<-ctx.Done()
	log.Println("mDNS: Peer browsing stopped.")
}

// isSelf filters out our own announcement from browse results.
func (s *Service) isSelf(entry *zeroconf.ServiceEntry) bool {
	for _, txt := range entry.Text {
		if txt == "node="+s.nodeID {
			return true
		}
	}
	return false
}

// Stop gracefully shuts down the mDNS service.
func (s *Service) Stop() {
	log.Println("mDNS: Stopping service discovery...")
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		s.server.Shutdown()
	}
}
