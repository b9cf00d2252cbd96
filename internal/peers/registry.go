// Package peers tracks the set of collaborating node addresses. The registry
// is the single source the replication layer fans out to; peers are added by
// the API, by mDNS discovery, or by mutual registration from a remote node.
package peers

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Peer is one known collaborating node.
type Peer struct {
	URL      string    `json:"url"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// Registry is a thread-safe set of peer base URLs.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Normalize canonicalizes a peer URL so the same node never registers twice
// under trailing-slash or whitespace variants.
func Normalize(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Add registers a peer URL. Returns false when the peer was already known or
// the URL is empty.
func (r *Registry) Add(rawURL string) bool {
	url := Normalize(rawURL)
	if url == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.peers[url]; known {
		return false
	}
	r.peers[url] = &Peer{URL: url}
	return true
}

// Remove drops a peer from the registry.
func (r *Registry) Remove(rawURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, Normalize(rawURL))
}

// Contains reports whether a peer URL is registered.
func (r *Registry) Contains(rawURL string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, known := r.peers[Normalize(rawURL)]
	return known
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// List returns the registered peer URLs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]string, 0, len(r.peers))
	for url := range r.peers {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Snapshot returns a copy of every peer with its liveness bookkeeping,
// sorted by URL.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// MarkSeen records a successful contact with a peer.
func (r *Registry) MarkSeen(rawURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, known := r.peers[Normalize(rawURL)]; known {
		p.Online = true
		p.LastSeen = time.Now()
	}
}

// MarkUnreachable records a failed contact with a peer. The peer stays
// registered; unreachable peers are skipped, not forgotten.
func (r *Registry) MarkUnreachable(rawURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, known := r.peers[Normalize(rawURL)]; known {
		p.Online = false
	}
}
