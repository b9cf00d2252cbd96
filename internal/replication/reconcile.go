package replication

import (
	"context"
	"fmt"

	"custodia.network/ctd/internal/ledger"
	"custodia.network/ctd/internal/logger"
	"custodia.network/ctd/internal/peers"
	"custodia.network/ctd/internal/types"
)

// AdoptPolicy decides whether a strictly longer candidate chain may replace
// the local one. A nil return adopts the candidate. The policy is the single
// seam between trust-the-peer and verify-the-peer reconciliation modes.
type AdoptPolicy func(candidate []types.Block) error

// AdoptLongest accepts any strictly longer chain without inspecting it. This
// mirrors the permissioned-network trust assumption: peers are honest, so
// length alone picks the richer history.
func AdoptLongest(candidate []types.Block) error {
	return nil
}

// AdoptValidated recomputes every digest and checks hash linkage before
// allowing adoption.
func AdoptValidated(candidate []types.Block) error {
	for i := 1; i < len(candidate); i++ {
		current := candidate[i]

		digest, err := ledger.BlockDigest(current)
		if err != nil {
			return fmt.Errorf("block %d: %w", current.Index, err)
		}
		if current.Hash != digest {
			return fmt.Errorf("block %d: stored hash does not match recomputed digest", current.Index)
		}
		if current.PreviousHash != candidate[i-1].Hash {
			return fmt.Errorf("block %d: broken link to block %d", current.Index, current.Index-1)
		}
	}
	return nil
}

// Result reports the outcome of one reconciliation pass.
type Result struct {
	Adopted   bool
	NewLength int
	Source    string
}

// Reconciler runs longest-chain reconciliation against the peer registry.
type Reconciler struct {
	ledger   *ledger.Ledger
	registry *peers.Registry
	client   *Client
	policy   AdoptPolicy
	log      *logger.Logger
}

// NewReconciler creates a reconciler. A nil policy defaults to AdoptLongest.
func NewReconciler(l *ledger.Ledger, registry *peers.Registry, client *Client, policy AdoptPolicy, log *logger.Logger) *Reconciler {
	if policy == nil {
		policy = AdoptLongest
	}
	return &Reconciler{
		ledger:   l,
		registry: registry,
		client:   client,
		policy:   policy,
		log:      log,
	}
}

// Reconcile fetches every peer's chain and adopts the strictly longest one
// found. Ties keep the local chain. An unreachable peer is logged and
// skipped; only a failure to persist an adopted chain is returned as an
// error.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	maxLength := r.ledger.Length()

	var candidate []types.Block
	var source string

	for _, peer := range r.registry.List() {
		resp, err := r.client.FetchChain(ctx, peer)
		if err != nil {
			r.registry.MarkUnreachable(peer)
			r.log.Error(fmt.Sprintf("Sync with %s failed: %v", peer, err))
			continue
		}
		r.registry.MarkSeen(peer)

		if resp.Length > maxLength && len(resp.Chain) == resp.Length {
			maxLength = resp.Length
			candidate = resp.Chain
			source = peer
		}
	}

	if candidate == nil {
		return Result{NewLength: r.ledger.Length()}, nil
	}

	if err := r.policy(candidate); err != nil {
		r.log.Warning(fmt.Sprintf("Rejected chain from %s: %v", source, err))
		return Result{NewLength: r.ledger.Length()}, nil
	}

	if err := r.ledger.ReplaceChain(candidate); err != nil {
		return Result{NewLength: r.ledger.Length()}, err
	}

	r.log.Info(fmt.Sprintf("Adopted chain of length %d from %s", maxLength, source))
	return Result{Adopted: true, NewLength: maxLength, Source: source}, nil
}
