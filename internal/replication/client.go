// Package replication implements the peer protocol: best-effort transaction
// broadcast to every registered peer and longest-chain reconciliation. All
// peer I/O runs off the request path serving local writes, and every
// outbound call carries a bounded timeout so an unreachable peer degrades to
// a logged skip, never a stall.
package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"custodia.network/ctd/internal/types"
)

const defaultTimeout = 5 * time.Second

// ChainResponse is a peer's answer to a full-chain fetch.
type ChainResponse struct {
	Length int           `json:"length"`
	Chain  []types.Block `json:"chain"`
}

// Client speaks the HTTP+JSON peer protocol with a bounded per-call timeout.
type Client struct {
	http *http.Client
}

// NewClient creates a peer client. A non-positive timeout falls back to the
// default.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Ping checks a peer's liveness and returns its node id.
func (c *Client) Ping(ctx context.Context, peerURL string) (string, error) {
	var resp struct {
		Status string `json:"status"`
		NodeID string `json:"node_id"`
	}
	if err := c.getJSON(ctx, peerURL+"/ping", &resp); err != nil {
		return "", err
	}
	return resp.NodeID, nil
}

// FetchChain retrieves a peer's full chain and its length.
func (c *Client) FetchChain(ctx context.Context, peerURL string) (ChainResponse, error) {
	var resp ChainResponse
	if err := c.getJSON(ctx, peerURL+"/chain", &resp); err != nil {
		return ChainResponse{}, err
	}
	return resp, nil
}

// SendTransaction delivers one transaction to a peer's receive endpoint.
func (c *Client) SendTransaction(ctx context.Context, peerURL string, tx types.Transaction) error {
	body := map[string]types.Transaction{"transaction": tx}
	return c.postJSON(ctx, peerURL+"/transaction/receive", body)
}

// RegisterSelf asks a peer to add selfURL to its registry, completing the
// mutual registration that makes the relationship bidirectional.
func (c *Client) RegisterSelf(ctx context.Context, peerURL, selfURL string) error {
	body := map[string]string{"peer_url": selfURL}
	return c.postJSON(ctx, peerURL+"/peers/add", body)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", url, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
