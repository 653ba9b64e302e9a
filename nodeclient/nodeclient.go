// Package nodeclient is a stateless REST client bound to one node's
// base URL. Every call shares a single http.Client with a fixed
// per-request timeout; a network failure, non-200 status, or
// malformed body all surface as the same NodeError kind — the sync
// loop retries at the batch level, not per error class.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/utxobox/indexer/chainmodel"
)

const requestTimeout = 30 * time.Second

// NodeError wraps any failure talking to a node: transport, status,
// or decode. Callers that need to distinguish "this node is down"
// from "programmer error" should check for it with errors.As.
type NodeError struct {
	URL string
	Op  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("nodeclient: %s %s: %s", e.Op, e.URL, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Client is immutable after construction, cheap to share across
// concurrent fetches; each caller issues its own requests against the
// shared http.Client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New returns a Client bound to baseURL. apiKey, if non-empty, is sent
// as the api_key header on every request (required by wallet and
// submit_tx endpoints, tolerated elsewhere).
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *Client) nodeError(op string, err error) error {
	return &NodeError{URL: c.baseURL, Op: op, Err: err}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.nodeError(path, err)
	}
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.nodeError(path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.nodeError(path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.nodeError(path, errors.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return c.nodeError(path, errors.Wrap(err, "decoding response body"))
	}
	return nil
}

// Info is the loosely-decoded GET /info document. Every field is
// optional and camelCase-aliased; difficulty is carried as a
// json.Number, which accepts a JSON number or a numeric string, because
// it may exceed 64-bit precision.
type Info struct {
	FullHeight        *int64  `json:"fullHeight,omitempty"`
	HeadersHeight     *int64  `json:"headersHeight,omitempty"`
	AppVersion        *string `json:"appVersion,omitempty"`
	PeersCount        *int64  `json:"peersCount,omitempty"`
	UnconfirmedCount  *int64  `json:"unconfirmedCount,omitempty"`
	Difficulty        *json.Number `json:"difficulty,omitempty"`
	StateType         *string `json:"stateType,omitempty"`
	IsMining          *bool   `json:"isMining,omitempty"`
	MaxPeerHeight     *int64  `json:"maxPeerHeight,omitempty"`
	BestFullHeaderID  *string `json:"bestFullHeaderId,omitempty"`
}

// Info calls GET /info.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// BlockIDsAtHeight calls GET /blocks/at/{height}. The list is usually
// length 1; length > 1 indicates a reorg fork at that height, and
// callers conventionally take [0].
func (c *Client) BlockIDsAtHeight(ctx context.Context, height int64) ([]string, error) {
	var ids []string
	path := fmt.Sprintf("/blocks/at/%d", height)
	if err := c.do(ctx, http.MethodGet, path, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetBlock calls GET /blocks/{id} and decodes the full block document.
func (c *Client) GetBlock(ctx context.Context, id string) (chainmodel.BlockDocument, error) {
	var doc chainmodel.BlockDocument
	path := "/blocks/" + id
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return chainmodel.BlockDocument{}, err
	}
	return doc, nil
}

// Mempool calls GET /transactions/unconfirmed?limit&offset.
func (c *Client) Mempool(ctx context.Context, limit, offset int) ([]chainmodel.TxDocument, error) {
	var txs []chainmodel.TxDocument
	path := fmt.Sprintf("/transactions/unconfirmed?limit=%d&offset=%d", limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// MempoolSize calls GET /transactions/unconfirmed/size.
func (c *Client) MempoolSize(ctx context.Context) (int64, error) {
	var size int64
	if err := c.do(ctx, http.MethodGet, "/transactions/unconfirmed/size", nil, &size); err != nil {
		return 0, err
	}
	return size, nil
}

// SubmitTx calls POST /transactions and returns the accepted tx id.
func (c *Client) SubmitTx(ctx context.Context, doc json.RawMessage) (string, error) {
	var txID string
	if err := c.do(ctx, http.MethodPost, "/transactions", bytes.NewReader(doc), &txID); err != nil {
		return "", err
	}
	return txID, nil
}

// walletGet issues a GET against a wallet/* endpoint and decodes the
// raw JSON response body into out.
func (c *Client) walletGet(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) walletPost(ctx context.Context, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return c.nodeError(path, err)
		}
		reader = bytes.NewReader(b)
	}
	return c.do(ctx, http.MethodPost, path, reader, out)
}

// WalletStatus calls GET /wallet/status.
func (c *Client) WalletStatus(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	return raw, c.walletGet(ctx, "/wallet/status", &raw)
}

// WalletAddresses calls GET /wallet/addresses.
func (c *Client) WalletAddresses(ctx context.Context) ([]string, error) {
	var addrs []string
	return addrs, c.walletGet(ctx, "/wallet/addresses", &addrs)
}

// WalletBalances calls GET /wallet/balances.
func (c *Client) WalletBalances(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	return raw, c.walletGet(ctx, "/wallet/balances", &raw)
}

// WalletUnlock calls POST /wallet/unlock with the given pass phrase.
func (c *Client) WalletUnlock(ctx context.Context, pass string) error {
	return c.walletPost(ctx, "/wallet/unlock", map[string]string{"pass": pass}, nil)
}

// WalletLock calls POST /wallet/lock.
func (c *Client) WalletLock(ctx context.Context) error {
	return c.walletPost(ctx, "/wallet/lock", nil, nil)
}

// WalletGenerate calls POST /wallet/init.
func (c *Client) WalletGenerate(ctx context.Context, pass string) (json.RawMessage, error) {
	var raw json.RawMessage
	return raw, c.walletPost(ctx, "/wallet/init", map[string]string{"pass": pass}, &raw)
}

// WalletSend calls POST /wallet/payment/send with an opaque request
// document and returns the resulting tx id.
func (c *Client) WalletSend(ctx context.Context, request json.RawMessage) (string, error) {
	var txID string
	return txID, c.walletPost(ctx, "/wallet/payment/send", request, &txID)
}
