// Package rpcadapter is the blockchain RPC surface the analysis core
// depends on: getCode and getStorage, abstracted over an HTTPS JSON-RPC
// transport (ETH) and a WSS transport (BSC). It is an external
// collaborator per the analysis core's scope, grounded on the JSON-RPC
// request/response shape of a plain HTTP client, generalized with a
// second transport so platform selection is a real code path instead of
// a single hardcoded endpoint.
package rpcadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"

	"github.com/shuo-young/lydia-go/internal/lydiaerr"
)

// DefaultEndpoints are the default platform RPC URLs. NewClient's endpoint
// argument overrides them so tests and operators never depend on a
// hardcoded provider key.
var DefaultEndpoints = map[string]string{
	"ETH": "https://ethereum-rpc.publicnode.com",
	"BSC": "wss://bsc-rpc.publicnode.com",
}

// Transport is the minimal JSON-RPC round trip the Client needs; it is
// satisfied by both the HTTP and the WSS implementation below.
type Transport interface {
	Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
}

// Client is the platform-tagged RPC surface used by the fact loader.
type Client struct {
	Platform  string
	transport Transport
	timeout   time.Duration

	mu          sync.Mutex
	slotCache   map[string]string // "contract|slot" -> 32-byte hex word, no 0x
}

// NewClient builds a Client for platform ("ETH" or "BSC"); endpoint
// overrides DefaultEndpoints when non-empty.
func NewClient(platform, endpoint string, timeout time.Duration) (*Client, error) {
	platform = strings.ToUpper(platform)
	if endpoint == "" {
		var ok bool
		endpoint, ok = DefaultEndpoints[platform]
		if !ok {
			return nil, lydiaerr.New(lydiaerr.Config, "no default RPC endpoint for platform "+platform)
		}
	}

	var transport Transport
	switch {
	case strings.HasPrefix(endpoint, "http"):
		transport = &httpTransport{endpoint: endpoint}
	case strings.HasPrefix(endpoint, "ws"):
		transport = &wsTransport{endpoint: endpoint}
	default:
		return nil, lydiaerr.New(lydiaerr.Config, "unsupported RPC endpoint scheme: "+endpoint)
	}

	return &Client{
		Platform:  platform,
		transport: transport,
		timeout:   timeout,
		slotCache: make(map[string]string),
	}, nil
}

// GetCode fetches runtime (or creation) bytecode for address at blk
// ("latest" or a 0x block tag), returning raw bytes.
func (c *Client) GetCode(ctx context.Context, address, blk string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.transport.Call(ctx, "eth_getCode", []interface{}{address, normalizeBlockTag(blk)})
	if err != nil {
		return nil, lydiaerr.Wrap(lydiaerr.Network, err, "eth_getCode failed for %s", address)
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, lydiaerr.Wrap(lydiaerr.Json, err, "decoding eth_getCode result for %s", address)
	}
	return hexutil.Decode(result)
}

// GetStorageWord returns the raw 32-byte storage word (as a bare hex
// string, no 0x prefix) at (address, slot), memoized per (address, slot)
// for the lifetime of the Client per §5's storage-cache requirement.
func (c *Client) GetStorageWord(ctx context.Context, address string, slot *uint256.Int, blk string) (string, error) {
	key := address + "|" + slot.Hex()

	c.mu.Lock()
	if cached, ok := c.slotCache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	position := hexutil.EncodeBig(slot.ToBig())
	raw, err := c.transport.Call(ctx, "eth_getStorageAt", []interface{}{address, position, normalizeBlockTag(blk)})
	if err != nil {
		return "", lydiaerr.Wrap(lydiaerr.Network, err, "eth_getStorageAt failed for %s slot %s", address, slot.Hex())
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", lydiaerr.Wrap(lydiaerr.Json, err, "decoding eth_getStorageAt result for %s", address)
	}

	word := strings.TrimPrefix(strings.ToLower(result), "0x")
	word = strings.Repeat("0", 64-len(word)) + word

	c.mu.Lock()
	c.slotCache[key] = word
	c.mu.Unlock()

	return word, nil
}

// ExtractStorageRange slices the big-endian 32-byte storage word down to
// the [byteLow, byteHigh] range exactly per the spec's byte-range rule:
// byteLow == 0 takes the trailing (byteHigh+1)*2 hex chars; otherwise the
// slice [len-(byteHigh+1)*2, len-byteLow*2].
func ExtractStorageRange(word string, byteLow, byteHigh int) string {
	w := strings.TrimPrefix(strings.ToLower(word), "0x")
	n := len(w)
	if byteLow == 0 {
		hi := (byteHigh + 1) * 2
		if hi > n {
			hi = n
		}
		return "0x" + w[n-hi:]
	}
	lo := n - (byteHigh+1)*2
	hi := n - byteLow*2
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return "0x" + w[lo:hi]
}

func normalizeBlockTag(blk string) string {
	if blk == "" || blk == "latest" {
		return "latest"
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(blk, "0x"), 16)
	if !ok || n.Sign() <= 0 {
		return "latest"
	}
	return hexutil.EncodeBig(n)
}

// httpTransport is the ETH platform's plain JSON-RPC-over-HTTPS
// transport, grounded on rpc.Client's request/response shape.
type httpTransport struct {
	endpoint string
}

type jsonRPCRequest struct {
	ID      int           `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	ID      int             `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Err     *rpcErrResponse `json:"error,omitempty"`
}

type rpcErrResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *rpcErrResponse) Error() string {
	return fmt.Sprintf(`{"code": %d, "message": %q}`, e.Code, e.Message)
}

func (t *httpTransport) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	payload := jsonRPCRequest{ID: 1, JSONRpc: "2.0", Method: method, Params: params}
	data, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result jsonRPCResponse
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Result, nil
}

// wsTransport is the BSC platform's WebSocket JSON-RPC transport: one
// request/response round trip per call over a freshly dialed connection,
// matching the HTTP transport's call shape so Client stays agnostic.
type wsTransport struct {
	endpoint string
}

func (t *wsTransport) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", t.endpoint, err)
	}
	defer conn.Close()

	payload := jsonRPCRequest{ID: 1, JSONRpc: "2.0", Method: method, Params: params}
	if err := conn.WriteJSON(&payload); err != nil {
		return nil, err
	}

	var result jsonRPCResponse
	if err := conn.ReadJSON(&result); err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Result, nil
}
