package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

var _ Client = (*TonCenterClient)(nil)

// TonCenterClient is a Client talking to a toncenter v2 compatible JSON-RPC endpoint.
type TonCenterClient struct {
	endpoint   string
	httpClient *http.Client
	apiKey     string
}

// NewTonCenterClient creates a client bound to a JSON-RPC endpoint.
func NewTonCenterClient(endpoint string, httpClient *http.Client, apiKey string) *TonCenterClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &TonCenterClient{
		endpoint:   endpoint,
		httpClient: httpClient,
		apiKey:     apiKey,
	}
}

// Close does nothing, the HTTP client is shared.
func (c *TonCenterClient) Close() {}

type rpcRequest struct {
	ID      int    `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   int             `json:"code"`
}

type runGetMethodParams struct {
	Address string  `json:"address"`
	Method  string  `json:"method"`
	Stack   [][]any `json:"stack"`
}

type runGetMethodResult struct {
	ExitCode int                 `json:"exit_code"`
	Stack    [][]json.RawMessage `json:"stack"`
}

// JettonWalletAddress runs get_wallet_address on the jetton master.
func (c *TonCenterClient) JettonWalletAddress(ctx context.Context, master, owner *address.Address) (*address.Address, error) {
	ownerSlice := cell.BeginCell().MustStoreAddr(owner).EndCell()

	res, err := c.runGetMethod(ctx, master, "get_wallet_address", [][]any{
		{"tvm.Slice", base64.StdEncoding.EncodeToString(ownerSlice.ToBOC())},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get jetton wallet of %s: %w", owner, err)
	}
	if len(res.Stack) == 0 || len(res.Stack[0]) != 2 {
		return nil, errors.New("get_wallet_address returned an empty stack")
	}

	boc, err := stackCellBytes(res.Stack[0][1])
	if err != nil {
		return nil, err
	}

	resCell, err := cell.FromBOC(boc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse get_wallet_address result: %w", err)
	}

	addr, err := resCell.BeginParse().LoadAddr()
	if err != nil {
		return nil, fmt.Errorf("failed to load jetton wallet address: %w", err)
	}

	return addr, nil
}

func (c *TonCenterClient) runGetMethod(ctx context.Context, addr *address.Address, method string, stack [][]any) (*runGetMethodResult, error) {
	body, err := json.Marshal(rpcRequest{
		ID:      1,
		JSONRPC: "2.0",
		Method:  "runGetMethod",
		Params: runGetMethodParams{
			Address: addr.String(),
			Method:  method,
			Stack:   stack,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runGetMethod %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("runGetMethod %s: failed to decode response (status %s): %w", method, resp.Status, err)
	}
	if !rpcResp.OK {
		return nil, fmt.Errorf("runGetMethod %s: rpc error %d: %s", method, rpcResp.Code, rpcResp.Error)
	}

	var res runGetMethodResult
	if err := json.Unmarshal(rpcResp.Result, &res); err != nil {
		return nil, fmt.Errorf("runGetMethod %s: failed to decode result: %w", method, err)
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, fmt.Errorf("runGetMethod %s: exit code %d", method, res.ExitCode)
	}

	return &res, nil
}

// stackCellBytes decodes a cell or slice stack value, either {"bytes": "<b64>"} or "<b64>".
func stackCellBytes(raw json.RawMessage) ([]byte, error) {
	var obj struct {
		Bytes string `json:"bytes"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Bytes != "" {
		return base64.StdEncoding.DecodeString(obj.Bytes)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unexpected stack value: %s", raw)
	}

	return base64.StdEncoding.DecodeString(s)
}
