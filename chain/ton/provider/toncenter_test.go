package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

var (
	testMaster      = address.MustParseAddr("EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs")
	testOwner       = address.MustParseAddr("EQAAAQIDBAUGBwgJCgsMDQ4PEBESExQVFhcYGRobHB0eHx2j")
	testJettonOwned = address.MustParseRawAddr("0:1111111111111111111111111111111111111111111111111111111111111111")
)

func addrBOC(t *testing.T, addr *address.Address) string {
	t.Helper()

	return base64.StdEncoding.EncodeToString(cell.BeginCell().MustStoreAddr(addr).EndCell().ToBOC())
}

func Test_TonCenterClient_JettonWalletAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stackValue string
	}{
		{
			name:       "cell object",
			stackValue: fmt.Sprintf(`{"bytes":%q}`, addrBOC(t, testJettonOwned)),
		},
		{
			name:       "plain base64",
			stackValue: fmt.Sprintf(`%q`, addrBOC(t, testJettonOwned)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

				var req struct {
					Method string `json:"method"`
					Params struct {
						Address string     `json:"address"`
						Method  string     `json:"method"`
						Stack   [][]string `json:"stack"`
					} `json:"params"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "runGetMethod", req.Method)
				assert.Equal(t, testMaster.String(), req.Params.Address)
				assert.Equal(t, "get_wallet_address", req.Params.Method)
				if assert.Len(t, req.Params.Stack, 1) {
					assert.Equal(t, "tvm.Slice", req.Params.Stack[0][0])

					boc, err := base64.StdEncoding.DecodeString(req.Params.Stack[0][1])
					assert.NoError(t, err)
					c, err := cell.FromBOC(boc)
					assert.NoError(t, err)
					owner, err := c.BeginParse().LoadAddr()
					assert.NoError(t, err)
					assert.True(t, owner.Equals(testOwner))
				}

				_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"exit_code":0,"stack":[["cell",%s]]}}`, tt.stackValue)
			}))
			t.Cleanup(srv.Close)

			c := NewTonCenterClient(srv.URL, srv.Client(), "secret")

			got, err := c.JettonWalletAddress(t.Context(), testMaster, testOwner)
			require.NoError(t, err)
			assert.True(t, got.Equals(testJettonOwned))
		})
	}
}

func Test_TonCenterClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "rpc error",
			body:    `{"ok":false,"error":"rate limit","code":429}`,
			wantErr: "rpc error 429: rate limit",
		},
		{
			name:    "non-zero exit code",
			body:    `{"ok":true,"result":{"exit_code":11,"stack":[]}}`,
			wantErr: "exit code 11",
		},
		{
			name:    "empty stack",
			body:    `{"ok":true,"result":{"exit_code":0,"stack":[]}}`,
			wantErr: "empty stack",
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: "failed to decode response",
		},
		{
			name:    "bad boc",
			body:    `{"ok":true,"result":{"exit_code":0,"stack":[["cell",{"bytes":"AAAA"}]]}}`,
			wantErr: "failed to parse get_wallet_address result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c := NewTonCenterClient(srv.URL, nil, "")

			_, err := c.JettonWalletAddress(t.Context(), testMaster, testOwner)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
