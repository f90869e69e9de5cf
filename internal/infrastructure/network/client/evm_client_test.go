package client

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chain_sync/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     stdjson.RawMessage   `json:"id"`
	Method string               `json:"method"`
	Params []stdjson.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      stdjson.RawMessage `json:"id"`
	Result  any                `json:"result,omitempty"`
	Error   *rpcError          `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeToken answers eth_call for a set of ERC20 contracts.
type fakeToken struct {
	symbol   string
	supply   []byte
	balances map[common.Address]*big.Int
}

func newRPCServer(t *testing.T, tokens map[common.Address]fakeToken) *httptest.Server {
	t.Helper()
	initParsedERC20ABI()

	answer := func(req rpcRequest) rpcResponse {
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "eth_blockNumber":
			resp.Result = "0x10"
		case "eth_call":
			var call struct {
				To    common.Address `json:"to"`
				Data  hexutil.Bytes  `json:"data"`
				Input hexutil.Bytes  `json:"input"`
			}
			require.NoError(t, stdjson.Unmarshal(req.Params[0], &call))
			data := call.Input
			if len(data) == 0 {
				data = call.Data
			}
			tok, ok := tokens[call.To]
			if !ok {
				resp.Error = &rpcError{Code: -32000, Message: "execution reverted"}
				return resp
			}
			method, err := parsedERC20ABI.MethodById(data[:4])
			require.NoError(t, err)

			var out []byte
			switch method.Name {
			case "symbol":
				out, err = method.Outputs.Pack(tok.symbol)
			case "totalSupply":
				out = tok.supply
			case "balanceOf":
				args, uerr := method.Inputs.Unpack(data[4:])
				require.NoError(t, uerr)
				bal := tok.balances[args[0].(common.Address)]
				if bal == nil {
					bal = big.NewInt(0)
				}
				out, err = method.Outputs.Pack(bal)
			default:
				resp.Error = &rpcError{Code: -32000, Message: "execution reverted"}
				return resp
			}
			require.NoError(t, err)
			resp.Result = hexutil.Encode(out)
		default:
			resp.Error = &rpcError{Code: -32601, Message: "method not found"}
		}
		return resp
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")

		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
			var reqs []rpcRequest
			require.NoError(t, stdjson.Unmarshal(body, &reqs))
			out := make([]rpcResponse, 0, len(reqs))
			for _, req := range reqs {
				out = append(out, answer(req))
			}
			_ = stdjson.NewEncoder(w).Encode(out)
			return
		}
		var req rpcRequest
		require.NoError(t, stdjson.Unmarshal(body, &req))
		_ = stdjson.NewEncoder(w).Encode(answer(req))
	}))
}

func TestEVMClient_ReadsAndBatchBalances(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	srv := newRPCServer(t, map[common.Address]fakeToken{
		token: {symbol: "REALTOKEN-S-1-MAIN-ST", balances: map[common.Address]*big.Int{alice: big.NewInt(1500)}},
	})
	defer srv.Close()

	ctx := context.Background()
	c, err := NewEVMClient(ctx, entity.NetworkDefinition{Identifier: "gnosis", PrimaryRPCURL: srv.URL}, time.Second, time.Second)
	require.NoError(t, err)
	defer c.Close()

	n, err := c.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)

	symbol, err := c.TokenSymbol(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "REALTOKEN-S-1-MAIN-ST", symbol)

	_, err = c.TokenName(ctx, token)
	assert.Error(t, err, "reverted call surfaces as an error")
	assert.NotErrorIs(t, err, entity.ErrUndecodable)

	results, err := c.BalancesOf(ctx, []entity.BalanceRequestItem{
		{TokenAddress: token.Hex(), WalletAddress: alice.Hex()},
		{TokenAddress: token.Hex(), WalletAddress: bob.Hex()},
		{TokenAddress: common.HexToAddress("0xdead").Hex(), WalletAddress: alice.Hex()},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1500), results[0].Balance.Int64())
	assert.Equal(t, int64(0), results[1].Balance.Int64())
	assert.Error(t, results[2].Error)
}

func TestEVMClient_UndecodableResultIsMarked(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	srv := newRPCServer(t, map[common.Address]fakeToken{
		token: {symbol: "REALTOKEN-S-1-MAIN-ST", supply: []byte{0x12, 0x34}},
	})
	defer srv.Close()

	ctx := context.Background()
	c, err := NewEVMClient(ctx, entity.NetworkDefinition{Identifier: "gnosis", PrimaryRPCURL: srv.URL}, time.Second, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.TokenTotalSupply(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrUndecodable)
	assert.Contains(t, err.Error(), "Raw: 0x1234")
}
