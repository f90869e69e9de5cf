package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EVMClient implements the port.EVMChainClient interface for EVM-compatible chains.
type EVMClient struct {
	ethClient      *ethclient.Client
	netDef         entity.NetworkDefinition
	rpcCallTimeout time.Duration
}

// Minimal ERC20 + Ownable ABI: the reads the adapters issue and the transfer call they decode.
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
)

func initParsedERC20ABI() {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
	})
}

// NewEVMClient dials the primary RPC URL and falls back to the others in order.
func NewEVMClient(ctx context.Context, netDef entity.NetworkDefinition, connectionTimeout, rpcCallTimeout time.Duration) (*EVMClient, error) {
	initParsedERC20ABI()
	rpcURLs := append([]string{netDef.PrimaryRPCURL}, netDef.FallbackRPCURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		dialCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		client, err := ethclient.DialContext(dialCtx, rpcURL)
		cancel()

		if err == nil {
			return &EVMClient{ethClient: client, netDef: netDef, rpcCallTimeout: rpcCallTimeout}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for network %s: %w", netDef.Identifier, lastErr)
}

var _ port.EVMChainClient = (*EVMClient)(nil)

func (c *EVMClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.rpcCallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.rpcCallTimeout)
}

func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber on %s: %w", c.netDef.Identifier, err)
	}
	return n, nil
}

func (c *EVMClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	logs, err := c.ethClient.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs on %s: %w", c.netDef.Identifier, err)
	}
	return logs, nil
}

func (c *EVMClient) TransactionByHash(ctx context.Context, hash common.Hash) (entity.EVMTransaction, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	tx, pending, err := c.ethClient.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return entity.EVMTransaction{}, fmt.Errorf("transaction %s: %w", hash.Hex(), entity.ErrNotFound)
	}
	if err != nil {
		return entity.EVMTransaction{}, fmt.Errorf("eth_getTransactionByHash on %s: %w", c.netDef.Identifier, err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return entity.EVMTransaction{}, fmt.Errorf("recover sender of %s: %w", hash.Hex(), err)
	}

	out := entity.EVMTransaction{Hash: tx.Hash().Hex(), From: from.Hex(), Pending: pending}
	if tx.To() != nil {
		out.To = tx.To().Hex()
	}
	transfer := parsedERC20ABI.Methods["transfer"]
	if data := tx.Data(); len(data) >= 4 && bytes.Equal(data[:4], transfer.ID) {
		if args, err := transfer.Inputs.Unpack(data[4:]); err == nil && len(args) == 2 {
			if to, ok := args[0].(common.Address); ok {
				out.TransferRecipient = to.Hex()
			}
		}
	}
	return out, nil
}

// call packs method, runs eth_call against token and unpacks the single output.
func (c *EVMClient) call(ctx context.Context, token common.Address, method string) (any, error) {
	data, err := parsedERC20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	raw, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, token.Hex(), err)
	}

	out, err := parsedERC20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s of %s: %v. Raw: %s", entity.ErrUndecodable, method, token.Hex(), err, hexutil.Encode(raw))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s of %s returned no data", entity.ErrUndecodable, method, token.Hex())
	}
	return out[0], nil
}

func (c *EVMClient) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	return callAs[string](ctx, c, token, "symbol")
}

func (c *EVMClient) TokenName(ctx context.Context, token common.Address) (string, error) {
	return callAs[string](ctx, c, token, "name")
}

func (c *EVMClient) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return callAs[uint8](ctx, c, token, "decimals")
}

func (c *EVMClient) TokenTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return callAs[*big.Int](ctx, c, token, "totalSupply")
}

func (c *EVMClient) TokenOwner(ctx context.Context, token common.Address) (common.Address, error) {
	return callAs[common.Address](ctx, c, token, "owner")
}

func callAs[T any](ctx context.Context, c *EVMClient, token common.Address, method string) (T, error) {
	var zero T
	v, err := c.call(ctx, token, method)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %s type %T from %s", entity.ErrUndecodable, method, v, token.Hex())
	}
	return typed, nil
}

// BalancesOf fetches multiple balanceOf values using one JSON-RPC batch request.
func (c *EVMClient) BalancesOf(ctx context.Context, requests []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error) {
	if len(requests) == 0 {
		return []entity.BalanceResultItem{}, nil
	}

	batchElems := make([]rpc.BatchElem, len(requests))
	results := make([]entity.BalanceResultItem, len(requests))

	for i, reqItem := range requests {
		results[i] = entity.BalanceResultItem{
			TokenAddress:  reqItem.TokenAddress,
			WalletAddress: reqItem.WalletAddress,
		}

		callData, err := parsedERC20ABI.Pack("balanceOf", common.HexToAddress(reqItem.WalletAddress))
		if err != nil {
			return nil, fmt.Errorf("pack balanceOf: %w", err)
		}
		callArgs := map[string]interface{}{
			"to":   common.HexToAddress(reqItem.TokenAddress),
			"data": hexutil.Bytes(callData),
		}
		batchElems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArgs, "latest"},
			Result: new(hexutil.Bytes),
		}
	}

	rpcCallCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.ethClient.Client().BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return results, fmt.Errorf("RPC batch call failed: %w", err)
	}

	for i, elem := range batchElems {
		if elem.Error != nil {
			results[i].Error = fmt.Errorf("balanceOf(%s) on %s: %w", requests[i].WalletAddress, requests[i].TokenAddress, elem.Error)
			continue
		}

		result, ok := elem.Result.(*hexutil.Bytes)
		if !ok || result == nil {
			results[i].Error = fmt.Errorf("failed to decode balanceOf of %s: unexpected type or nil result", requests[i].TokenAddress)
			continue
		}
		if len(*result) == 0 {
			results[i].Balance = big.NewInt(0)
			continue
		}

		unpacked, err := parsedERC20ABI.Unpack("balanceOf", *result)
		if err != nil || len(unpacked) == 0 {
			results[i].Error = fmt.Errorf("failed to unpack balanceOf result for %s: %v. Raw: %s", requests[i].TokenAddress, err, hexutil.Encode(*result))
			continue
		}
		balance, ok := unpacked[0].(*big.Int)
		if !ok {
			results[i].Error = fmt.Errorf("failed to assert unpacked balanceOf result to *big.Int for %s. Got: %T", requests[i].TokenAddress, unpacked[0])
			continue
		}
		results[i].Balance = balance
	}
	return results, nil
}

// Definition returns the network definition for this client.
func (c *EVMClient) Definition() entity.NetworkDefinition {
	return c.netDef
}

func (c *EVMClient) Close() {
	c.ethClient.Close()
}
