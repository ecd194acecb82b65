// Package evm provides read and transfer operations against Flare-family
// JSON-RPC nodes. A Client wraps a single upstream connection; all calls are
// synchronous round trips with a per-call timeout.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// rpcTimeout bounds every upstream JSON-RPC round trip.
const rpcTimeout = 10 * time.Second

// transferGasLimit is the fixed gas limit for plain value transfers.
const transferGasLimit = 21000

// rpcClient is the subset of ethclient.Client the gateway uses. Narrowing
// the dependency keeps the client testable without a live node.
type rpcClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

var _ rpcClient = (*ethclient.Client)(nil)

// dialFunc opens an RPC connection. Swapped out in tests.
type dialFunc func(ctx context.Context, rawurl string) (rpcClient, error)

func defaultDial(ctx context.Context, rawurl string) (rpcClient, error) {
	return ethclient.DialContext(ctx, rawurl)
}

// Balance is the result of a native-coin balance query.
type Balance struct {
	Address string `json:"address"`
	Wei     string `json:"balance_wei"`
	Ether   string `json:"balance"`
	Network string `json:"network"`
}

// TxStatus describes a transaction's lifecycle state.
type TxStatus struct {
	Hash        string `json:"tx_hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
}

// Client manages a single upstream EVM connection. Safe for concurrent use.
type Client struct {
	log  *slog.Logger
	dial dialFunc

	mu          sync.Mutex
	rpc         rpcClient
	networkName string
	chainID     *big.Int
	rpcURL      string
}

// NewClient creates a disconnected client. Call Connect before issuing
// chain operations.
func NewClient(log *slog.Logger) *Client {
	return &Client{log: log, dial: defaultDial}
}

// Connect dials the given network. network may be a known name (flare,
// songbird, flare-coston) or empty when rpcURL is set explicitly. Any
// previous connection is closed and replaced.
func (c *Client) Connect(ctx context.Context, network, rpcURL string) (interfaces.NetworkStatus, error) {
	displayName := "Unknown"
	if network != "" {
		cfg, ok := networks[strings.ToLower(network)]
		if !ok {
			return interfaces.NetworkStatus{}, fmt.Errorf("%w: %s", interfaces.ErrUnknownNetwork, network)
		}
		displayName = cfg.DisplayName
		if rpcURL == "" {
			rpcURL = cfg.RPCURL
		}
	}
	if rpcURL == "" {
		cfg := networks[DefaultNetwork]
		displayName = cfg.DisplayName
		rpcURL = cfg.RPCURL
	}

	dialCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	rpc, err := c.dial(dialCtx, rpcURL)
	if err != nil {
		return interfaces.NetworkStatus{}, fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}

	chainID, err := rpc.ChainID(dialCtx)
	if err != nil {
		rpc.Close()
		return interfaces.NetworkStatus{}, fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}

	if name := networkNameForChainID(chainID.Int64()); name != "Unknown" {
		displayName = name
	}

	c.mu.Lock()
	if c.rpc != nil {
		c.rpc.Close()
	}
	c.rpc = rpc
	c.networkName = displayName
	c.chainID = chainID
	c.rpcURL = rpcURL
	c.mu.Unlock()

	c.log.Info("Connected to EVM network",
		slog.String("network", displayName),
		slog.String("chain_id", chainID.String()),
		slog.String("rpc_url", rpcURL))

	return c.Status(ctx)
}

// Status reports the current connection state, refreshing the latest block
// and gas price. RPC failures degrade to Connected=false rather than error.
func (c *Client) Status(ctx context.Context) (interfaces.NetworkStatus, error) {
	c.mu.Lock()
	rpc := c.rpc
	name := c.networkName
	chainID := c.chainID
	c.mu.Unlock()

	if rpc == nil {
		return interfaces.NetworkStatus{Connected: false}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	status := interfaces.NetworkStatus{
		Connected: true,
		Name:      name,
		ChainID:   chainID,
	}

	block, err := rpc.BlockNumber(callCtx)
	if err != nil {
		c.log.Warn("Block number query failed", "err", err)
		status.Connected = false
		return status, nil
	}
	status.LatestBlock = block

	gasPrice, err := rpc.SuggestGasPrice(callCtx)
	if err != nil {
		c.log.Warn("Gas price query failed", "err", err)
		status.Connected = false
		return status, nil
	}
	status.GasPrice = gasPrice

	return status, nil
}

// Balance returns the native-coin balance of an address in wei and as an
// ether-normalized string with six decimal places. The address is validated
// before any RPC call is made.
func (c *Client) Balance(ctx context.Context, address string) (Balance, error) {
	if !common.IsHexAddress(address) {
		return Balance{}, fmt.Errorf("%w: %s", interfaces.ErrInvalidAddress, address)
	}

	c.mu.Lock()
	rpc := c.rpc
	name := c.networkName
	c.mu.Unlock()

	if rpc == nil {
		return Balance{}, interfaces.ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	wei, err := rpc.BalanceAt(callCtx, common.HexToAddress(address), nil)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to query balance: %w", err)
	}

	return Balance{
		Address: address,
		Wei:     wei.String(),
		Ether:   formatEther(wei),
		Network: name,
	}, nil
}

// SendTransaction signs and broadcasts a plain value transfer from the
// given key. The sender balance must cover the amount plus 21000 gas at the
// suggested price.
func (c *Client) SendTransaction(ctx context.Context, to string, amountWei *big.Int, key *ecdsa.PrivateKey) (common.Hash, error) {
	if !common.IsHexAddress(to) {
		return common.Hash{}, fmt.Errorf("%w: %s", interfaces.ErrInvalidAddress, to)
	}

	c.mu.Lock()
	rpc := c.rpc
	chainID := c.chainID
	c.mu.Unlock()

	if rpc == nil {
		return common.Hash{}, interfaces.ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := rpc.PendingNonceAt(callCtx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to query nonce: %w", err)
	}

	gasPrice, err := rpc.SuggestGasPrice(callCtx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to query gas price: %w", err)
	}

	balance, err := rpc.BalanceAt(callCtx, from, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to query sender balance: %w", err)
	}

	cost := new(big.Int).Mul(gasPrice, big.NewInt(transferGasLimit))
	cost.Add(cost, amountWei)
	if balance.Cmp(cost) < 0 {
		return common.Hash{}, fmt.Errorf("insufficient balance: have %s wei, need %s wei", balance, cost)
	}

	toAddr := common.HexToAddress(to)
	tx, err := types.SignNewTx(key, types.NewEIP155Signer(chainID), &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      transferGasLimit,
		To:       &toAddr,
		Value:    amountWei,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := rpc.SendTransaction(callCtx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	c.log.Info("Transaction broadcast",
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.String("to", to),
		slog.String("value_wei", amountWei.String()))

	return tx.Hash(), nil
}

// TransactionStatus reports whether a transaction is pending, confirmed, or
// failed.
func (c *Client) TransactionStatus(ctx context.Context, hashHex string) (TxStatus, error) {
	hashHex = strings.TrimSpace(hashHex)
	if !strings.HasPrefix(hashHex, "0x") || len(hashHex) != 66 {
		return TxStatus{}, fmt.Errorf("%w: malformed transaction hash %q", interfaces.ErrInvalidAddress, hashHex)
	}

	c.mu.Lock()
	rpc := c.rpc
	c.mu.Unlock()

	if rpc == nil {
		return TxStatus{}, interfaces.ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	hash := common.HexToHash(hashHex)

	receipt, err := rpc.TransactionReceipt(callCtx, hash)
	if err != nil {
		if _, pending, txErr := rpc.TransactionByHash(callCtx, hash); txErr == nil && pending {
			return TxStatus{Hash: hashHex, Status: "pending"}, nil
		}
		return TxStatus{}, fmt.Errorf("failed to query transaction: %w", err)
	}

	status := "confirmed"
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = "failed"
	}
	return TxStatus{
		Hash:        hashHex,
		Status:      status,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// Close tears down the upstream connection if one exists.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

// formatEther renders a wei amount as ether with six decimal places.
func formatEther(wei *big.Int) string {
	f := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(big.NewInt(params.Ether)),
	)
	return f.Text('f', 6)
}
