package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// Minimal ERC20 read surface: balanceOf, decimals, symbol.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// TokenBalance is the result of an ERC20 balance query.
type TokenBalance struct {
	TokenAddress string `json:"token_address"`
	Address      string `json:"address"`
	Raw          string `json:"balance_raw"`
	Balance      string `json:"balance"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
}

// TokenBalanceOf queries an ERC20 token balance for a wallet address. Both
// addresses are validated before any RPC call is made.
func (c *Client) TokenBalanceOf(ctx context.Context, tokenAddress, walletAddress string) (TokenBalance, error) {
	if !common.IsHexAddress(tokenAddress) {
		return TokenBalance{}, fmt.Errorf("%w: %s", interfaces.ErrInvalidAddress, tokenAddress)
	}
	if !common.IsHexAddress(walletAddress) {
		return TokenBalance{}, fmt.Errorf("%w: %s", interfaces.ErrInvalidAddress, walletAddress)
	}

	c.mu.Lock()
	rpc := c.rpc
	c.mu.Unlock()

	if rpc == nil {
		return TokenBalance{}, interfaces.ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	token := common.HexToAddress(tokenAddress)

	var decimals uint8
	if err := c.callERC20(callCtx, rpc, token, "decimals", &decimals); err != nil {
		return TokenBalance{}, fmt.Errorf("failed to query token decimals: %w", err)
	}

	var symbol string
	if err := c.callERC20(callCtx, rpc, token, "symbol", &symbol); err != nil {
		return TokenBalance{}, fmt.Errorf("failed to query token symbol: %w", err)
	}

	var raw *big.Int
	if err := c.callERC20(callCtx, rpc, token, "balanceOf", &raw, common.HexToAddress(walletAddress)); err != nil {
		return TokenBalance{}, fmt.Errorf("failed to query token balance: %w", err)
	}

	return TokenBalance{
		TokenAddress: tokenAddress,
		Address:      walletAddress,
		Raw:          raw.String(),
		Balance:      formatUnits(raw, decimals),
		Symbol:       symbol,
		Decimals:     decimals,
	}, nil
}

func (c *Client) callERC20(ctx context.Context, rpc rpcClient, token common.Address, method string, out interface{}, args ...interface{}) error {
	input, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return err
	}

	output, err := rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return err
	}
	return erc20ABI.UnpackIntoInterface(out, method, output)
}

// formatUnits renders a raw token amount according to the token's decimals,
// keeping at most six fractional digits.
func formatUnits(raw *big.Int, decimals uint8) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	f := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		new(big.Float).SetInt(scale),
	)
	return f.Text('f', 6)
}
