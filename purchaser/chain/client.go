package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "chain").Logger()
}

// Client reads chain state through a JSON-RPC node.
// It implements BalanceReader, ReceiptWaiter and Caller.
type Client struct {
	eth                 *ethclient.Client
	receiptPollInterval time.Duration
}

// Dial connects to the node at rpcURL
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpcURL, err)
	}
	log.Info().Str("url", rpcURL).Msg("Chain RPC client initialized")
	return &Client{
		eth:                 ethclient.NewClient(rpcClient),
		receiptPollInterval: time.Second,
	}, nil
}

// SetReceiptPollInterval changes how often WaitReceipt polls; non-positive values are ignored
func (c *Client) SetReceiptPollInterval(d time.Duration) {
	if d > 0 {
		c.receiptPollInterval = d
	}
}

// BalanceOf returns the latest balance of owner in base units
func (c *Client) BalanceOf(ctx context.Context, asset models.Asset, owner common.Address) (*uint256.Int, error) {
	var raw *big.Int
	if asset.IsNative() {
		balance, err := c.eth.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read native balance: %w", err)
		}
		raw = balance
	} else {
		data, err := ERC20ABI.Pack("balanceOf", owner)
		if err != nil {
			return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
		}
		out, err := c.CallContract(ctx, asset.Address, data)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s balance: %w", asset.Symbol, err)
		}
		values, err := ERC20ABI.Unpack("balanceOf", out)
		if err != nil || len(values) != 1 {
			return nil, fmt.Errorf("failed to decode %s balance: %v", asset.Symbol, err)
		}
		balance, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
		}
		raw = balance
	}

	amount, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("balance %s overflows uint256", raw)
	}
	return amount, nil
}

// CallContract performs an eth_call against the latest block
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// WaitReceipt polls for the receipt of hash until it is mined or ctx ends
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.Debug().Err(err).Str("tx", hash.Hex()).Msg("Receipt query failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.eth.Close()
}
