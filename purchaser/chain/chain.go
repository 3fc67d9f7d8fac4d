// Package chain is the read/write capability the purchase core is given.
// Keys never live here: writes are handed to an external signer and
// reads go through a plain JSON-RPC node.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// TxRequest is an unsigned transaction handed to the external signer
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int // nil for non-payable calls
	Label string   // human-readable purpose shown by the signer, e.g., "approve USDC"
}

// Signer submits transactions on behalf of the connected wallet.
// Implementations return an error wrapping models.ErrUserRejected when the user declines.
type Signer interface {
	Address() common.Address
	Ready(ctx context.Context) error
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// BalanceReader reads native or ERC-20 balances in base units
type BalanceReader interface {
	BalanceOf(ctx context.Context, asset models.Asset, owner common.Address) (*uint256.Int, error)
}

// ReceiptWaiter blocks until a transaction is mined
type ReceiptWaiter interface {
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Caller performs read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// ApproveCall builds an ERC-20 allowance grant for spender
func ApproveCall(owner common.Address, asset models.Asset, spender common.Address, amount *big.Int) (TxRequest, error) {
	if asset.IsNative() {
		return TxRequest{}, fmt.Errorf("native asset %s cannot be approved", asset.Symbol)
	}
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return TxRequest{
		From:  owner,
		To:    asset.Address,
		Data:  data,
		Label: "approve " + asset.Symbol,
	}, nil
}

// PreconditionFunc adapts a function to the router precondition capability
type PreconditionFunc func(ctx context.Context) error

// Check runs the precondition
func (f PreconditionFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// WalletConnected returns a precondition backed by the signer's readiness check
func WalletConnected(signer Signer) PreconditionFunc {
	return func(ctx context.Context) error {
		if err := signer.Ready(ctx); err != nil {
			return fmt.Errorf("%w: %v", models.ErrWalletNotConnected, err)
		}
		return nil
	}
}
