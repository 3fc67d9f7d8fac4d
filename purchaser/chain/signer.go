package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// codeUserRejected is the EIP-1193 error code for a declined request
const codeUserRejected = 4001

// RemoteSigner forwards transactions to an external wallet endpoint
// that owns the key for address (a wallet bridge or clef-style signer).
type RemoteSigner struct {
	client  *rpc.Client
	address common.Address
}

// DialSigner connects to the signer endpoint for address
func DialSigner(ctx context.Context, url string, address common.Address) (*RemoteSigner, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signer %s: %w", url, err)
	}
	return NewRemoteSigner(client, address), nil
}

// NewRemoteSigner wraps an existing rpc client
func NewRemoteSigner(client *rpc.Client, address common.Address) *RemoteSigner {
	return &RemoteSigner{client: client, address: address}
}

func (s *RemoteSigner) Address() common.Address {
	return s.address
}

// Ready reports whether the wallet is connected and exposes the configured account
func (s *RemoteSigner) Ready(ctx context.Context) error {
	var accounts []common.Address
	if err := s.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return fmt.Errorf("failed to list signer accounts: %w", err)
	}
	for _, account := range accounts {
		if account == s.address {
			return nil
		}
	}
	return fmt.Errorf("account %s not exposed by signer", s.address.Hex())
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

// SendTransaction asks the wallet to sign and broadcast tx
func (s *RemoteSigner) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: s.address, To: &tx.To, Data: tx.Data}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(tx.Value)
	}

	log.Debug().Str("label", tx.Label).Str("to", tx.To.Hex()).Msg("Requesting signature")

	var hash common.Hash
	if err := s.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		if isUserRejection(err) {
			return common.Hash{}, fmt.Errorf("%s: %w", tx.Label, models.ErrUserRejected)
		}
		return common.Hash{}, fmt.Errorf("%s: failed to send transaction: %w", tx.Label, err)
	}
	return hash, nil
}

// Close releases the signer connection
func (s *RemoteSigner) Close() {
	s.client.Close()
}

func isUserRejection(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "user rejected")
}
