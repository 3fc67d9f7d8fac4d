package chain

import (
	"fmt"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Factory deploys a bonding curve and its ownership token per content item
type Factory struct {
	address common.Address
}

func NewFactory(address common.Address) *Factory {
	return &Factory{address: address}
}

func (f *Factory) Address() common.Address {
	return f.address
}

// CreateCall builds the createCurve transaction for issuer
func (f *Factory) CreateCall(issuer common.Address, req models.DeploymentRequest) (TxRequest, error) {
	data, err := FactoryABI.Pack("createCurve", req.ContentID, req.Name, req.Symbol)
	if err != nil {
		return TxRequest{}, fmt.Errorf("failed to pack createCurve: %w", err)
	}
	return TxRequest{From: issuer, To: f.address, Data: data, Label: "deploy " + req.Symbol}, nil
}

// FindCreatedToken extracts the new token address from the CurveCreated log.
// Only logs emitted by the factory itself are considered.
func (f *Factory) FindCreatedToken(receipt *types.Receipt) (common.Address, bool) {
	if receipt == nil {
		return common.Address{}, false
	}
	id := FactoryABI.Events["CurveCreated"].ID
	for _, l := range receipt.Logs {
		if l.Address != f.address || len(l.Topics) < 2 || l.Topics[0] != id {
			continue
		}
		return common.BytesToAddress(l.Topics[1].Bytes()), true
	}
	return common.Address{}, false
}
