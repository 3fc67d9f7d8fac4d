// Package datastore defines the external store the purchase core writes to.
// Writes are append-only: a purchase is keyed by its transaction hash and a
// deployment by its content id.
package datastore

import (
	"context"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

// PurchaseWriter appends purchase audit rows
type PurchaseWriter interface {
	// AppendPurchase returns ErrDuplicateKey if a record with the same tx hash exists.
	AppendPurchase(ctx context.Context, rec models.PurchaseRecord) error
}

// TokenAddressWriter persists the token address of a deployed curve
type TokenAddressWriter interface {
	// SaveTokenAddress returns ErrDuplicateKey if the content id already has a token.
	SaveTokenAddress(ctx context.Context, dep models.TokenDeployment) error
}

// Store is a backend that accepts both kinds of writes
type Store interface {
	PurchaseWriter
	TokenAddressWriter
}
