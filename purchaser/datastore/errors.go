package datastore

import (
	"errors"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/ethereum/go-ethereum/common"
)

// Storage errors shared by every backend.
var (
	// ErrDuplicateKey is returned when a record with the same key already exists.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrUnauthorized is returned when the store rejects the caller's credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidatePurchase checks the fields every backend requires
func ValidatePurchase(rec models.PurchaseRecord) error {
	if rec.TxHash == "" || rec.TokenID == (common.Address{}) || rec.Buyer == (common.Address{}) {
		return ErrInvalidInput
	}
	return nil
}

// ValidateDeployment checks the fields every backend requires
func ValidateDeployment(dep models.TokenDeployment) error {
	if dep.ContentID == "" || dep.Token == (common.Address{}) {
		return ErrInvalidInput
	}
	return nil
}
