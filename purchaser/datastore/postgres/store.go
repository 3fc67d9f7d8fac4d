package postgres

import (
	"context"
	"fmt"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

// Store implements datastore.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ datastore.Store = (*Store)(nil)

// AppendPurchase adds a purchase. Returns ErrDuplicateKey if tx_hash exists.
func (s *Store) AppendPurchase(ctx context.Context, rec models.PurchaseRecord) error {
	if err := datastore.ValidatePurchase(rec); err != nil {
		return err
	}
	query := `
		INSERT INTO curve_purchases (tx_hash, token_id, buyer, issuer, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.TxHash, rec.TokenID.Hex(), rec.Buyer.Hex(), rec.Issuer.Hex(), rec.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return datastore.ErrDuplicateKey
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// SaveTokenAddress adds a deployment. Returns ErrDuplicateKey if content_id or token exists.
func (s *Store) SaveTokenAddress(ctx context.Context, dep models.TokenDeployment) error {
	if err := datastore.ValidateDeployment(dep); err != nil {
		return err
	}
	query := `
		INSERT INTO curve_deployments (content_id, token, issuer, tx_hash, deployed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		dep.ContentID, dep.Token.Hex(), dep.Issuer.Hex(), dep.TxHash, dep.DeployedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return datastore.ErrDuplicateKey
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}
