package clickhouse

import (
	"context"
	"fmt"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

// HolderStore appends purchase events used to count holders per token.
type HolderStore struct {
	conn *Conn
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(conn *Conn) *HolderStore {
	return &HolderStore{conn: conn}
}

// Compile-time interface check.
var _ datastore.PurchaseWriter = (*HolderStore)(nil)

// AppendPurchase adds one event. Returns ErrDuplicateKey if tx_hash already exists.
func (s *HolderStore) AppendPurchase(ctx context.Context, rec models.PurchaseRecord) error {
	if err := datastore.ValidatePurchase(rec); err != nil {
		return err
	}

	// MergeTree does not enforce uniqueness at insert time
	exists, err := s.exists(ctx, rec.TxHash)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return datastore.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO curve_purchase_events (tx_hash, token_id, buyer, issuer, purchased_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(rec.TxHash, rec.TokenID.Hex(), rec.Buyer.Hex(), rec.Issuer.Hex(), rec.Timestamp); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// HolderCount returns the number of distinct buyers of token
func (s *HolderStore) HolderCount(ctx context.Context, token string) (uint64, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `
		SELECT uniqExact(buyer) FROM curve_purchase_events WHERE token_id = ?
	`, token)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("query holder count: %w", err)
	}
	return count, nil
}

func (s *HolderStore) exists(ctx context.Context, txHash string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `
		SELECT count() FROM curve_purchase_events WHERE tx_hash = ?
	`, txHash)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
