// Package memory is an in-memory datastore for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

// Store is an in-memory implementation of datastore.Store.
type Store struct {
	mu          sync.RWMutex
	purchases   map[string]models.PurchaseRecord  // keyed by tx hash
	deployments map[string]models.TokenDeployment // keyed by content id
}

// Compile-time interface check.
var _ datastore.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		purchases:   make(map[string]models.PurchaseRecord),
		deployments: make(map[string]models.TokenDeployment),
	}
}

// AppendPurchase adds a record. Returns ErrDuplicateKey if the tx hash exists.
func (s *Store) AppendPurchase(_ context.Context, rec models.PurchaseRecord) error {
	if err := datastore.ValidatePurchase(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchases[rec.TxHash]; exists {
		return datastore.ErrDuplicateKey
	}
	s.purchases[rec.TxHash] = rec
	return nil
}

// SaveTokenAddress stores a deployment. Returns ErrDuplicateKey if the content id exists.
func (s *Store) SaveTokenAddress(_ context.Context, dep models.TokenDeployment) error {
	if err := datastore.ValidateDeployment(dep); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deployments[dep.ContentID]; exists {
		return datastore.ErrDuplicateKey
	}
	s.deployments[dep.ContentID] = dep
	return nil
}

// Purchases returns all records ordered by timestamp
func (s *Store) Purchases() []models.PurchaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PurchaseRecord, 0, len(s.purchases))
	for _, rec := range s.purchases {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].TxHash < out[j].TxHash
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Deployment returns the deployment for contentID
func (s *Store) Deployment(contentID string) (models.TokenDeployment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dep, ok := s.deployments[contentID]
	return dep, ok
}
