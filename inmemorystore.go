package playkit

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is an in-process ProductDetailsStore.
type InMemoryStore struct {
	details map[string]ProductDetails
	mu      sync.RWMutex
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		details: make(map[string]ProductDetails),
	}
}

// GetProductDetails retrieves cached details for productID.
func (s *InMemoryStore) GetProductDetails(ctx context.Context, productID string) (ProductDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.details[productID]
	if !ok {
		return ProductDetails{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return d, nil
}

// SaveProductDetails caches details, replacing any previous entry for the same product.
func (s *InMemoryStore) SaveProductDetails(ctx context.Context, details ProductDetails) error {
	if details.ProductID == "" {
		return fmt.Errorf("product details without product id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.details[details.ProductID] = details
	return nil
}
