package playkit

import "context"

// ProductDetailsStore caches product details fetched from the billing service.
// Implementations must be safe for concurrent use: the manager writes from
// billing callbacks and reads when launching a purchase flow.
type ProductDetailsStore interface {
	// GetProductDetails returns ErrProductNotFound when nothing is cached for productID.
	GetProductDetails(ctx context.Context, productID string) (ProductDetails, error)
	// SaveProductDetails stores details under details.ProductID.
	SaveProductDetails(ctx context.Context, details ProductDetails) error
}
