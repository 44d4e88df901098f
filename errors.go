package playkit

import "errors"

var (
	// ErrUnknownProduct is returned when no product details are cached for an identifier.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrProductNotFound is returned by a ProductDetailsStore on a cache miss.
	ErrProductNotFound = errors.New("product details not found")
	// ErrBillingFlow indicates the billing service refused to present the purchase flow.
	ErrBillingFlow = errors.New("billing flow failed")
	// ErrStore wraps a product-details store failure other than a cache miss.
	ErrStore = errors.New("product details store failed")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("manager is closed")
)
