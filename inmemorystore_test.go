package playkit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	details := ProductDetails{
		ProductID:      SKUCoins,
		Type:           ProductTypeInApp,
		Title:          "100 coins",
		FormattedPrice: "0.99 USD",
	}

	err := store.SaveProductDetails(ctx, details)
	assert.NoError(t, err)

	got, err := store.GetProductDetails(ctx, SKUCoins)
	assert.NoError(t, err)
	assert.Equal(t, details, got)

	// Missing product
	_, err = store.GetProductDetails(ctx, "missing")
	assert.True(t, errors.Is(err, ErrProductNotFound))

	// Overwrite
	details.Title = "200 coins"
	assert.NoError(t, store.SaveProductDetails(ctx, details))
	got, err = store.GetProductDetails(ctx, SKUCoins)
	assert.NoError(t, err)
	assert.Equal(t, "200 coins", got.Title)

	// Empty id is rejected
	assert.Error(t, store.SaveProductDetails(ctx, ProductDetails{}))
}
