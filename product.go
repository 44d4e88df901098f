package playkit

import (
	"fmt"
	"time"
)

// ProductType distinguishes consumable one-time products from subscriptions.
type ProductType string

const (
	// ProductTypeInApp is a one-time product that is consumed after delivery and can be bought again.
	ProductTypeInApp ProductType = "inapp"
	// ProductTypeSubs is a recurring product that is acknowledged once and never consumed.
	ProductTypeSubs ProductType = "subs"
)

// Known product identifiers of the demo catalog.
const (
	SKUCoins                 = "coins"
	SKUInfiniteAccessMonthly = "infinite_access_monthly"
)

// Product is a catalog entry.
type Product struct {
	ID   string
	Type ProductType
}

// Catalog is the static set of product identifiers the application knows about,
// partitioned into consumable and subscription products.
type Catalog struct {
	products []Product
	types    map[string]ProductType
}

// NewCatalog builds a catalog. Later entries override earlier ones with the same ID.
func NewCatalog(products ...Product) Catalog {
	c := Catalog{types: make(map[string]ProductType, len(products))}
	for _, p := range products {
		if _, seen := c.types[p.ID]; !seen {
			c.products = append(c.products, p)
		} else {
			for i := range c.products {
				if c.products[i].ID == p.ID {
					c.products[i].Type = p.Type
				}
			}
		}
		c.types[p.ID] = p.Type
	}
	return c
}

// DefaultCatalog returns the coins + monthly subscription catalog.
func DefaultCatalog() Catalog {
	return NewCatalog(
		Product{ID: SKUCoins, Type: ProductTypeInApp},
		Product{ID: SKUInfiniteAccessMonthly, Type: ProductTypeSubs},
	)
}

// IsConsumable reports whether id belongs to the consumable (in-app) set.
func (c Catalog) IsConsumable(id string) bool {
	return c.types[id] == ProductTypeInApp
}

// TypeOf returns the product type for id.
func (c Catalog) TypeOf(id string) (ProductType, bool) {
	t, ok := c.types[id]
	return t, ok
}

// IDs returns the identifiers of the given type in registration order.
func (c Catalog) IDs(t ProductType) []string {
	var ids []string
	for _, p := range c.products {
		if p.Type == t {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Products returns every catalog entry in registration order.
func (c Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// ProductDetails is the metadata the billing service returns for a product.
type ProductDetails struct {
	ProductID      string      `json:"productId"`
	Type           ProductType `json:"type"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	FormattedPrice string      `json:"formattedPrice"`
	PriceMicros    int64       `json:"priceMicros"`
	CurrencyCode   string      `json:"currencyCode"`
}

// PurchaseState is the lifecycle state the billing service reports for a purchase.
type PurchaseState int

const (
	PurchaseStateUnspecified PurchaseState = iota
	PurchaseStatePurchased
	PurchaseStatePending
)

func (s PurchaseState) String() string {
	switch s {
	case PurchaseStatePurchased:
		return "purchased"
	case PurchaseStatePending:
		return "pending"
	default:
		return "unspecified"
	}
}

func (s PurchaseState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *PurchaseState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "purchased":
		*s = PurchaseStatePurchased
	case "pending":
		*s = PurchaseStatePending
	case "unspecified":
		*s = PurchaseStateUnspecified
	default:
		return fmt.Errorf("unknown purchase state %q", text)
	}
	return nil
}

// Purchase is a record returned by the billing service.
type Purchase struct {
	Token        string        `json:"purchaseToken"`
	OrderID      string        `json:"orderId,omitempty"`
	Products     []string      `json:"products"`
	State        PurchaseState `json:"purchaseState"`
	Acknowledged bool          `json:"acknowledged"`
	PurchaseTime time.Time     `json:"purchaseTime"`
}
