package playkit

import (
	"context"
	"time"
)

// isConsumable classifies a purchase. Scanning stops at the first
// non-consumable product that follows a consumable one; such mixed purchases
// are reported and treated as non-consumable.
func (m *Manager) isConsumable(p Purchase) bool {
	consumable := false
	for _, product := range p.Products {
		if m.catalog.IsConsumable(product) {
			consumable = true
			continue
		}
		if consumable {
			m.logger.Error().
				Strs("products", p.Products).
				Str("purchase_token", p.Token).
				Msg("Purchase cannot contain a mixture of consumable and non-consumable items")
			return false
		}
	}
	return consumable
}

func (m *Manager) processPurchaseList(purchases []Purchase) {
	if len(purchases) == 0 {
		m.logger.Debug().Msg("Empty purchase list.")
		return
	}
	for _, p := range purchases {
		if p.State != PurchaseStatePurchased {
			continue
		}
		switch {
		case m.isConsumable(p):
			m.recordPurchaseAction("consume")
			m.consumePurchase(p)
		case !p.Acknowledged:
			m.recordPurchaseAction("acknowledge")
			m.acknowledgePurchase(p)
		default:
			m.recordPurchaseAction("none")
		}
	}
}

// consumePurchase is fire-and-forget. A second call for a purchase whose
// consumption is still outstanding is ignored.
func (m *Manager) consumePurchase(p Purchase) {
	m.mu.Lock()
	if _, busy := m.inFlight[p.Token]; busy {
		m.mu.Unlock()
		m.logger.Debug().Str("purchase_token", p.Token).Msg("Consumption already in process, skipping")
		return
	}
	m.inFlight[p.Token] = struct{}{}
	n := len(m.inFlight)
	m.mu.Unlock()
	m.recordInFlight(n)

	m.logger.Debug().Str("purchase_token", p.Token).Msg("Start consumption flow.")
	err := m.dispatch.Submit(func(ctx context.Context) {
		start := time.Now()
		result := m.client.Consume(ctx, p)
		m.recordBillingCall("consume", result, time.Since(start))
		m.releaseInFlight(p.Token)

		if result.IsOK() {
			m.logger.Debug().Str("purchase_token", p.Token).Msg("Consumption successful. Delivering entitlement.")
		} else {
			m.logger.Error().Str("purchase_token", p.Token).Str("result", result.String()).Msg("Error while consuming")
			m.deadLetter(ctx, "consume", p, result)
		}
		m.logger.Debug().Str("purchase_token", p.Token).Msg("End consumption flow.")
	})
	if err != nil {
		m.releaseInFlight(p.Token)
		m.logger.Error().Err(err).Str("purchase_token", p.Token).Msg("Could not schedule consumption")
	}
}

func (m *Manager) releaseInFlight(token string) {
	m.mu.Lock()
	delete(m.inFlight, token)
	n := len(m.inFlight)
	m.mu.Unlock()
	m.recordInFlight(n)
}

func (m *Manager) consumptionInFlight(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[token]
	return ok
}

func (m *Manager) acknowledgePurchase(p Purchase) {
	m.logger.Debug().Str("purchase_token", p.Token).Msg("Start acknowledge flow.")
	err := m.dispatch.Submit(func(ctx context.Context) {
		start := time.Now()
		result := m.client.Acknowledge(ctx, p)
		m.recordBillingCall("acknowledge", result, time.Since(start))

		if result.IsOK() {
			m.logger.Debug().Str("purchase_token", p.Token).Msg("Acknowledge successful.")
		} else {
			m.logger.Error().Str("purchase_token", p.Token).Str("result", result.String()).Msg("Error while acknowledging")
			m.deadLetter(ctx, "acknowledge", p, result)
		}
		m.logger.Debug().Str("purchase_token", p.Token).Msg("End acknowledge flow.")
	})
	if err != nil {
		m.logger.Error().Err(err).Str("purchase_token", p.Token).Msg("Could not schedule acknowledgement")
	}
}

func (m *Manager) deadLetter(ctx context.Context, operation string, p Purchase, result Result) {
	if m.dlq == nil {
		return
	}
	op := &FailedOperation{
		Operation:     operation,
		PurchaseToken: p.Token,
		Products:      append([]string(nil), p.Products...),
		Result:        result,
		Timestamp:     time.Now(),
	}
	if err := m.dlq.Add(ctx, op); err != nil {
		m.logger.Warn().Err(err).Str("operation", operation).Msg("Failed to record failed billing operation")
	}
}

// queryProductDetails refreshes the cache, one query per product type.
func (m *Manager) queryProductDetails() {
	for _, t := range []ProductType{ProductTypeInApp, ProductTypeSubs} {
		ids := m.catalog.IDs(t)
		if len(ids) == 0 {
			continue
		}
		productType := t
		err := m.dispatch.Submit(func(ctx context.Context) {
			start := time.Now()
			result, details := m.client.QueryProductDetails(ctx, productType, ids)
			m.recordBillingCall("query_product_details", result, time.Since(start))
			m.onProductDetailsResponse(ctx, result, details)
		})
		if err != nil {
			m.logger.Error().Err(err).Str("product_type", string(productType)).Msg("Could not schedule product details query")
		}
	}
}

func (m *Manager) onProductDetailsResponse(ctx context.Context, result Result, details []ProductDetails) {
	m.logger.Debug().Str("result", result.String()).Msg("onProductDetailsResponse")
	if !result.IsOK() {
		return
	}
	if len(details) == 0 {
		m.logger.Error().Msg("onProductDetailsResponse: found null or empty product details. " +
			"Check to see if the products you requested are correctly published in the store console.")
		return
	}
	for _, d := range details {
		if err := m.store.SaveProductDetails(ctx, d); err != nil {
			m.logger.Error().Err(err).Str("product_id", d.ProductID).Msg("Failed to cache product details")
		}
	}
}

// refreshPurchases re-reads owned purchases so anything bought while the
// connection was down gets consumed or acknowledged.
func (m *Manager) refreshPurchases() {
	for _, t := range []ProductType{ProductTypeInApp, ProductTypeSubs} {
		productType := t
		err := m.dispatch.Submit(func(ctx context.Context) {
			start := time.Now()
			result, purchases := m.client.QueryPurchases(ctx, productType)
			m.recordBillingCall("query_purchases", result, time.Since(start))
			if !result.IsOK() {
				m.logger.Error().Str("product_type", string(productType)).Str("result", result.String()).Msg("Problem getting purchases")
				return
			}
			m.processPurchaseList(purchases)
		})
		if err != nil {
			m.logger.Error().Err(err).Str("product_type", string(productType)).Msg("Could not schedule purchase refresh")
		}
	}
	m.logger.Debug().Msg("Refreshing purchases started.")
}
