package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"

	"github.com/appodealstack/playkit"
)

// resultFromError maps an API error to a billing result. Errors that never
// reached Google are reported as a lost connection.
func (c *Client) resultFromError(err error) playkit.Result {
	if err == nil {
		return playkit.OK
	}
	if c.noteTransportError(err) {
		return playkit.Result{Code: playkit.ResponseServiceDisconnected, DebugMessage: err.Error()}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return playkit.Result{Code: codeForStatus(gerr.Code), DebugMessage: err.Error()}
	}
	return playkit.Result{Code: playkit.ResponseError, DebugMessage: err.Error()}
}

// noteTransportError drops the connection when err never reached Google and
// reports whether it did so. API errors and cancellations leave it up.
func (c *Client) noteTransportError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	c.logger.Warn().Err(err).Msg("Play Developer API unreachable")
	c.disconnect()
	return true
}

func codeForStatus(status int) playkit.ResponseCode {
	switch {
	case status == http.StatusNotFound:
		return playkit.ResponseItemUnavailable
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return playkit.ResponseDeveloperError
	case status == http.StatusConflict:
		return playkit.ResponseItemAlreadyOwned
	case status >= 500:
		return playkit.ResponseServiceUnavailable
	default:
		return playkit.ResponseError
	}
}

func (c *Client) disconnect() {
	c.mu.Lock()
	l := c.state
	wasConnected := c.svc != nil
	c.svc = nil
	c.mu.Unlock()

	if wasConnected && l != nil {
		go l.OnBillingServiceDisconnected()
	}
}

func inAppProductDetails(p *androidpublisher.InAppProduct) playkit.ProductDetails {
	d := playkit.ProductDetails{
		ProductID: p.Sku,
		Type:      playkit.ProductTypeInApp,
	}
	listing, ok := p.Listings[p.DefaultLanguage]
	if !ok {
		for _, l := range p.Listings {
			listing = l
			break
		}
	}
	d.Title = listing.Title
	d.Description = listing.Description
	if p.DefaultPrice != nil {
		micros, _ := strconv.ParseInt(p.DefaultPrice.PriceMicros, 10, 64)
		d.PriceMicros = micros
		d.CurrencyCode = p.DefaultPrice.Currency
		d.FormattedPrice = formatPrice(micros, d.CurrencyCode)
	}
	return d
}

func subscriptionProductDetails(s *androidpublisher.Subscription) playkit.ProductDetails {
	d := playkit.ProductDetails{
		ProductID: s.ProductId,
		Type:      playkit.ProductTypeSubs,
	}
	if len(s.Listings) > 0 {
		d.Title = s.Listings[0].Title
		d.Description = s.Listings[0].Description
	}
	for _, plan := range s.BasePlans {
		if len(plan.RegionalConfigs) == 0 || plan.RegionalConfigs[0].Price == nil {
			continue
		}
		price := plan.RegionalConfigs[0].Price
		d.PriceMicros = price.Units*1_000_000 + price.Nanos/1_000
		d.CurrencyCode = price.CurrencyCode
		d.FormattedPrice = formatPrice(d.PriceMicros, d.CurrencyCode)
		break
	}
	return d
}

func formatPrice(micros int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(micros)/1_000_000, currency)
}

// productPurchase converts a one-time purchase. The second result reports
// whether Google already considers it consumed.
func productPurchase(productID, token string, r *androidpublisher.ProductPurchase) (playkit.Purchase, bool) {
	p := playkit.Purchase{
		Token:        token,
		OrderID:      r.OrderId,
		Products:     []string{productID},
		Acknowledged: r.AcknowledgementState == 1,
		PurchaseTime: time.UnixMilli(r.PurchaseTimeMillis),
	}
	switch r.PurchaseState {
	case 0:
		p.State = playkit.PurchaseStatePurchased
	case 2:
		p.State = playkit.PurchaseStatePending
	default:
		p.State = playkit.PurchaseStateUnspecified
	}
	return p, r.ConsumptionState == 1
}

func subscriptionPurchase(subscriptionID, token string, r *androidpublisher.SubscriptionPurchaseV2) playkit.Purchase {
	p := playkit.Purchase{
		Token:        token,
		OrderID:      r.LatestOrderId,
		Acknowledged: r.AcknowledgementState == "ACKNOWLEDGEMENT_STATE_ACKNOWLEDGED",
	}
	for _, item := range r.LineItems {
		p.Products = append(p.Products, item.ProductId)
	}
	if len(p.Products) == 0 {
		p.Products = []string{subscriptionID}
	}
	if t, err := time.Parse(time.RFC3339, r.StartTime); err == nil {
		p.PurchaseTime = t
	}
	switch r.SubscriptionState {
	case "SUBSCRIPTION_STATE_ACTIVE", "SUBSCRIPTION_STATE_IN_GRACE_PERIOD":
		p.State = playkit.PurchaseStatePurchased
	case "SUBSCRIPTION_STATE_PENDING":
		p.State = playkit.PurchaseStatePending
	default:
		p.State = playkit.PurchaseStateUnspecified
	}
	return p
}
