// Package sandbox is an in-memory billing service implementing playkit.BillingClient.
// Purchases launched through it complete immediately; tests and demos drive
// connection failures and external purchases explicitly.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appodealstack/playkit"
)

// Client is a fake billing service. The zero value is not usable; use New.
type Client struct {
	mu        sync.Mutex
	listener  playkit.PurchasesUpdatedListener
	state     playkit.StateListener
	connected bool

	catalog map[string]playkit.ProductDetails
	owned   map[string]playkit.Purchase

	setupFailures int
	launchResult  playkit.Result
	consumeResult playkit.Result
	ackResult     playkit.Result

	consumeCalls map[string]int
	ackCalls     map[string]int
	connects     int

	now func() time.Time
}

// Option configures a sandbox Client.
type Option func(*Client)

// WithProducts seeds the product catalog served by QueryProductDetails.
func WithProducts(details ...playkit.ProductDetails) Option {
	return func(c *Client) {
		for _, d := range details {
			c.catalog[d.ProductID] = d
		}
	}
}

// WithSetupFailures makes the first n connection attempts fail with SERVICE_UNAVAILABLE.
func WithSetupFailures(n int) Option {
	return func(c *Client) { c.setupFailures = n }
}

// WithConsumeResult forces the result of every Consume call.
func WithConsumeResult(r playkit.Result) Option {
	return func(c *Client) { c.consumeResult = r }
}

// WithAcknowledgeResult forces the result of every Acknowledge call.
func WithAcknowledgeResult(r playkit.Result) Option {
	return func(c *Client) { c.ackResult = r }
}

// WithLaunchResult forces the result of LaunchBillingFlow. A non-OK result
// means no purchase is made.
func WithLaunchResult(r playkit.Result) Option {
	return func(c *Client) { c.launchResult = r }
}

// New returns a sandbox client.
func New(opts ...Option) *Client {
	c := &Client{
		catalog:      make(map[string]playkit.ProductDetails),
		owned:        make(map[string]playkit.Purchase),
		consumeCalls: make(map[string]int),
		ackCalls:     make(map[string]int),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultProducts returns details for playkit.DefaultCatalog.
func DefaultProducts() []playkit.ProductDetails {
	return []playkit.ProductDetails{
		{
			ProductID:      playkit.SKUCoins,
			Type:           playkit.ProductTypeInApp,
			Title:          "Pile of coins",
			Description:    "100 coins to spend in game",
			FormattedPrice: "$0.99",
			PriceMicros:    990000,
			CurrencyCode:   "USD",
		},
		{
			ProductID:      playkit.SKUInfiniteAccessMonthly,
			Type:           playkit.ProductTypeSubs,
			Title:          "Infinite access",
			Description:    "Unlimited access, billed monthly",
			FormattedPrice: "$4.99",
			PriceMicros:    4990000,
			CurrencyCode:   "USD",
		},
	}
}

func (c *Client) SetPurchasesUpdatedListener(l playkit.PurchasesUpdatedListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

func (c *Client) StartConnection(ctx context.Context, l playkit.StateListener) {
	c.mu.Lock()
	c.state = l
	c.connects++
	result := playkit.OK
	if c.setupFailures > 0 {
		c.setupFailures--
		result = playkit.Result{Code: playkit.ResponseServiceUnavailable, DebugMessage: "sandbox: setup failure"}
	}
	c.connected = result.IsOK()
	c.mu.Unlock()

	go l.OnBillingSetupFinished(result)
}

func (c *Client) EndConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// Disconnect simulates the billing service dropping the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	l := c.state
	c.connected = false
	c.mu.Unlock()
	if l != nil {
		go l.OnBillingServiceDisconnected()
	}
}

func (c *Client) LaunchBillingFlow(ctx context.Context, host playkit.Host, details playkit.ProductDetails) playkit.Result {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return playkit.Result{Code: playkit.ResponseServiceDisconnected}
	}
	if !c.launchResult.IsOK() {
		r := c.launchResult
		c.mu.Unlock()
		return r
	}
	if _, ok := c.catalog[details.ProductID]; !ok {
		c.mu.Unlock()
		return playkit.Result{Code: playkit.ResponseItemUnavailable, DebugMessage: details.ProductID}
	}
	for _, p := range c.owned {
		if len(p.Products) == 1 && p.Products[0] == details.ProductID {
			c.mu.Unlock()
			go c.notify(playkit.Result{Code: playkit.ResponseItemAlreadyOwned}, nil)
			return playkit.OK
		}
	}
	p := c.newPurchaseLocked(details.ProductID)
	c.mu.Unlock()

	go c.notify(playkit.OK, []playkit.Purchase{p})
	return playkit.OK
}

// Deliver records a purchase made outside the application (another device, a
// promo code) and reports it to the listener.
func (c *Client) Deliver(productIDs ...string) playkit.Purchase {
	c.mu.Lock()
	p := c.newPurchaseLocked(productIDs...)
	c.mu.Unlock()

	c.notify(playkit.OK, []playkit.Purchase{p})
	return p
}

// Cancel reports that the user abandoned a purchase flow.
func (c *Client) Cancel() {
	c.notify(playkit.Result{Code: playkit.ResponseUserCanceled}, nil)
}

func (c *Client) newPurchaseLocked(productIDs ...string) playkit.Purchase {
	p := playkit.Purchase{
		Token:        uuid.NewString(),
		OrderID:      fmt.Sprintf("GPA.sandbox-%s", uuid.NewString()[:8]),
		Products:     append([]string(nil), productIDs...),
		State:        playkit.PurchaseStatePurchased,
		PurchaseTime: c.now(),
	}
	c.owned[p.Token] = p
	return p
}

func (c *Client) notify(result playkit.Result, purchases []playkit.Purchase) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		l.OnPurchasesUpdated(result, purchases)
	}
}

func (c *Client) QueryProductDetails(ctx context.Context, productType playkit.ProductType, productIDs []string) (playkit.Result, []playkit.ProductDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return playkit.Result{Code: playkit.ResponseServiceDisconnected}, nil
	}
	var out []playkit.ProductDetails
	for _, id := range productIDs {
		if d, ok := c.catalog[id]; ok && d.Type == productType {
			out = append(out, d)
		}
	}
	return playkit.OK, out
}

func (c *Client) QueryPurchases(ctx context.Context, productType playkit.ProductType) (playkit.Result, []playkit.Purchase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return playkit.Result{Code: playkit.ResponseServiceDisconnected}, nil
	}
	out := []playkit.Purchase{}
	for _, p := range c.owned {
		if c.typeOfLocked(p) == productType {
			out = append(out, p)
		}
	}
	return playkit.OK, out
}

func (c *Client) typeOfLocked(p playkit.Purchase) playkit.ProductType {
	for _, id := range p.Products {
		if d, ok := c.catalog[id]; ok && d.Type == playkit.ProductTypeSubs {
			return playkit.ProductTypeSubs
		}
	}
	return playkit.ProductTypeInApp
}

func (c *Client) Consume(ctx context.Context, p playkit.Purchase) playkit.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumeCalls[p.Token]++
	if !c.consumeResult.IsOK() {
		return c.consumeResult
	}
	if _, ok := c.owned[p.Token]; !ok {
		return playkit.Result{Code: playkit.ResponseItemNotOwned, DebugMessage: p.Token}
	}
	delete(c.owned, p.Token)
	return playkit.OK
}

func (c *Client) Acknowledge(ctx context.Context, p playkit.Purchase) playkit.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackCalls[p.Token]++
	if !c.ackResult.IsOK() {
		return c.ackResult
	}
	owned, ok := c.owned[p.Token]
	if !ok {
		return playkit.Result{Code: playkit.ResponseItemNotOwned, DebugMessage: p.Token}
	}
	owned.Acknowledged = true
	c.owned[p.Token] = owned
	return playkit.OK
}

// ConsumeCalls returns how many times Consume was called for token.
func (c *Client) ConsumeCalls(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumeCalls[token]
}

// AcknowledgeCalls returns how many times Acknowledge was called for token.
func (c *Client) AcknowledgeCalls(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ackCalls[token]
}

// Connects returns the number of StartConnection calls.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Owned returns the purchases the sandbox still considers owned.
func (c *Client) Owned() []playkit.Purchase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]playkit.Purchase, 0, len(c.owned))
	for _, p := range c.owned {
		out = append(out, p)
	}
	return out
}
