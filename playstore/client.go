// Package playstore implements playkit.BillingClient on top of the Google Play
// Developer API. It runs on a backend: purchases are learned from Real-time
// Developer Notifications instead of a device-side purchase flow.
package playstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"

	"github.com/appodealstack/playkit"
)

// Config identifies the application and the credentials used to reach the API.
type Config struct {
	PackageName        string
	ServiceAccountJSON string
	Catalog            playkit.Catalog
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClientOptions appends options passed to androidpublisher.NewService,
// for example a custom endpoint or HTTP client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *Client) { c.clientOpts = append(c.clientOpts, opts...) }
}

// Client is a playkit.BillingClient backed by the Android Publisher API.
type Client struct {
	cfg        Config
	logger     zerolog.Logger
	clientOpts []option.ClientOption

	mu       sync.Mutex
	svc      *androidpublisher.Service
	state    playkit.StateListener
	listener playkit.PurchasesUpdatedListener
	owned    map[string]playkit.Purchase
}

// New validates cfg and returns a disconnected client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.PackageName = strings.TrimSpace(cfg.PackageName)
	if cfg.PackageName == "" {
		return nil, errors.New("playstore: package name is empty")
	}
	if len(cfg.Catalog.Products()) == 0 {
		cfg.Catalog = playkit.DefaultCatalog()
	}
	c := &Client{
		cfg:    cfg,
		logger: zerolog.Nop(),
		owned:  make(map[string]playkit.Purchase),
	}
	for _, opt := range opts {
		opt(c)
	}
	if strings.TrimSpace(cfg.ServiceAccountJSON) == "" && len(c.clientOpts) == 0 {
		return nil, errors.New("playstore: service account JSON is empty")
	}
	c.logger = c.logger.With().Str("component", "playstore").Str("package", cfg.PackageName).Logger()
	return c, nil
}

func (c *Client) SetPurchasesUpdatedListener(l playkit.PurchasesUpdatedListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// StartConnection creates the API service. Creating it does not hit the
// network; failures here come from bad credentials or options.
func (c *Client) StartConnection(ctx context.Context, l playkit.StateListener) {
	opts := c.clientOpts
	if c.cfg.ServiceAccountJSON != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON([]byte(c.cfg.ServiceAccountJSON)),
			option.WithScopes(androidpublisher.AndroidpublisherScope),
		}, opts...)
	}

	svc, err := androidpublisher.NewService(ctx, opts...)

	c.mu.Lock()
	c.state = l
	result := playkit.OK
	if err != nil {
		c.logger.Error().Err(err).Msg("androidpublisher.NewService failed")
		result = playkit.Result{Code: playkit.ResponseServiceUnavailable, DebugMessage: err.Error()}
	} else {
		c.svc = svc
	}
	c.mu.Unlock()

	go l.OnBillingSetupFinished(result)
}

func (c *Client) EndConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.svc = nil
}

func (c *Client) service() *androidpublisher.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svc
}

var notConnected = playkit.Result{Code: playkit.ResponseServiceDisconnected, DebugMessage: "playstore: not connected"}

// LaunchBillingFlow is not available on a backend; purchase screens run on the device.
func (c *Client) LaunchBillingFlow(ctx context.Context, host playkit.Host, details playkit.ProductDetails) playkit.Result {
	return playkit.Result{
		Code:         playkit.ResponseFeatureNotSupported,
		DebugMessage: "purchase flows are launched on the device",
	}
}

func (c *Client) QueryProductDetails(ctx context.Context, productType playkit.ProductType, productIDs []string) (playkit.Result, []playkit.ProductDetails) {
	svc := c.service()
	if svc == nil {
		return notConnected, nil
	}

	var out []playkit.ProductDetails
	for _, id := range productIDs {
		var (
			d   playkit.ProductDetails
			err error
		)
		switch productType {
		case playkit.ProductTypeSubs:
			d, err = c.subscriptionDetails(ctx, svc, id)
		default:
			d, err = c.inAppDetails(ctx, svc, id)
		}
		if err != nil {
			result := c.resultFromError(err)
			if result.Code == playkit.ResponseItemUnavailable {
				c.logger.Debug().Str("product_id", id).Msg("product not found in Play Console")
				continue
			}
			return result, nil
		}
		out = append(out, d)
	}
	return playkit.OK, out
}

func (c *Client) inAppDetails(ctx context.Context, svc *androidpublisher.Service, id string) (playkit.ProductDetails, error) {
	resp, err := svc.Inappproducts.Get(c.cfg.PackageName, id).Context(ctx).Do()
	if err != nil {
		return playkit.ProductDetails{}, fmt.Errorf("google inappproducts.get: %w", err)
	}
	return inAppProductDetails(resp), nil
}

func (c *Client) subscriptionDetails(ctx context.Context, svc *androidpublisher.Service, id string) (playkit.ProductDetails, error) {
	resp, err := svc.Monetization.Subscriptions.Get(c.cfg.PackageName, id).Context(ctx).Do()
	if err != nil {
		return playkit.ProductDetails{}, fmt.Errorf("google subscriptions.get: %w", err)
	}
	return subscriptionProductDetails(resp), nil
}

// QueryPurchases returns the purchases reported by notifications that are
// still owned, filtered by product type.
func (c *Client) QueryPurchases(ctx context.Context, productType playkit.ProductType) (playkit.Result, []playkit.Purchase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc == nil {
		return notConnected, nil
	}
	out := []playkit.Purchase{}
	for _, p := range c.owned {
		if c.typeOf(p) == productType {
			out = append(out, p)
		}
	}
	return playkit.OK, out
}

func (c *Client) typeOf(p playkit.Purchase) playkit.ProductType {
	for _, id := range p.Products {
		if t, ok := c.cfg.Catalog.TypeOf(id); ok && t == playkit.ProductTypeSubs {
			return playkit.ProductTypeSubs
		}
	}
	return playkit.ProductTypeInApp
}

func (c *Client) Consume(ctx context.Context, p playkit.Purchase) playkit.Result {
	svc := c.service()
	if svc == nil {
		return notConnected
	}
	for _, id := range p.Products {
		err := svc.Purchases.Products.Consume(c.cfg.PackageName, id, p.Token).Context(ctx).Do()
		if err != nil {
			return c.resultFromError(fmt.Errorf("google products.consume: %w", err))
		}
	}

	c.mu.Lock()
	delete(c.owned, p.Token)
	c.mu.Unlock()
	return playkit.OK
}

func (c *Client) Acknowledge(ctx context.Context, p playkit.Purchase) playkit.Result {
	svc := c.service()
	if svc == nil {
		return notConnected
	}
	for _, id := range p.Products {
		var err error
		if t, _ := c.cfg.Catalog.TypeOf(id); t == playkit.ProductTypeSubs {
			req := &androidpublisher.SubscriptionPurchasesAcknowledgeRequest{}
			err = svc.Purchases.Subscriptions.Acknowledge(c.cfg.PackageName, id, p.Token, req).Context(ctx).Do()
			if err != nil {
				err = fmt.Errorf("google subscriptions.acknowledge: %w", err)
			}
		} else {
			req := &androidpublisher.ProductPurchasesAcknowledgeRequest{}
			err = svc.Purchases.Products.Acknowledge(c.cfg.PackageName, id, p.Token, req).Context(ctx).Do()
			if err != nil {
				err = fmt.Errorf("google products.acknowledge: %w", err)
			}
		}
		if err != nil {
			return c.resultFromError(err)
		}
	}

	c.mu.Lock()
	if owned, ok := c.owned[p.Token]; ok {
		owned.Acknowledged = true
		c.owned[p.Token] = owned
	}
	c.mu.Unlock()
	return playkit.OK
}

// HandleNotification resolves the purchase a notification refers to and
// reports it to the purchases listener.
func (c *Client) HandleNotification(ctx context.Context, n DeveloperNotification) error {
	if n.PackageName != "" && n.PackageName != c.cfg.PackageName {
		return fmt.Errorf("notification for package %q, expected %q", n.PackageName, c.cfg.PackageName)
	}
	svc := c.service()
	if svc == nil {
		return errors.New("playstore: not connected")
	}

	switch {
	case n.TestNotification != nil:
		c.logger.Info().Str("version", n.TestNotification.Version).Msg("test notification received")
		return nil
	case n.OneTimeProductNotification != nil:
		return c.handleOneTimeProduct(ctx, svc, n.OneTimeProductNotification)
	case n.SubscriptionNotification != nil:
		return c.handleSubscription(ctx, svc, n.SubscriptionNotification)
	default:
		c.logger.Debug().Msg("notification without payload ignored")
		return nil
	}
}

func (c *Client) handleOneTimeProduct(ctx context.Context, svc *androidpublisher.Service, n *OneTimeProductNotification) error {
	if n.NotificationType == OneTimeProductCanceled {
		c.forget(n.PurchaseToken)
		c.logger.Debug().Str("sku", n.SKU).Msg("one-time purchase canceled")
		return nil
	}

	resp, err := svc.Purchases.Products.Get(c.cfg.PackageName, n.SKU, n.PurchaseToken).Context(ctx).Do()
	if err != nil {
		c.noteTransportError(err)
		return fmt.Errorf("google products.get: %w", err)
	}
	p, consumed := productPurchase(n.SKU, n.PurchaseToken, resp)
	if consumed {
		c.forget(n.PurchaseToken)
		c.logger.Debug().Str("sku", n.SKU).Msg("purchase already consumed")
		return nil
	}
	c.remember(p)
	return nil
}

func (c *Client) handleSubscription(ctx context.Context, svc *androidpublisher.Service, n *SubscriptionNotification) error {
	resp, err := svc.Purchases.Subscriptionsv2.Get(c.cfg.PackageName, n.PurchaseToken).Context(ctx).Do()
	if err != nil {
		c.noteTransportError(err)
		return fmt.Errorf("google subscriptionsv2.get: %w", err)
	}
	p := subscriptionPurchase(n.SubscriptionID, n.PurchaseToken, resp)
	if p.State == playkit.PurchaseStateUnspecified {
		c.forget(n.PurchaseToken)
		c.logger.Debug().
			Str("subscription_id", n.SubscriptionID).
			Str("state", resp.SubscriptionState).
			Msg("subscription no longer owned")
		return nil
	}
	c.remember(p)
	return nil
}

func (c *Client) remember(p playkit.Purchase) {
	c.mu.Lock()
	c.owned[p.Token] = p
	l := c.listener
	c.mu.Unlock()

	if l != nil {
		l.OnPurchasesUpdated(playkit.OK, []playkit.Purchase{p})
	}
}

func (c *Client) forget(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owned, token)
}
