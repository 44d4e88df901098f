package playkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Manager is the central component of playkit.
// It owns the connection to the billing service, keeps the product-details
// cache warm, mirrors purchases to a PurchaseFeed and consumes or acknowledges
// purchases as they arrive.
// The Manager is safe for concurrent use; the billing client may invoke its
// listener methods from any goroutine.
type Manager struct {
	client  BillingClient
	catalog Catalog
	store   ProductDetailsStore
	metrics Metrics
	dlq     DeadLetterQueue
	logger  zerolog.Logger

	purchases *PurchaseFeed

	setupComplete atomic.Bool
	flowInProcess atomic.Bool

	mu       sync.Mutex
	inFlight map[string]struct{}

	dispatch  *dispatcher
	reconnect *reconnector

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewManager creates a Manager bound to client and registers it as the
// client's purchases-updated listener. The context bounds the lifetime of
// the Manager; call Start to open the connection.
func NewManager(ctx context.Context, client BillingClient, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("billing client cannot be nil")
	}
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.store == nil {
		cfg.store = NewInMemoryStore()
	}

	managerCtx, cancel := context.WithCancel(ctx)
	d, err := newDispatcher(managerCtx, cfg.workerPoolSize, cfg.queueSize, cfg.rateLimiter)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	m := &Manager{
		client:    client,
		catalog:   cfg.catalog,
		store:     cfg.store,
		metrics:   cfg.metrics,
		dlq:       cfg.dlq,
		logger:    cfg.logger.With().Str("component", "billing").Logger(),
		purchases: newPurchaseFeed(),
		inFlight:  make(map[string]struct{}),
		dispatch:  d,
		ctx:       managerCtx,
		cancel:    cancel,
		loopDone:  make(chan struct{}),
	}
	m.reconnect = newReconnector(cfg.backoff, m.startConnection, m.recordConnectionState, m.logger)

	client.SetPurchasesUpdatedListener(m)

	go func() {
		defer close(m.loopDone)
		m.reconnect.run(managerCtx)
	}()

	return m, nil
}

// Start asks the billing client to connect. Connection failures are retried
// with exponential backoff until Shutdown.
func (m *Manager) Start() error {
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	m.reconnect.notify(m.ctx, evStart)
	return nil
}

func (m *Manager) startConnection() {
	if m.ctx.Err() != nil {
		return
	}
	m.logger.Debug().Msg("Starting billing service connection")
	m.client.StartConnection(m.ctx, m)
}

// Shutdown stops the reconnect loop, abandons queued billing calls and ends the connection.
func (m *Manager) Shutdown() {
	m.cancel()
	<-m.loopDone
	m.dispatch.abort()
	m.client.EndConnection()
	m.setupComplete.Store(false)
}

// Purchases returns the observable purchase list.
func (m *Manager) Purchases() *PurchaseFeed { return m.purchases }

// Ready reports whether billing setup has completed on the current connection.
func (m *Manager) Ready() bool { return m.setupComplete.Load() }

// FlowInProcess reports whether a purchase flow was launched and has not reported back yet.
func (m *Manager) FlowInProcess() bool { return m.flowInProcess.Load() }

// ConnectionState returns the state of the reconnect state machine.
func (m *Manager) ConnectionState() ConnState { return m.reconnect.State() }

// Catalog returns the catalog the manager was configured with.
func (m *Manager) Catalog() Catalog { return m.catalog }

// ProductDetails returns the cached details for productID.
func (m *Manager) ProductDetails(ctx context.Context, productID string) (ProductDetails, error) {
	return m.store.GetProductDetails(ctx, productID)
}

// LaunchPurchaseFlow asks the billing client to present its purchase UI on host.
// Nothing is sent to the billing service when no details are cached for
// productID; ErrUnknownProduct is returned instead. Other store failures
// are wrapped in ErrStore.
func (m *Manager) LaunchPurchaseFlow(ctx context.Context, host Host, productID string) error {
	details, err := m.store.GetProductDetails(ctx, productID)
	if errors.Is(err, ErrProductNotFound) {
		m.logger.Debug().Str("product_id", productID).Msg("No product details cached, skipping billing flow")
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("product_id", productID).Msg("Failed to load product details")
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	// Raised before the call: the purchase update may arrive before LaunchBillingFlow returns.
	m.flowInProcess.Store(true)
	start := time.Now()
	result := m.client.LaunchBillingFlow(ctx, host, details)
	m.recordBillingCall("launch_billing_flow", result, time.Since(start))

	if !result.IsOK() {
		m.flowInProcess.Store(false)
		m.logger.Error().Str("product_id", productID).Str("result", result.String()).Msg("Flow billing failed")
		return fmt.Errorf("%w: %s", ErrBillingFlow, result)
	}
	m.logger.Debug().Str("product_id", productID).Msg("Flow billing success")
	return nil
}

// OnBillingSetupFinished implements StateListener.
func (m *Manager) OnBillingSetupFinished(result Result) {
	m.logger.Debug().Str("result", result.String()).Msg("onBillingSetupFinished")
	if !result.IsOK() {
		m.reconnect.notify(m.ctx, evSetupFailed)
		return
	}
	// A connection to the billing service exists; this says nothing about the
	// catalog being configured correctly.
	m.reconnect.notify(m.ctx, evConnected)
	m.setupComplete.Store(true)
	m.queryProductDetails()
	m.refreshPurchases()
}

// OnBillingServiceDisconnected implements StateListener.
func (m *Manager) OnBillingServiceDisconnected() {
	m.logger.Debug().Msg("onBillingServiceDisconnected")
	m.setupComplete.Store(false)
	m.reconnect.notify(m.ctx, evDisconnected)
}

// OnPurchasesUpdated implements PurchasesUpdatedListener. Whatever the
// response code, the in-process flag is cleared and purchases is published.
func (m *Manager) OnPurchasesUpdated(result Result, purchases []Purchase) {
	m.logger.Debug().Str("result", result.String()).Int("purchases", len(purchases)).Msg("onPurchasesUpdated")

	switch result.Code {
	case ResponseOK:
		if purchases == nil {
			m.logger.Error().Msg("onPurchasesUpdated: nil purchase list returned from OK response")
		} else {
			m.processPurchaseList(purchases)
		}
	case ResponseUserCanceled:
		m.logger.Debug().Msg("onPurchasesUpdated: user canceled the purchase")
	case ResponseItemAlreadyOwned:
		m.logger.Debug().Msg("onPurchasesUpdated: the user already owns this item")
	case ResponseDeveloperError:
		m.logger.Error().Str("result", result.String()).Msg(
			"onPurchasesUpdated: developer error means that the billing service does not recognize " +
				"the configuration. If you are just getting started, make sure the application is " +
				"configured correctly in the store console. The product IDs must match and the build " +
				"must be signed with release keys.")
	default:
		m.logger.Debug().Str("result", result.String()).Msg("onPurchasesUpdated: unhandled response code")
	}

	m.flowInProcess.Store(false)
	m.purchases.publish(purchases)
}
