package playstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"

	"github.com/appodealstack/playkit"
)

const testPackage = "com.example.game"

// fakePlay serves the subset of the Android Publisher API the client uses.
type fakePlay struct {
	mu    sync.Mutex
	calls []string

	products      map[string]*androidpublisher.ProductPurchase
	subscriptions map[string]*androidpublisher.SubscriptionPurchaseV2
}

func newFakePlay() *fakePlay {
	return &fakePlay{
		products:      make(map[string]*androidpublisher.ProductPurchase),
		subscriptions: make(map[string]*androidpublisher.SubscriptionPurchaseV2),
	}
}

func (f *fakePlay) called(method, suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, method+" ") && strings.HasSuffix(c, suffix) {
			n++
		}
	}
	return n
}

func (f *fakePlay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	prefix := "/androidpublisher/v3/applications/" + testPackage + "/"
	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(path, "/")

	switch {
	case strings.HasPrefix(path, "inappproducts/"):
		if parts[1] != playkit.SKUCoins {
			writeError(w, http.StatusNotFound, "no such product")
			return
		}
		writeJSON(w, &androidpublisher.InAppProduct{
			Sku:             playkit.SKUCoins,
			DefaultLanguage: "en-US",
			DefaultPrice:    &androidpublisher.Price{Currency: "USD", PriceMicros: "990000"},
			Listings: map[string]androidpublisher.InAppProductListing{
				"en-US": {Title: "Pile of coins", Description: "100 coins"},
			},
		})
	case strings.HasPrefix(path, "subscriptions/"):
		writeJSON(w, &androidpublisher.Subscription{
			ProductId: parts[1],
			Listings:  []*androidpublisher.SubscriptionListing{{Title: "Infinite access", LanguageCode: "en-US"}},
			BasePlans: []*androidpublisher.BasePlan{{
				BasePlanId: "monthly",
				RegionalConfigs: []*androidpublisher.RegionalBasePlanConfig{{
					RegionCode: "US",
					Price:      &androidpublisher.Money{CurrencyCode: "USD", Units: 4, Nanos: 990_000_000},
				}},
			}},
		})
	case strings.HasPrefix(path, "purchases/products/") && r.Method == http.MethodGet:
		token := parts[4]
		f.mu.Lock()
		p, ok := f.products[token]
		f.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "no such purchase")
			return
		}
		writeJSON(w, p)
	case strings.HasPrefix(path, "purchases/subscriptionsv2/"):
		token := parts[3]
		f.mu.Lock()
		s, ok := f.subscriptions[token]
		f.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "no such subscription")
			return
		}
		writeJSON(w, s)
	case r.Method == http.MethodPost:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	default:
		writeError(w, http.StatusBadRequest, "unexpected request")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}

// recorder captures listener callbacks.
type recorder struct {
	setup        chan playkit.Result
	disconnected chan struct{}

	mu      sync.Mutex
	updates [][]playkit.Purchase
}

func newRecorder() *recorder {
	return &recorder{setup: make(chan playkit.Result, 4), disconnected: make(chan struct{}, 4)}
}

func (r *recorder) OnBillingSetupFinished(result playkit.Result) { r.setup <- result }
func (r *recorder) OnBillingServiceDisconnected()               { r.disconnected <- struct{}{} }
func (r *recorder) OnPurchasesUpdated(result playkit.Result, purchases []playkit.Purchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, purchases)
}

func (r *recorder) lastUpdate() []playkit.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return nil
	}
	return r.updates[len(r.updates)-1]
}

func connectedClient(t *testing.T, play *fakePlay) (*Client, *recorder, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(play)
	t.Cleanup(srv.Close)

	c, err := New(Config{PackageName: testPackage, Catalog: playkit.DefaultCatalog()},
		WithClientOptions(
			option.WithEndpoint(srv.URL+"/"),
			option.WithoutAuthentication(),
			option.WithHTTPClient(srv.Client()),
		),
	)
	require.NoError(t, err)

	rec := newRecorder()
	c.SetPurchasesUpdatedListener(rec)
	c.StartConnection(context.Background(), rec)
	select {
	case result := <-rec.setup:
		require.True(t, result.IsOK(), result.String())
	case <-time.After(2 * time.Second):
		t.Fatal("setup did not finish")
	}
	return c, rec, srv
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{PackageName: testPackage})
	assert.Error(t, err, "credentials are required")

	c, err := New(Config{PackageName: " " + testPackage + " ", ServiceAccountJSON: "{}"})
	require.NoError(t, err)
	assert.Equal(t, testPackage, c.cfg.PackageName)
	assert.NotEmpty(t, c.cfg.Catalog.Products(), "default catalog applied")
}

func TestClient_NotConnected(t *testing.T) {
	c, err := New(Config{PackageName: testPackage, ServiceAccountJSON: "{}"})
	require.NoError(t, err)

	result, _ := c.QueryPurchases(context.Background(), playkit.ProductTypeInApp)
	assert.Equal(t, playkit.ResponseServiceDisconnected, result.Code)
	assert.Equal(t, playkit.ResponseServiceDisconnected, c.Consume(context.Background(), playkit.Purchase{}).Code)
}

func TestClient_LaunchBillingFlowNotSupported(t *testing.T) {
	c, _, _ := connectedClient(t, newFakePlay())
	result := c.LaunchBillingFlow(context.Background(), nil, playkit.ProductDetails{ProductID: playkit.SKUCoins})
	assert.Equal(t, playkit.ResponseFeatureNotSupported, result.Code)
}

func TestClient_QueryProductDetails(t *testing.T) {
	c, _, _ := connectedClient(t, newFakePlay())
	ctx := context.Background()

	result, details := c.QueryProductDetails(ctx, playkit.ProductTypeInApp, []string{playkit.SKUCoins, "missing"})
	require.True(t, result.IsOK())
	require.Len(t, details, 1, "unknown products are omitted")
	assert.Equal(t, playkit.ProductDetails{
		ProductID:      playkit.SKUCoins,
		Type:           playkit.ProductTypeInApp,
		Title:          "Pile of coins",
		Description:    "100 coins",
		FormattedPrice: "0.99 USD",
		PriceMicros:    990000,
		CurrencyCode:   "USD",
	}, details[0])

	result, details = c.QueryProductDetails(ctx, playkit.ProductTypeSubs, []string{playkit.SKUInfiniteAccessMonthly})
	require.True(t, result.IsOK())
	require.Len(t, details, 1)
	assert.Equal(t, playkit.SKUInfiniteAccessMonthly, details[0].ProductID)
	assert.Equal(t, int64(4990000), details[0].PriceMicros)
	assert.Equal(t, "4.99 USD", details[0].FormattedPrice)
}

func TestClient_OneTimeNotificationConsume(t *testing.T) {
	play := newFakePlay()
	play.products["tok-1"] = &androidpublisher.ProductPurchase{
		OrderId:            "GPA.1",
		PurchaseState:      0,
		PurchaseTimeMillis: 1700000000000,
	}
	c, rec, _ := connectedClient(t, play)
	ctx := context.Background()

	err := c.HandleNotification(ctx, DeveloperNotification{
		PackageName: testPackage,
		OneTimeProductNotification: &OneTimeProductNotification{
			NotificationType: OneTimeProductPurchased,
			PurchaseToken:    "tok-1",
			SKU:              playkit.SKUCoins,
		},
	})
	require.NoError(t, err)

	update := rec.lastUpdate()
	require.Len(t, update, 1)
	assert.Equal(t, "tok-1", update[0].Token)
	assert.Equal(t, "GPA.1", update[0].OrderID)
	assert.Equal(t, playkit.PurchaseStatePurchased, update[0].State)
	assert.Equal(t, []string{playkit.SKUCoins}, update[0].Products)

	result, owned := c.QueryPurchases(ctx, playkit.ProductTypeInApp)
	require.True(t, result.IsOK())
	assert.Len(t, owned, 1)

	require.True(t, c.Consume(ctx, update[0]).IsOK())
	assert.Equal(t, 1, play.called(http.MethodPost, "/tokens/tok-1:consume"))

	_, owned = c.QueryPurchases(ctx, playkit.ProductTypeInApp)
	assert.Empty(t, owned, "consumed purchases are forgotten")
}

func TestClient_ConsumedPurchaseNotReported(t *testing.T) {
	play := newFakePlay()
	play.products["tok-2"] = &androidpublisher.ProductPurchase{ConsumptionState: 1}
	c, rec, _ := connectedClient(t, play)

	err := c.HandleNotification(context.Background(), DeveloperNotification{
		OneTimeProductNotification: &OneTimeProductNotification{
			NotificationType: OneTimeProductPurchased,
			PurchaseToken:    "tok-2",
			SKU:              playkit.SKUCoins,
		},
	})
	require.NoError(t, err)
	assert.Nil(t, rec.lastUpdate())
}

func TestClient_SubscriptionNotificationAcknowledge(t *testing.T) {
	play := newFakePlay()
	play.subscriptions["sub-1"] = &androidpublisher.SubscriptionPurchaseV2{
		LatestOrderId:        "GPA.2",
		SubscriptionState:    "SUBSCRIPTION_STATE_ACTIVE",
		AcknowledgementState: "ACKNOWLEDGEMENT_STATE_PENDING",
		StartTime:            "2024-01-02T03:04:05Z",
		LineItems:            []*androidpublisher.SubscriptionPurchaseLineItem{{ProductId: playkit.SKUInfiniteAccessMonthly}},
	}
	c, rec, _ := connectedClient(t, play)
	ctx := context.Background()

	err := c.HandleNotification(ctx, DeveloperNotification{
		SubscriptionNotification: &SubscriptionNotification{
			NotificationType: SubscriptionPurchased,
			PurchaseToken:    "sub-1",
			SubscriptionID:   playkit.SKUInfiniteAccessMonthly,
		},
	})
	require.NoError(t, err)

	update := rec.lastUpdate()
	require.Len(t, update, 1)
	assert.False(t, update[0].Acknowledged)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), update[0].PurchaseTime)

	require.True(t, c.Acknowledge(ctx, update[0]).IsOK())
	assert.Equal(t, 1, play.called(http.MethodPost, "/purchases/subscriptions/"+playkit.SKUInfiniteAccessMonthly+"/tokens/sub-1:acknowledge"))
	assert.Equal(t, 0, play.called(http.MethodPost, ":consume"))

	_, owned := c.QueryPurchases(ctx, playkit.ProductTypeSubs)
	require.Len(t, owned, 1)
	assert.True(t, owned[0].Acknowledged)
}

func TestClient_ExpiredSubscriptionForgotten(t *testing.T) {
	play := newFakePlay()
	play.subscriptions["sub-2"] = &androidpublisher.SubscriptionPurchaseV2{SubscriptionState: "SUBSCRIPTION_STATE_EXPIRED"}
	c, rec, _ := connectedClient(t, play)

	err := c.HandleNotification(context.Background(), DeveloperNotification{
		SubscriptionNotification: &SubscriptionNotification{
			NotificationType: SubscriptionExpired,
			PurchaseToken:    "sub-2",
			SubscriptionID:   playkit.SKUInfiniteAccessMonthly,
		},
	})
	require.NoError(t, err)
	assert.Nil(t, rec.lastUpdate())
}

func TestClient_WrongPackageRejected(t *testing.T) {
	c, _, _ := connectedClient(t, newFakePlay())
	err := c.HandleNotification(context.Background(), DeveloperNotification{PackageName: "com.other"})
	assert.Error(t, err)
}

func TestClient_TransportErrorDisconnects(t *testing.T) {
	c, rec, srv := connectedClient(t, newFakePlay())
	srv.Close()

	result := c.Consume(context.Background(), playkit.Purchase{Token: "t", Products: []string{playkit.SKUCoins}})
	assert.Equal(t, playkit.ResponseServiceDisconnected, result.Code)

	select {
	case <-rec.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
	result, _ = c.QueryPurchases(context.Background(), playkit.ProductTypeInApp)
	assert.Equal(t, playkit.ResponseServiceDisconnected, result.Code)
}

func TestClient_NotificationErrors(t *testing.T) {
	c, rec, srv := connectedClient(t, newFakePlay())
	ctx := context.Background()
	unknown := DeveloperNotification{
		SubscriptionNotification: &SubscriptionNotification{
			NotificationType: SubscriptionPurchased,
			PurchaseToken:    "missing",
			SubscriptionID:   playkit.SKUInfiniteAccessMonthly,
		},
	}

	// An API error keeps the connection.
	assert.Error(t, c.HandleNotification(ctx, unknown))
	assert.NotNil(t, c.service())
	select {
	case <-rec.disconnected:
		t.Fatal("API error must not disconnect")
	case <-time.After(50 * time.Millisecond):
	}

	srv.Close()
	assert.Error(t, c.HandleNotification(ctx, unknown))
	select {
	case <-rec.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
	assert.Nil(t, c.service())
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   playkit.ResponseCode
	}{
		{http.StatusNotFound, playkit.ResponseItemUnavailable},
		{http.StatusBadRequest, playkit.ResponseDeveloperError},
		{http.StatusUnauthorized, playkit.ResponseDeveloperError},
		{http.StatusForbidden, playkit.ResponseDeveloperError},
		{http.StatusConflict, playkit.ResponseItemAlreadyOwned},
		{http.StatusServiceUnavailable, playkit.ResponseServiceUnavailable},
		{http.StatusTooManyRequests, playkit.ResponseError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeForStatus(tt.status), "status %d", tt.status)
	}
}

func TestDecodePushMessage(t *testing.T) {
	inner := `{"version":"1.0","packageName":"com.example.game","eventTimeMillis":"1700000000000",` +
		`"oneTimeProductNotification":{"version":"1.0","notificationType":1,"purchaseToken":"tok","sku":"coins"}}`
	body := `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(inner)) +
		`","messageId":"42"},"subscription":"projects/p/subscriptions/s"}`

	n, err := DecodePushMessage([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, testPackage, n.PackageName)
	require.NotNil(t, n.OneTimeProductNotification)
	assert.Equal(t, "tok", n.OneTimeProductNotification.PurchaseToken)
	assert.Equal(t, playkit.SKUCoins, n.OneTimeProductNotification.SKU)

	_, err = DecodePushMessage([]byte(`{"message":{}}`))
	assert.Error(t, err)
	_, err = DecodePushMessage([]byte(`not json`))
	assert.Error(t, err)
}
