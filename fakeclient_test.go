package playkit

import (
	"context"
	"sync"
	"time"
)

type fakeClient struct {
	mu       sync.Mutex
	listener PurchasesUpdatedListener

	setupResults []Result
	connects     int
	ended        bool

	launchResult Result
	launches     []ProductDetails

	details map[ProductType][]ProductDetails
	owned   map[ProductType][]Purchase

	consumeResult Result
	consumeGate   chan struct{}
	consumed      map[string]int

	ackResult    Result
	ackDelay     time.Duration
	acknowledged map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		details:      make(map[ProductType][]ProductDetails),
		owned:        make(map[ProductType][]Purchase),
		consumed:     make(map[string]int),
		acknowledged: make(map[string]int),
	}
}

func (f *fakeClient) SetPurchasesUpdatedListener(l PurchasesUpdatedListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeClient) StartConnection(ctx context.Context, l StateListener) {
	f.mu.Lock()
	result := OK
	if f.connects < len(f.setupResults) {
		result = f.setupResults[f.connects]
	}
	f.connects++
	f.mu.Unlock()
	go l.OnBillingSetupFinished(result)
}

func (f *fakeClient) EndConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
}

func (f *fakeClient) LaunchBillingFlow(ctx context.Context, host Host, details ProductDetails) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches = append(f.launches, details)
	return f.launchResult
}

func (f *fakeClient) QueryProductDetails(ctx context.Context, productType ProductType, productIDs []string) (Result, []ProductDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return OK, f.details[productType]
}

func (f *fakeClient) QueryPurchases(ctx context.Context, productType ProductType) (Result, []Purchase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return OK, f.owned[productType]
}

func (f *fakeClient) Consume(ctx context.Context, p Purchase) Result {
	f.mu.Lock()
	gate := f.consumeGate
	f.consumed[p.Token]++
	result := f.consumeResult
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return result
}

func (f *fakeClient) Acknowledge(ctx context.Context, p Purchase) Result {
	f.mu.Lock()
	f.acknowledged[p.Token]++
	result, delay := f.ackResult, f.ackDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return result
}

func (f *fakeClient) ackTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acknowledged)
}

func (f *fakeClient) consumeCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumed[token]
}

func (f *fakeClient) ackCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acknowledged[token]
}

func (f *fakeClient) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeClient) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launches)
}
