package playkit

import (
	"context"
	"fmt"
)

// ResponseCode is the status the billing service attaches to every reply.
type ResponseCode int

const (
	ResponseOK ResponseCode = iota
	ResponseUserCanceled
	ResponseServiceUnavailable
	ResponseBillingUnavailable
	ResponseItemUnavailable
	ResponseDeveloperError
	ResponseError
	ResponseItemAlreadyOwned
	ResponseItemNotOwned
	ResponseServiceDisconnected
	ResponseFeatureNotSupported
	ResponseNetworkError
)

var responseCodeNames = map[ResponseCode]string{
	ResponseOK:                  "OK",
	ResponseUserCanceled:        "USER_CANCELED",
	ResponseServiceUnavailable:  "SERVICE_UNAVAILABLE",
	ResponseBillingUnavailable:  "BILLING_UNAVAILABLE",
	ResponseItemUnavailable:     "ITEM_UNAVAILABLE",
	ResponseDeveloperError:      "DEVELOPER_ERROR",
	ResponseError:               "ERROR",
	ResponseItemAlreadyOwned:    "ITEM_ALREADY_OWNED",
	ResponseItemNotOwned:        "ITEM_NOT_OWNED",
	ResponseServiceDisconnected: "SERVICE_DISCONNECTED",
	ResponseFeatureNotSupported: "FEATURE_NOT_SUPPORTED",
	ResponseNetworkError:        "NETWORK_ERROR",
}

func (c ResponseCode) String() string {
	if name, ok := responseCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}

// Result is the outcome of a billing call.
type Result struct {
	Code         ResponseCode
	DebugMessage string
}

// OK is a successful result with no message.
var OK = Result{Code: ResponseOK}

// IsOK reports whether the call succeeded.
func (r Result) IsOK() bool { return r.Code == ResponseOK }

func (r Result) String() string {
	if r.DebugMessage == "" {
		return r.Code.String()
	}
	return r.Code.String() + ": " + r.DebugMessage
}

// Host is an opaque handle to the UI that presents the purchase screen.
// It is forwarded untouched to the billing client.
type Host = any

// StateListener receives connection lifecycle callbacks.
type StateListener interface {
	OnBillingSetupFinished(result Result)
	OnBillingServiceDisconnected()
}

// PurchasesUpdatedListener receives purchase updates, either from a purchase flow
// or from purchases made outside the application.
type PurchasesUpdatedListener interface {
	OnPurchasesUpdated(result Result, purchases []Purchase)
}

// BillingClient abstracts the billing service. Connection and purchase
// notifications are delivered to listeners, possibly from other goroutines;
// the remaining methods block until the service replies.
type BillingClient interface {
	SetPurchasesUpdatedListener(l PurchasesUpdatedListener)
	// StartConnection begins connecting and returns immediately. The outcome is
	// reported to l.OnBillingSetupFinished.
	StartConnection(ctx context.Context, l StateListener)
	EndConnection()

	LaunchBillingFlow(ctx context.Context, host Host, details ProductDetails) Result
	QueryProductDetails(ctx context.Context, productType ProductType, productIDs []string) (Result, []ProductDetails)
	QueryPurchases(ctx context.Context, productType ProductType) (Result, []Purchase)
	Consume(ctx context.Context, purchase Purchase) Result
	Acknowledge(ctx context.Context, purchase Purchase) Result
}
