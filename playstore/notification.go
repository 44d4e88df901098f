package playstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// One-time product notification types.
const (
	OneTimeProductPurchased = 1
	OneTimeProductCanceled  = 2
)

// Subscription notification types.
const (
	SubscriptionRecovered            = 1
	SubscriptionRenewed              = 2
	SubscriptionCanceled             = 3
	SubscriptionPurchased            = 4
	SubscriptionOnHold               = 5
	SubscriptionInGracePeriod        = 6
	SubscriptionRestarted            = 7
	SubscriptionPriceChangeConfirmed = 8
	SubscriptionDeferred             = 9
	SubscriptionPaused               = 10
	SubscriptionPauseScheduleChanged = 11
	SubscriptionRevoked              = 12
	SubscriptionExpired              = 13
	SubscriptionPendingCanceled      = 20
)

// DeveloperNotification is a Real-time Developer Notification published by Google Play.
type DeveloperNotification struct {
	Version                    string                      `json:"version"`
	PackageName                string                      `json:"packageName"`
	EventTimeMillis            string                      `json:"eventTimeMillis"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

type OneTimeProductNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SKU              string `json:"sku"`
}

type SubscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

type TestNotification struct {
	Version string `json:"version"`
}

// PushMessage is the body Pub/Sub sends to a push subscription endpoint.
// Data is base64 in the wire format; encoding/json decodes it into raw bytes.
type PushMessage struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
		Attributes  map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePushMessage extracts the developer notification from a Pub/Sub push body.
func DecodePushMessage(body []byte) (DeveloperNotification, error) {
	var msg PushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return DeveloperNotification{}, fmt.Errorf("decode push message: %w", err)
	}
	if len(msg.Message.Data) == 0 {
		return DeveloperNotification{}, errors.New("push message has no data")
	}
	var n DeveloperNotification
	if err := json.Unmarshal(msg.Message.Data, &n); err != nil {
		return DeveloperNotification{}, fmt.Errorf("decode developer notification: %w", err)
	}
	return n, nil
}
