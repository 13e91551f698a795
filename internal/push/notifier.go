package push

import (
	"context"
	"encoding/json"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/model"
)

// SubscriptionStore is the slice of the push-subscription repository the
// notifier needs.
type SubscriptionStore interface {
	ListByUserID(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notifier sends Web Push notifications to every registered subscription of
// a user. A Notifier built without VAPID keys is a no-op.
type Notifier struct {
	subs  SubscriptionStore
	vapid *webpush.Options
}

func NewNotifier(subs SubscriptionStore, publicKey, privateKey string) *Notifier {
	n := &Notifier{subs: subs}
	if publicKey != "" && privateKey != "" {
		n.vapid = &webpush.Options{
			Subscriber:      "rchat-push",
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		}
	}
	return n
}

// Enabled reports whether VAPID keys are configured.
func (n *Notifier) Enabled() bool { return n.vapid != nil }

// Notify delivers the notification to all of the user's subscriptions.
// Best effort: send failures are logged, stale endpoints (404/410) are
// dropped from the store.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if n.vapid == nil {
		return
	}
	subs, err := n.subs.ListByUserID(ctx, userID)
	if err != nil {
		logger.Errorf("push list subscriptions user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	if err != nil {
		logger.Errorf("push payload encode: %v", err)
		return
	}

	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			// Подписка протухла — браузер её отозвал.
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				logger.Errorf("push delete stale subscription: %v", err)
			}
		}
	}
}
