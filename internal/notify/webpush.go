// Package notify fans out Web Push notifications to subscribed
// endpoints. Delivery is best-effort: individual endpoint failures are
// logged and never abort the rest, and endpoints that are gone are
// unregistered on the spot.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"chatrelay/internal/repository"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Notifier is the narrow interface the chat core sees.
type Notifier interface {
	NotifyRoom(room, title, body string, exclude []string)
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Room  string `json:"room"`
}

type WebPushNotifier struct {
	subs       repository.SubscriptionRepo
	vapidPub   string
	vapidPriv  string
	subscriber string
}

func NewWebPushNotifier(subs repository.SubscriptionRepo, vapidPub, vapidPriv, subscriber string) *WebPushNotifier {
	return &WebPushNotifier{
		subs:       subs,
		vapidPub:   vapidPub,
		vapidPriv:  vapidPriv,
		subscriber: subscriber,
	}
}

// NotifyRoom pushes to every registered endpoint except the excluded
// users (the sender and anyone with the room on screen).
// Subscriptions are account-level, not room-level, so the room rides
// in the payload for the client to route. Callers treat this as
// fire-and-forget and run it off the hot path.
func (n *WebPushNotifier) NotifyRoom(room, title, body string, exclude []string) {
	if n.vapidPriv == "" {
		return
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	subs, err := n.subs.ListAll(ctx)
	if err != nil {
		log.Printf("[PUSH] Listing subscriptions failed: %v", err)
		return
	}

	payload, err := json.Marshal(pushPayload{Title: title, Body: body, Room: room})
	if err != nil {
		log.Printf("[PUSH] Payload marshal failed: %v", err)
		return
	}

	sent := 0
	for _, sub := range subs {
		if skip[sub.UserID] {
			continue
		}

		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      n.subscriber,
			VAPIDPublicKey:  n.vapidPub,
			VAPIDPrivateKey: n.vapidPriv,
			TTL:             60,
		})
		if err != nil {
			log.Printf("[PUSH] Send failed for %s: %v", sub.UserID, err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			log.Printf("[PUSH] Endpoint gone for %s, unregistering", sub.UserID)
			_ = n.subs.DeleteByEndpoint(ctx, sub.Endpoint)
		} else {
			sent++
		}
		resp.Body.Close()
	}

	if sent > 0 {
		log.Printf("[PUSH] Notified %d endpoint(s) for room %s", sent, room)
	}
}
