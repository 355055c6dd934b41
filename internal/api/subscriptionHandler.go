package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"chatrelay/internal/middleware"
	"chatrelay/internal/models"
	"chatrelay/internal/repository"
	"chatrelay/internal/types"
)

// SubscribeHandler registers a Web Push subscription for the
// authenticated user. Browsers call it once per device.
func SubscribeHandler(repoSubs repository.SubscriptionRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFrom(r.Context())
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var payload types.SubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("[SUBSCRIBE] Decode error: %v", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if payload.Endpoint == "" || payload.Keys.P256dh == "" || payload.Keys.Auth == "" {
			http.Error(w, "Endpoint and keys are required", http.StatusBadRequest)
			return
		}

		dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		sub := &models.PushSubscription{
			UserID:   claims.UserID.String(),
			Endpoint: payload.Endpoint,
			P256dh:   payload.Keys.P256dh,
			Auth:     payload.Keys.Auth,
		}
		if err := repoSubs.Save(dbctx, sub); err != nil {
			http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
			return
		}

		log.Printf("[SUBSCRIBE] Registered push endpoint for %s", claims.Username)
		w.WriteHeader(http.StatusCreated)
	}
}

// UnsubscribeHandler drops a Web Push subscription by endpoint.
func UnsubscribeHandler(repoSubs repository.SubscriptionRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.ClaimsFrom(r.Context()); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var payload struct {
			Endpoint string `json:"endpoint"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Endpoint == "" {
			http.Error(w, "Endpoint is required", http.StatusBadRequest)
			return
		}

		dbctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := repoSubs.DeleteByEndpoint(dbctx, payload.Endpoint); err != nil {
			http.Error(w, "Failed to remove subscription", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
