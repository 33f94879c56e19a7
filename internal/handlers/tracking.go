package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fireway-backend/internal/store"
	"fireway-backend/internal/tracking"
	"fireway-backend/pkg/utils"
)

// TrackDelivery is the public customer view for a tracking token. No
// authentication; the token is the capability.
func TrackDelivery(projector *tracking.Projector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		projection, err := projector.Project(token)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, projection)
	}
}

// TrackingLink returns the shareable tracking URL for a delivery.
func TrackingLink(ledger store.Ledger, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID := chi.URLParam(r, "deliveryID")
		delivery, err := ledger.GetDelivery(deliveryID)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"tracking_token": delivery.TrackingToken,
			"tracking_url":   tracking.URL(baseURL, delivery.TrackingToken),
		})
	}
}
