package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fireway-backend/internal/dispatch"
	"fireway-backend/internal/middleware"
	"fireway-backend/internal/models"
	"fireway-backend/pkg/utils"
)

// StartDelivery marks a stop as underway. The driver must be outside
// the store geofence.
func StartDelivery(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		deliveryID := chi.URLParam(r, "deliveryID")

		var in dispatch.CoordinateInput
		if !decodeJSON(w, r, &in) {
			return
		}

		delivery, err := engine.StartDelivery(user.UserID, deliveryID, in)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, delivery)
	}
}

// RecordLocation ingests a GPS sample for an in-flight delivery.
func RecordLocation(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		deliveryID := chi.URLParam(r, "deliveryID")

		var in dispatch.LocationInput
		if !decodeJSON(w, r, &in) {
			return
		}

		if err := engine.RecordLocation(user.UserID, &deliveryID, in); err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// CompleteDelivery closes out a stop and updates shift totals.
func CompleteDelivery(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		deliveryID := chi.URLParam(r, "deliveryID")

		var in dispatch.CompleteInput
		if !decodeJSON(w, r, &in) {
			return
		}

		delivery, err := engine.CompleteDelivery(user.UserID, deliveryID, in)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, delivery)
	}
}

// DeliveryDetail returns one delivery joined with its order and driver.
func DeliveryDetail(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID := chi.URLParam(r, "deliveryID")
		detail, err := engine.DeliveryDetail(deliveryID)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, detail)
	}
}

// DeliveryLog lists deliveries for staff with optional filters.
func DeliveryLog(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f dispatch.DeliveryLogFilter

		if s := r.URL.Query().Get("status"); s != "" {
			status := models.DeliveryStatus(s)
			f.Status = &status
		}
		if d := r.URL.Query().Get("driver_id"); d != "" {
			f.DriverID = &d
		}
		if s := r.URL.Query().Get("start_date"); s != "" {
			if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
				f.StartDate = &ts
			}
		}
		if s := r.URL.Query().Get("end_date"); s != "" {
			if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
				f.EndDate = &ts
			}
		}

		deliveries, err := engine.DeliveryLog(f)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, deliveries)
	}
}
