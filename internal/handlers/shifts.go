package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fireway-backend/internal/dispatch"
	"fireway-backend/internal/middleware"
	"fireway-backend/pkg/utils"
)

// ClockIn starts a shift for the calling driver. The driver must be
// inside the store geofence.
func ClockIn(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var in dispatch.CoordinateInput
		if !decodeJSON(w, r, &in) {
			return
		}

		shift, err := engine.ClockIn(user.UserID, in)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusCreated, shift)
	}
}

// ClockOut ends the calling driver's active shift.
func ClockOut(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var in dispatch.CoordinateInput
		if !decodeJSON(w, r, &in) {
			return
		}

		shift, err := engine.ClockOut(user.UserID, in)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, shift)
	}
}

// CurrentShift returns the caller's active shift, or on_duty=false.
func CurrentShift(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		shift, openDeliveries, err := engine.CurrentShift(user.UserID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if shift == nil {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"on_duty": false})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"on_duty":         true,
			"shift":           shift,
			"open_deliveries": openDeliveries,
		})
	}
}

// ShiftHistory lists the caller's recent shifts.
func ShiftHistory(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		shifts, err := engine.ShiftHistory(user.UserID, limit)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, shifts)
	}
}

// ShiftSummary returns delivery totals for one of the caller's shifts.
func ShiftSummary(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		shiftID := chi.URLParam(r, "shiftID")
		summary, err := engine.ShiftSummary(user.UserID, shiftID)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, summary)
	}
}
