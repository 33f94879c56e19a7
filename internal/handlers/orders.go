package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fireway-backend/internal/dispatch"
	"fireway-backend/internal/middleware"
	"fireway-backend/pkg/utils"
)

// CreateOrder registers an inbound platform order and announces it to
// on-duty drivers.
func CreateOrder(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in dispatch.CreateOrderInput
		if !decodeJSON(w, r, &in) {
			return
		}

		order, err := engine.CreateOrder(in)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusCreated, order)
	}
}

// OrderFeed lists unclaimed pending orders for drivers.
func OrderFeed(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := engine.OrderFeed()
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, orders)
	}
}

// AllOrders lists every order with driver contact info for staff.
func AllOrders(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := engine.AllOrders(r.URL.Query().Get("status"))
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, orders)
	}
}

// ClaimOrder lets the calling driver take a pending order. Exactly one
// of concurrent claimers wins; the rest get a conflict.
func ClaimOrder(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orderID := chi.URLParam(r, "orderID")
		order, delivery, err := engine.ClaimOrder(user.UserID, orderID)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"order":    order,
			"delivery": delivery,
		})
	}
}

type AssignOrderRequest struct {
	DriverID string `json:"driver_id"`
}

// AssignOrder lets staff hand a pending order to a clocked-in driver.
func AssignOrder(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")

		var req AssignOrderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.DriverID == "" {
			utils.RespondError(w, http.StatusBadRequest, "driver_id is required")
			return
		}

		order, delivery, err := engine.AssignOrder(orderID, req.DriverID)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"order":    order,
			"delivery": delivery,
		})
	}
}

// MyOrders lists the caller's open stops in sequence order.
func MyOrders(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orders, err := engine.MyOrders(user.UserID)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, orders)
	}
}

// UpdateSequence re-orders the caller's pending stops.
func UpdateSequence(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var in dispatch.ResequenceInput
		if !decodeJSON(w, r, &in) {
			return
		}

		if err := engine.ResequenceDeliveries(user.UserID, in); err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
