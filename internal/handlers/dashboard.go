package handlers

import (
	"net/http"

	"fireway-backend/internal/dispatch"
	"fireway-backend/pkg/utils"
)

// DashboardDrivers lists on-duty drivers with their latest position.
func DashboardDrivers(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drivers, err := engine.DashboardDrivers()
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, drivers)
	}
}

// DashboardStats returns the live operations counters.
func DashboardStats(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := engine.DashboardStats()
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, stats)
	}
}

// DashboardAlerts surfaces delayed orders, stale assignments and
// inactive drivers.
func DashboardAlerts(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := engine.Alerts()
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, alerts)
	}
}

// DashboardAnalytics aggregates delivery performance for a period
// (today, week or month).
func DashboardAnalytics(engine *dispatch.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("period")
		if period == "" {
			period = "today"
		}

		analytics, err := engine.Analytics(period)
		if err != nil {
			respondErr(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, analytics)
	}
}
