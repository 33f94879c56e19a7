package dispatch

import (
	"fmt"
	"math"
	"time"

	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
)

// DashboardDriver is one row of the live driver board.
type DashboardDriver struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Phone            string                 `json:"phone"`
	Shift            models.Shift           `json:"shift"`
	ActiveDeliveries int                    `json:"active_deliveries"`
	Location         *models.LocationSample `json:"location"`
	Status           string                 `json:"status"` // "delivering" or "available"
}

// DashboardStats is the store overview card.
type DashboardStats struct {
	ActiveDrivers   int `json:"active_drivers"`
	PendingOrders   int `json:"pending_orders"`
	OutForDelivery  int `json:"out_for_delivery"`
	TodayDeliveries int `json:"today_deliveries"`
	AvgDeliveryTime int `json:"avg_delivery_time"` // minutes
	DelayedOrders   int `json:"delayed_orders"`
}

// Alert flags a condition staff should look at.
type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	OrderID  string `json:"order_id,omitempty"`
	DriverID string `json:"driver_id,omitempty"`
}

// Analytics aggregates completed deliveries over a period.
type Analytics struct {
	Period          string                     `json:"period"`
	TotalDeliveries int                        `json:"total_deliveries"`
	TotalDistanceKm float64                    `json:"total_distance_km"`
	AvgDeliveryTime int                        `json:"avg_delivery_time"`
	ByPlatform      map[string]int             `json:"by_platform"`
	ByDriver        map[string]DriverBreakdown `json:"by_driver"`
}

// DriverBreakdown is the per-driver slice of Analytics.
type DriverBreakdown struct {
	Count           int     `json:"count"`
	TotalMinutes    int     `json:"total_minutes"`
	TotalDistanceKm float64 `json:"total_distance_km"`
}

const (
	delayedOrderAfter    = 45 * time.Minute
	unassignedOrderAfter = 10 * time.Minute
	driverInactiveAfter  = 10 * time.Minute
)

// DashboardDrivers lists every driver on an active shift with their latest
// position and delivering/available status.
func (e *Engine) DashboardDrivers() ([]DashboardDriver, error) {
	active := models.ShiftStatusActive
	shifts, err := e.ledger.ListShifts(store.ShiftFilter{Status: &active}, 0)
	if err != nil {
		return nil, err
	}

	out := make([]DashboardDriver, 0, len(shifts))
	for _, shift := range shifts {
		driver, err := e.ledger.GetUser(shift.DriverID)
		if err != nil {
			return nil, fmt.Errorf("shift %s references unknown driver %s: %v", shift.ID, shift.DriverID, err)
		}

		deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{DriverID: &shift.DriverID, ShiftID: &shift.ID})
		if err != nil {
			return nil, err
		}
		activeCount := 0
		for _, d := range deliveries {
			if d.Status != models.DeliveryStatusDelivered {
				activeCount++
			}
		}

		row := DashboardDriver{
			ID:               driver.ID,
			Name:             driver.Name,
			Phone:            driver.Phone,
			Shift:            shift,
			ActiveDeliveries: activeCount,
			Status:           "available",
		}
		if activeCount > 0 {
			row.Status = "delivering"
		}
		if loc, err := e.ledger.LatestLocation(store.LocationFilter{DriverID: &shift.DriverID}); err == nil {
			row.Location = loc
		}
		out = append(out, row)
	}
	return out, nil
}

// DashboardStats computes the overview counters.
func (e *Engine) DashboardStats() (*DashboardStats, error) {
	now := e.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Unix()

	stats := &DashboardStats{}

	active := models.ShiftStatusActive
	shifts, err := e.ledger.ListShifts(store.ShiftFilter{Status: &active}, 0)
	if err != nil {
		return nil, err
	}
	stats.ActiveDrivers = len(shifts)

	orders, err := e.ledger.ListOrders(store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		switch o.Status {
		case models.OrderStatusPending:
			stats.PendingOrders++
		case models.OrderStatusOutForDelivery:
			stats.OutForDelivery++
		}
		if e.isDelayed(o, now) {
			stats.DelayedOrders++
		}
	}

	delivered := models.DeliveryStatusDelivered
	deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{Status: &delivered})
	if err != nil {
		return nil, err
	}
	var totalMinutes int
	for _, d := range deliveries {
		if d.CompletedAt == nil || *d.CompletedAt < startOfDay {
			continue
		}
		stats.TodayDeliveries++
		if d.DurationMinutes != nil {
			totalMinutes += *d.DurationMinutes
		}
	}
	if stats.TodayDeliveries > 0 {
		stats.AvgDeliveryTime = int(math.Round(float64(totalMinutes) / float64(stats.TodayDeliveries)))
	}
	return stats, nil
}

func (e *Engine) isDelayed(o models.Order, now time.Time) bool {
	if o.Status != models.OrderStatusPending && o.Status != models.OrderStatusAssigned {
		return false
	}
	return now.Unix()-o.CreatedAt > int64(delayedOrderAfter.Seconds())
}

// Alerts flags delayed orders, orders unassigned too long, and drivers
// with an active delivery that stopped reporting locations.
func (e *Engine) Alerts() ([]Alert, error) {
	now := e.now()
	alerts := []Alert{}

	orders, err := e.ledger.ListOrders(store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		ageMinutes := (now.Unix() - o.CreatedAt) / 60
		if e.isDelayed(o, now) {
			alerts = append(alerts, Alert{
				Type:     "delayed_order",
				Severity: "high",
				Message:  fmt.Sprintf("Order %s is delayed (%d minutes)", o.ID, ageMinutes),
				OrderID:  o.ID,
			})
		} else if o.Status == models.OrderStatusPending && ageMinutes > int64(unassignedOrderAfter.Minutes()) {
			alerts = append(alerts, Alert{
				Type:     "unassigned_order",
				Severity: "medium",
				Message:  fmt.Sprintf("Order %s has been unassigned for %d minutes", o.ID, ageMinutes),
				OrderID:  o.ID,
			})
		}
	}

	active := models.ShiftStatusActive
	shifts, err := e.ledger.ListShifts(store.ShiftFilter{Status: &active}, 0)
	if err != nil {
		return nil, err
	}
	for _, shift := range shifts {
		deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{DriverID: &shift.DriverID, ShiftID: &shift.ID})
		if err != nil {
			return nil, err
		}
		hasActive := false
		for _, d := range deliveries {
			if d.Status.IsActive() {
				hasActive = true
				break
			}
		}
		if !hasActive {
			continue
		}
		loc, err := e.ledger.LatestLocation(store.LocationFilter{DriverID: &shift.DriverID})
		if err != nil {
			continue
		}
		inactiveMinutes := (now.UnixMilli() - loc.Timestamp) / 60000
		if inactiveMinutes > int64(driverInactiveAfter.Minutes()) {
			driver, err := e.ledger.GetUser(shift.DriverID)
			if err != nil {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     "driver_inactive",
				Severity: "medium",
				Message:  fmt.Sprintf("Driver %s has not updated location for %d minutes", driver.Name, inactiveMinutes),
				DriverID: driver.ID,
			})
		}
	}
	return alerts, nil
}

// Analytics aggregates completed deliveries since the start of the period:
// "today", "week" or "month".
func (e *Engine) Analytics(period string) (*Analytics, error) {
	now := e.now()
	var start time.Time
	switch period {
	case "week":
		start = now.AddDate(0, 0, -7)
	case "month":
		start = now.AddDate(0, -1, 0)
	default:
		period = "today"
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	startUnix := start.Unix()

	delivered := models.DeliveryStatusDelivered
	deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{Status: &delivered})
	if err != nil {
		return nil, err
	}

	out := &Analytics{
		Period:     period,
		ByPlatform: map[string]int{},
		ByDriver:   map[string]DriverBreakdown{},
	}
	var totalMinutes int
	for _, d := range deliveries {
		if d.CompletedAt == nil || *d.CompletedAt < startUnix {
			continue
		}
		out.TotalDeliveries++
		if d.DurationMinutes != nil {
			totalMinutes += *d.DurationMinutes
		}
		if d.DistanceKm != nil {
			out.TotalDistanceKm += *d.DistanceKm
		}
		if order, err := e.ledger.GetOrder(d.OrderID); err == nil {
			out.ByPlatform[order.Platform]++
		}
		if driver, err := e.ledger.GetUser(d.DriverID); err == nil {
			row := out.ByDriver[driver.Name]
			row.Count++
			if d.DurationMinutes != nil {
				row.TotalMinutes += *d.DurationMinutes
			}
			if d.DistanceKm != nil {
				row.TotalDistanceKm += *d.DistanceKm
			}
			out.ByDriver[driver.Name] = row
		}
	}
	if out.TotalDeliveries > 0 {
		out.AvgDeliveryTime = int(math.Round(float64(totalMinutes) / float64(out.TotalDeliveries)))
	}
	return out, nil
}
