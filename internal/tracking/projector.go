// Package tracking builds the customer-safe read view behind a delivery's
// public tracking token. It only reads the ledger, never mutates it.
package tracking

import (
	"fmt"
	"math"
	"strings"
	"time"

	"fireway-backend/internal/geo"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
)

// AvgSpeedKmh is the assumed urban driving speed used for the ETA.
const AvgSpeedKmh = 30.0

// URL builds the public tracking link handed to notification senders.
func URL(baseURL, token string) string {
	return strings.TrimSuffix(baseURL, "/") + "/track/" + token
}

// OrderView is the customer-visible subset of an order.
type OrderView struct {
	ID              string             `json:"id"`
	Platform        string             `json:"platform"`
	CustomerName    string             `json:"customer_name"`
	CustomerAddress string             `json:"customer_address"`
	Items           models.OrderItems  `json:"items"`
	Status          models.OrderStatus `json:"status"`
}

// DeliveryView is the customer-visible subset of a delivery.
type DeliveryView struct {
	Status      models.DeliveryStatus `json:"status"`
	StartedAt   *int64                `json:"started_at"`
	CompletedAt *int64                `json:"completed_at"`
	ETAMinutes  *int                  `json:"eta"`
}

// DriverView redacts the driver to a first name.
type DriverView struct {
	Name string `json:"name"`
}

// LocationView is the last broadcast position.
type LocationView struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Stage is one step of the fixed five-stage timeline. Completed is a
// monotone function of the delivery status.
type Stage struct {
	Status    string `json:"status"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
	Timestamp *int64 `json:"timestamp"`
}

// Projection is the full public tracking view.
type Projection struct {
	Order    OrderView     `json:"order"`
	Delivery DeliveryView  `json:"delivery"`
	Driver   *DriverView   `json:"driver"`
	Location *LocationView `json:"location"`
	Timeline []Stage       `json:"timeline"`
}

// Projector derives tracking projections from the ledger.
type Projector struct {
	ledger store.Ledger
	now    func() time.Time
}

// NewProjector creates a projector over the ledger.
func NewProjector(ledger store.Ledger) *Projector {
	return &Projector{ledger: ledger, now: time.Now}
}

// SetClock overrides the projector clock. Test hook.
func (p *Projector) SetClock(now func() time.Time) { p.now = now }

// Project resolves a tracking token into the public view. An unknown token
// is a not-found failure; a delivery without an owning order is an
// internal invariant violation and surfaces as a plain error.
func (p *Projector) Project(token string) (*Projection, error) {
	delivery, err := p.ledger.GetDeliveryByToken(token)
	if err != nil {
		return nil, err
	}
	order, err := p.ledger.GetOrder(delivery.OrderID)
	if err != nil {
		return nil, fmt.Errorf("delivery %s has no owning order %s: %v", delivery.ID, delivery.OrderID, err)
	}

	proj := &Projection{
		Order: OrderView{
			ID:              order.ID,
			Platform:        order.Platform,
			CustomerName:    order.CustomerName,
			CustomerAddress: order.CustomerAddress,
			Items:           order.Items,
			Status:          order.Status,
		},
		Delivery: DeliveryView{
			Status:      delivery.Status,
			StartedAt:   delivery.StartedAt,
			CompletedAt: delivery.CompletedAt,
		},
		Timeline: p.timeline(*delivery, *order),
	}

	if driver, err := p.ledger.GetUser(delivery.DriverID); err == nil {
		proj.Driver = &DriverView{Name: firstName(driver.Name)}
	}

	deliveryID := delivery.ID
	if loc, err := p.ledger.LatestLocation(store.LocationFilter{DeliveryID: &deliveryID}); err == nil {
		proj.Location = &LocationView{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Timestamp: loc.Timestamp,
		}
		if delivery.Status != models.DeliveryStatusDelivered {
			eta := etaMinutes(
				geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude},
				geo.Point{Latitude: order.CustomerLatitude, Longitude: order.CustomerLongitude},
			)
			proj.Delivery.ETAMinutes = &eta
		}
	}
	return proj, nil
}

// etaMinutes estimates remaining minutes from the straight-line distance
// at the assumed urban speed.
func etaMinutes(from, to geo.Point) int {
	distanceKm := geo.Distance(from, to) / 1000
	return int(math.Round(distanceKm / AvgSpeedKmh * 60))
}

func (p *Projector) timeline(delivery models.Delivery, order models.Order) []Stage {
	var nearAt *int64
	if delivery.Status.AtLeast(models.DeliveryStatusNear) {
		now := p.now().Unix()
		nearAt = &now
	}
	orderCreated := order.CreatedAt
	deliveryCreated := delivery.CreatedAt
	return []Stage{
		{Status: "received", Label: "Order received", Completed: true, Timestamp: &orderCreated},
		{Status: "assigned", Label: "Driver assigned", Completed: true, Timestamp: &deliveryCreated},
		{Status: "started", Label: "Out for delivery", Completed: delivery.Status.AtLeast(models.DeliveryStatusStarted), Timestamp: delivery.StartedAt},
		{Status: "near", Label: "Driver is near", Completed: delivery.Status.AtLeast(models.DeliveryStatusNear), Timestamp: nearAt},
		{Status: "delivered", Label: "Order delivered", Completed: delivery.Status.AtLeast(models.DeliveryStatusDelivered), Timestamp: delivery.CompletedAt},
	}
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return full
	}
	return fields[0]
}
