package dispatch

import (
	"sort"

	"fireway-backend/internal/errs"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"
)

// OrderWithDriver is the staff order-list row.
type OrderWithDriver struct {
	models.Order
	Driver *models.ContactInfo `json:"driver,omitempty"`
}

// OrderWithDelivery is the driver's stop-list row.
type OrderWithDelivery struct {
	models.Order
	Delivery *models.Delivery `json:"delivery,omitempty"`
}

// DeliveryDetail joins a delivery with its order and driver contact.
type DeliveryDetail struct {
	Delivery models.Delivery     `json:"delivery"`
	Order    *models.Order       `json:"order,omitempty"`
	Driver   *models.ContactInfo `json:"driver,omitempty"`
}

// DeliveryLogFilter narrows the staff delivery log.
type DeliveryLogFilter struct {
	Status    *models.DeliveryStatus
	DriverID  *string
	StartDate *int64
	EndDate   *int64
}

// CurrentShift returns the driver's active shift and the count of its
// undelivered deliveries, or nil when the driver is off duty.
func (e *Engine) CurrentShift(driverID string) (*models.Shift, int, error) {
	shift, err := e.ledger.ActiveShift(driverID)
	if err != nil {
		return nil, 0, nil
	}
	deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{DriverID: &driverID, ShiftID: &shift.ID})
	if err != nil {
		return nil, 0, err
	}
	open := 0
	for _, d := range deliveries {
		if d.Status != models.DeliveryStatusDelivered {
			open++
		}
	}
	return shift, open, nil
}

// ShiftHistory lists the driver's most recent shifts, newest first.
func (e *Engine) ShiftHistory(driverID string, limit int) ([]models.Shift, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.ledger.ListShifts(store.ShiftFilter{DriverID: &driverID}, limit)
}

// ShiftSummary aggregates one of the caller's shifts.
func (e *Engine) ShiftSummary(driverID, shiftID string) (*models.ShiftSummary, error) {
	shift, err := e.ledger.GetShift(shiftID)
	if err != nil {
		return nil, err
	}
	if shift.DriverID != driverID {
		return nil, errs.NewNotFoundError("shift", shiftID)
	}

	deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{ShiftID: &shiftID})
	if err != nil {
		return nil, err
	}

	summary := &models.ShiftSummary{Shift: *shift, TotalDeliveries: len(deliveries)}
	var totalMinutes int
	for _, d := range deliveries {
		if d.Status == models.DeliveryStatusDelivered {
			summary.CompletedDeliveries++
			if d.DurationMinutes != nil {
				totalMinutes += *d.DurationMinutes
			}
		}
		if d.DistanceKm != nil {
			summary.TotalDistanceKm += *d.DistanceKm
		}
	}
	if summary.CompletedDeliveries > 0 {
		summary.AvgDeliveryMinutes = float64(totalMinutes) / float64(summary.CompletedDeliveries)
	}
	return summary, nil
}

// OrderFeed lists pending orders available for claiming, oldest first.
func (e *Engine) OrderFeed() ([]models.Order, error) {
	pending := models.OrderStatusPending
	return e.ledger.ListOrders(store.OrderFilter{Status: &pending})
}

// AllOrders is the staff order list, optionally filtered by status,
// enriched with assigned-driver contact info and sorted newest first.
func (e *Engine) AllOrders(status string) ([]OrderWithDriver, error) {
	var f store.OrderFilter
	if status != "" {
		st := models.OrderStatus(status)
		f.Status = &st
	}
	orders, err := e.ledger.ListOrders(f)
	if err != nil {
		return nil, err
	}

	out := make([]OrderWithDriver, 0, len(orders))
	for _, o := range orders {
		row := OrderWithDriver{Order: o}
		if o.AssignedDriverID != nil {
			if driver, err := e.ledger.GetUser(*o.AssignedDriverID); err == nil {
				contact := driver.ToContactInfo()
				row.Driver = &contact
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// MyOrders lists the driver's open orders with their deliveries, sorted by
// stop sequence.
func (e *Engine) MyOrders(driverID string) ([]OrderWithDelivery, error) {
	orders, err := e.ledger.ListOrders(store.OrderFilter{AssignedDriverID: &driverID})
	if err != nil {
		return nil, err
	}

	var out []OrderWithDelivery
	for _, o := range orders {
		if o.Status == models.OrderStatusDelivered || o.Status == models.OrderStatusCancelled {
			continue
		}
		row := OrderWithDelivery{Order: o}
		orderID := o.ID
		if deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{OrderID: &orderID}); err == nil && len(deliveries) > 0 {
			d := deliveries[0]
			row.Delivery = &d
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return sequenceOf(out[i].Delivery) < sequenceOf(out[j].Delivery)
	})
	return out, nil
}

func sequenceOf(d *models.Delivery) int {
	if d == nil {
		return 0
	}
	return d.Sequence
}

// DeliveryDetail resolves one delivery with its order and driver contact.
func (e *Engine) DeliveryDetail(deliveryID string) (*DeliveryDetail, error) {
	delivery, err := e.ledger.GetDelivery(deliveryID)
	if err != nil {
		return nil, err
	}
	detail := &DeliveryDetail{Delivery: *delivery}
	if order, err := e.ledger.GetOrder(delivery.OrderID); err == nil {
		detail.Order = order
	}
	if driver, err := e.ledger.GetUser(delivery.DriverID); err == nil {
		contact := driver.ToContactInfo()
		detail.Driver = &contact
	}
	return detail, nil
}

// DeliveryLog is the staff delivery list with filters, newest first.
func (e *Engine) DeliveryLog(f DeliveryLogFilter) ([]DeliveryDetail, error) {
	deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{
		Status:        f.Status,
		DriverID:      f.DriverID,
		CreatedAfter:  f.StartDate,
		CreatedBefore: f.EndDate,
	})
	if err != nil {
		return nil, err
	}

	out := make([]DeliveryDetail, 0, len(deliveries))
	for _, d := range deliveries {
		detail := DeliveryDetail{Delivery: d}
		if order, err := e.ledger.GetOrder(d.OrderID); err == nil {
			detail.Order = order
		}
		if driver, err := e.ledger.GetUser(d.DriverID); err == nil {
			contact := driver.ToContactInfo()
			detail.Driver = &contact
		}
		out = append(out, detail)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Delivery.CreatedAt > out[j].Delivery.CreatedAt })
	return out, nil
}
