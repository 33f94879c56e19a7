// Package dispatch implements the delivery lifecycle: shift clock-in/out,
// order claim and assignment, geofence-gated trip start, live location
// intake with proximity detection, and completion accounting. Every
// mutation that is externally observable is pushed into the broadcast
// router after the ledger write commits.
package dispatch

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"fireway-backend/internal/broadcast"
	"fireway-backend/internal/errs"
	"fireway-backend/internal/geo"
	"fireway-backend/internal/models"
	"fireway-backend/internal/store"

	"github.com/google/uuid"
)

// Notifier pushes tracking links and new-order alerts to devices. The
// engine treats it as best-effort: failures are logged, never returned.
type Notifier interface {
	NotifyOrderAvailable(user models.User, order models.Order)
}

// Engine coordinates the delivery ledger, geofence checks and the
// broadcast router.
type Engine struct {
	ledger        store.Ledger
	router        *broadcast.Router
	storeFence    geo.Geofence
	nearThreshold float64
	notifier      Notifier

	now func() time.Time

	// Per-delivery serialization point: writes and their broadcasts for
	// one delivery happen under this lock so every subscriber observes a
	// monotonically advancing sequence. Different deliveries proceed in
	// parallel.
	deliveryLocks sync.Map // delivery id -> *sync.Mutex
}

// New creates an engine. notifier may be nil.
func New(ledger store.Ledger, router *broadcast.Router, storeFence geo.Geofence, nearThreshold float64, notifier Notifier) *Engine {
	if nearThreshold <= 0 {
		nearThreshold = geo.DefaultNearThresholdMeters
	}
	return &Engine{
		ledger:        ledger,
		router:        router,
		storeFence:    storeFence,
		nearThreshold: nearThreshold,
		notifier:      notifier,
		now:           time.Now,
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) lockDelivery(id string) func() {
	v, _ := e.deliveryLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// --- Shifts ---

// ClockIn opens a shift for the driver. The caller must be physically at
// the store: coordinates outside the store geofence are rejected.
func (e *Engine) ClockIn(driverID string, in CoordinateInput) (*models.Shift, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !e.storeFence.Contains(in.Point()) {
		return nil, errs.NewGeofenceError("you must be at the store location to clock in", errs.SideInside)
	}

	shift := &models.Shift{
		ID:               uuid.New().String(),
		DriverID:         driverID,
		Status:           models.ShiftStatusActive,
		ClockInTime:      e.now().Unix(),
		ClockInLatitude:  in.Latitude,
		ClockInLongitude: in.Longitude,
	}
	if err := e.ledger.CreateShift(shift); err != nil {
		return nil, err
	}
	log.Printf("shift %s: driver %s clocked in", shift.ID, driverID)
	return shift, nil
}

// ClockOut closes the driver's active shift.
func (e *Engine) ClockOut(driverID string, in CoordinateInput) (*models.Shift, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	active, err := e.ledger.ActiveShift(driverID)
	if err != nil {
		return nil, err
	}

	now := e.now().Unix()
	lat, lng := in.Latitude, in.Longitude
	shift, err := e.ledger.TransitionShift(active.ID, models.ShiftStatusActive, func(s *models.Shift) {
		s.Status = models.ShiftStatusCompleted
		s.ClockOutTime = &now
		s.ClockOutLatitude = &lat
		s.ClockOutLongitude = &lng
	})
	if err != nil {
		return nil, err
	}
	log.Printf("shift %s: driver %s clocked out (%d deliveries, %.2f km)",
		shift.ID, driverID, shift.TotalDeliveries, shift.TotalDistanceKm)
	return shift, nil
}

// --- Orders ---

// CreateOrder ingests a new order and announces it to every clocked-in
// driver and the dashboard.
func (e *Engine) CreateOrder(in CreateOrderInput) (*models.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                uuid.New().String(),
		Platform:          in.Platform,
		ExternalOrderID:   in.ExternalOrderID,
		CustomerName:      in.CustomerName,
		CustomerPhone:     in.CustomerPhone,
		CustomerAddress:   in.CustomerAddress,
		CustomerLatitude:  in.CustomerLatitude,
		CustomerLongitude: in.CustomerLongitude,
		Items:             in.Items,
		TotalAmount:       in.TotalAmount,
		Status:            models.OrderStatusPending,
	}
	if err := e.ledger.CreateOrder(order); err != nil {
		return nil, err
	}

	e.announceOrder(*order)
	return order, nil
}

// announceOrder notifies every driver with an active shift plus the
// dashboard about a new pending order.
func (e *Engine) announceOrder(order models.Order) {
	active := models.ShiftStatusActive
	shifts, err := e.ledger.ListShifts(store.ShiftFilter{Status: &active}, 0)
	if err != nil {
		log.Printf("order %s: failed to list active shifts: %v", order.ID, err)
		return
	}
	for _, shift := range shifts {
		e.router.Publish(broadcast.DriverTopic(shift.DriverID), broadcast.Event{
			Type: broadcast.EventOrderAvailable,
			Data: order,
		})
		if e.notifier != nil {
			if driver, err := e.ledger.GetUser(shift.DriverID); err == nil {
				e.notifier.NotifyOrderAvailable(*driver, order)
			}
		}
	}
	e.router.Publish(broadcast.TopicDashboard, broadcast.Event{
		Type: broadcast.EventOrderNew,
		Data: order,
	})
}

// ClaimOrder lets a clocked-in driver self-assign a pending order. When
// two drivers race for the same order exactly one claim wins; the loser
// gets a conflict, never a silent overwrite.
func (e *Engine) ClaimOrder(driverID, orderID string) (*models.Order, *models.Delivery, error) {
	shift, err := e.ledger.ActiveShift(driverID)
	if err != nil {
		return nil, nil, errs.NewForbiddenError("you must clock in before claiming orders")
	}
	return e.assignToDriver(orderID, driverID, shift.ID)
}

// AssignOrder is the staff path: manually hand a pending order to a
// clocked-in driver.
func (e *Engine) AssignOrder(orderID, driverID string) (*models.Order, *models.Delivery, error) {
	if driverID == "" {
		return nil, nil, errs.NewValidationError("driver_id", "required")
	}
	driver, err := e.ledger.GetUser(driverID)
	if err != nil || driver.Role != models.RoleDriver {
		return nil, nil, errs.NewNotFoundError("driver", driverID)
	}
	shift, err := e.ledger.ActiveShift(driverID)
	if err != nil {
		return nil, nil, errs.NewForbiddenError("driver must be clocked in")
	}
	return e.assignToDriver(orderID, driverID, shift.ID)
}

func (e *Engine) assignToDriver(orderID, driverID, shiftID string) (*models.Order, *models.Delivery, error) {
	order, err := e.ledger.TransitionOrder(orderID, []models.OrderStatus{models.OrderStatusPending}, func(o *models.Order) {
		o.Status = models.OrderStatusAssigned
		o.AssignedDriverID = &driverID
	})
	if err != nil {
		if _, ok := err.(*errs.ConflictError); ok {
			return nil, nil, errs.NewConflictError("order is no longer available")
		}
		return nil, nil, err
	}

	delivery := &models.Delivery{
		ID:            uuid.New().String(),
		OrderID:       orderID,
		DriverID:      driverID,
		ShiftID:       shiftID,
		TrackingToken: uuid.New().String(),
		Status:        models.DeliveryStatusAssigned,
		Sequence:      e.nextSequence(driverID),
	}
	if err := e.ledger.CreateDelivery(delivery); err != nil {
		return nil, nil, fmt.Errorf("order %s assigned but delivery creation failed: %v", orderID, err)
	}

	e.router.Publish(broadcast.TopicDashboard, broadcast.Event{
		Type: broadcast.EventOrderStatus,
		Data: map[string]interface{}{
			"order_id":  order.ID,
			"status":    order.Status,
			"driver_id": driverID,
		},
	})
	log.Printf("order %s: assigned to driver %s (delivery %s, stop %d)",
		orderID, driverID, delivery.ID, delivery.Sequence)
	return order, delivery, nil
}

// nextSequence returns the next stop index among the driver's undelivered
// deliveries, starting at 1.
func (e *Engine) nextSequence(driverID string) int {
	deliveries, err := e.ledger.ListDeliveries(store.DeliveryFilter{DriverID: &driverID})
	if err != nil {
		return 1
	}
	open := 0
	for _, d := range deliveries {
		if d.Status != models.DeliveryStatusDelivered {
			open++
		}
	}
	return open + 1
}

// ResequenceDeliveries rewrites the stop order of the caller's deliveries.
// Entries for deliveries the caller does not own are skipped.
func (e *Engine) ResequenceDeliveries(driverID string, in ResequenceInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	for _, item := range in.Items {
		if err := e.ledger.SetDeliverySequence(item.DeliveryID, driverID, item.Sequence); err != nil {
			log.Printf("resequence: skipping delivery %s: %v", item.DeliveryID, err)
		}
	}
	return nil
}

// --- Deliveries ---

// StartDelivery begins the trip. The driver must have physically left the
// store first: coordinates still inside the store geofence are rejected.
func (e *Engine) StartDelivery(driverID, deliveryID string, in CoordinateInput) (*models.Delivery, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	existing, err := e.ownedDelivery(driverID, deliveryID)
	if err != nil {
		return nil, err
	}
	if e.storeFence.Contains(in.Point()) {
		return nil, errs.NewGeofenceError("you must exit the store area to start delivery", errs.SideOutside)
	}

	unlock := e.lockDelivery(deliveryID)
	defer unlock()

	startedAt := e.now().Unix()
	delivery, err := e.ledger.TransitionDelivery(deliveryID, []models.DeliveryStatus{models.DeliveryStatusAssigned}, func(d *models.Delivery) {
		d.Status = models.DeliveryStatusStarted
		d.StartedAt = &startedAt
	})
	if err != nil {
		if _, ok := err.(*errs.ConflictError); ok {
			return nil, errs.NewConflictError("delivery already started")
		}
		return nil, err
	}

	if _, err := e.ledger.TransitionOrder(existing.OrderID, []models.OrderStatus{models.OrderStatusAssigned}, func(o *models.Order) {
		o.Status = models.OrderStatusOutForDelivery
	}); err != nil {
		return nil, fmt.Errorf("delivery %s started but order %s transition failed: %v", deliveryID, existing.OrderID, err)
	}

	sample := &models.LocationSample{
		DriverID:   driverID,
		DeliveryID: &deliveryID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Timestamp:  e.now().UnixMilli(),
	}
	if err := e.ledger.AppendLocation(sample); err != nil {
		log.Printf("delivery %s: failed to record start location: %v", deliveryID, err)
	}

	e.publishStatus(*delivery, "Your order is on its way")
	log.Printf("delivery %s: started by driver %s", deliveryID, driverID)
	return delivery, nil
}

// RecordLocation ingests one GPS sample. Samples require an open shift;
// samples tied to a delivery additionally require that delivery to be
// active, and the first sample within the near threshold of the customer
// flips the delivery to near. Once near the state never reverts.
func (e *Engine) RecordLocation(driverID string, deliveryID *string, in LocationInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if _, err := e.ledger.ActiveShift(driverID); err != nil {
		return errs.NewForbiddenError("you must clock in before reporting locations")
	}

	var delivery *models.Delivery
	var order *models.Order
	if deliveryID != nil {
		unlock := e.lockDelivery(*deliveryID)
		defer unlock()

		var err error
		delivery, err = e.ownedDelivery(driverID, *deliveryID)
		if err != nil {
			return err
		}
		if !delivery.Status.IsActive() {
			return errs.NewConflictError("delivery is not active")
		}
		order, err = e.ledger.GetOrder(delivery.OrderID)
		if err != nil {
			return fmt.Errorf("delivery %s has no owning order: %v", delivery.ID, err)
		}
	}

	timestamp := e.now().UnixMilli()
	if in.Timestamp != nil {
		timestamp = *in.Timestamp
	}
	sample := &models.LocationSample{
		DriverID:   driverID,
		DeliveryID: deliveryID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Accuracy:   in.Accuracy,
		Speed:      in.Speed,
		Heading:    in.Heading,
		Timestamp:  timestamp,
	}
	if err := e.ledger.AppendLocation(sample); err != nil {
		return err
	}

	e.router.Publish(broadcast.TopicDashboard, broadcast.Event{
		Type: broadcast.EventDriverLocation,
		Data: map[string]interface{}{
			"driver_id":   driverID,
			"delivery_id": deliveryID,
			"latitude":    in.Latitude,
			"longitude":   in.Longitude,
			"timestamp":   timestamp,
		},
	})

	if delivery == nil {
		return nil
	}

	e.router.Publish(broadcast.TrackingTopic(delivery.TrackingToken), broadcast.Event{
		Type: broadcast.EventDeliveryLocation,
		Data: map[string]interface{}{
			"latitude":  in.Latitude,
			"longitude": in.Longitude,
			"timestamp": timestamp,
		},
	})

	e.detectProximity(*delivery, *order, in.Point())
	return nil
}

// detectProximity is the single authoritative near check, shared by every
// entry point that accepts a location sample.
func (e *Engine) detectProximity(delivery models.Delivery, order models.Order, p geo.Point) {
	if delivery.Status != models.DeliveryStatusStarted {
		return
	}
	dest := geo.Point{Latitude: order.CustomerLatitude, Longitude: order.CustomerLongitude}
	if !geo.IsNear(p, dest, e.nearThreshold) {
		return
	}

	updated, err := e.ledger.TransitionDelivery(delivery.ID, []models.DeliveryStatus{models.DeliveryStatusStarted}, func(d *models.Delivery) {
		d.Status = models.DeliveryStatusNear
	})
	if err != nil {
		// Lost a race with another sample that already flipped it. The
		// transition is idempotent, so this is not an error.
		return
	}
	e.publishStatus(*updated, "Driver is near your location")
	log.Printf("delivery %s: driver is near the customer", delivery.ID)
}

// CompleteDelivery closes out the trip. Duration and distance are computed
// from the ledger, not the caller: duration from the start timestamp,
// distance as the polyline length over the trip's location samples.
func (e *Engine) CompleteDelivery(driverID, deliveryID string, in CompleteInput) (*models.Delivery, error) {
	existing, err := e.ownedDelivery(driverID, deliveryID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockDelivery(deliveryID)
	defer unlock()

	completedAt := e.now().Unix()
	distanceKm, err := e.tripDistanceKm(deliveryID)
	if err != nil {
		return nil, err
	}

	delivery, err := e.ledger.TransitionDelivery(deliveryID,
		[]models.DeliveryStatus{models.DeliveryStatusStarted, models.DeliveryStatusNear},
		func(d *models.Delivery) {
			d.Status = models.DeliveryStatusDelivered
			d.CompletedAt = &completedAt
			if d.StartedAt != nil {
				minutes := int(math.Round(float64(completedAt-*d.StartedAt) / 60))
				d.DurationMinutes = &minutes
			}
			d.DistanceKm = &distanceKm
			d.Notes = in.Notes
			d.ProofURL = in.ProofURL
		})
	if err != nil {
		if _, ok := err.(*errs.ConflictError); ok {
			if existing.Status == models.DeliveryStatusDelivered {
				return nil, errs.NewConflictError("delivery already completed")
			}
			return nil, errs.NewConflictError("delivery has not been started")
		}
		return nil, err
	}

	if _, err := e.ledger.TransitionOrder(delivery.OrderID, []models.OrderStatus{models.OrderStatusOutForDelivery}, func(o *models.Order) {
		o.Status = models.OrderStatusDelivered
	}); err != nil {
		return nil, fmt.Errorf("delivery %s completed but order %s transition failed: %v", deliveryID, delivery.OrderID, err)
	}

	if _, err := e.ledger.TransitionShift(delivery.ShiftID, models.ShiftStatusActive, func(s *models.Shift) {
		s.TotalDeliveries++
		s.TotalDistanceKm += distanceKm
	}); err != nil {
		log.Printf("delivery %s: shift %s totals not updated: %v", deliveryID, delivery.ShiftID, err)
	}

	e.publishStatus(*delivery, "Your order has been delivered")
	e.router.Publish(broadcast.TopicDashboard, broadcast.Event{
		Type: broadcast.EventDeliveryComplete,
		Data: map[string]interface{}{
			"delivery_id": delivery.ID,
			"order_id":    delivery.OrderID,
			"driver_id":   delivery.DriverID,
			"distance_km": distanceKm,
			"timestamp":   completedAt,
		},
	})
	log.Printf("delivery %s: completed by driver %s (%.2f km)", deliveryID, driverID, distanceKm)
	return delivery, nil
}

// tripDistanceKm sums the haversine distance between consecutive samples
// of the trip in timestamp order, rounded to two decimals.
func (e *Engine) tripDistanceKm(deliveryID string) (float64, error) {
	samples, err := e.ledger.ListLocations(store.LocationFilter{DeliveryID: &deliveryID})
	if err != nil {
		return 0, err
	}
	var meters float64
	for i := 1; i < len(samples); i++ {
		meters += geo.Distance(
			geo.Point{Latitude: samples[i-1].Latitude, Longitude: samples[i-1].Longitude},
			geo.Point{Latitude: samples[i].Latitude, Longitude: samples[i].Longitude},
		)
	}
	return math.Round(meters/10) / 100, nil
}

// publishStatus emits a delivery status event to the dashboard and the
// delivery's tracking room.
func (e *Engine) publishStatus(delivery models.Delivery, message string) {
	e.router.Publish(broadcast.TopicDashboard, broadcast.Event{
		Type: broadcast.EventDeliveryStatus,
		Data: map[string]interface{}{
			"delivery_id": delivery.ID,
			"order_id":    delivery.OrderID,
			"status":      delivery.Status,
		},
	})
	e.router.Publish(broadcast.TrackingTopic(delivery.TrackingToken), broadcast.Event{
		Type: broadcast.EventDeliveryStatus,
		Data: map[string]interface{}{
			"status":  delivery.Status,
			"message": message,
		},
	})
}

// ownedDelivery resolves a delivery and enforces driver ownership. A
// delivery owned by someone else is reported as not found, never leaked.
func (e *Engine) ownedDelivery(driverID, deliveryID string) (*models.Delivery, error) {
	delivery, err := e.ledger.GetDelivery(deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.DriverID != driverID {
		return nil, errs.NewNotFoundError("delivery", deliveryID)
	}
	return delivery, nil
}
