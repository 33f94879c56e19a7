// Package store defines the delivery ledger: the authoritative state for
// users, orders, shifts, deliveries and location samples. Every write is a
// single atomic transition validated against current state; rejected writes
// leave state unchanged and report a typed failure. Implementations live in
// store/memory and store/postgres.
package store

import "fireway-backend/internal/models"

// OrderFilter selects orders by predicate. Nil fields match everything.
type OrderFilter struct {
	Status           *models.OrderStatus
	AssignedDriverID *string
}

// ShiftFilter selects shifts by predicate.
type ShiftFilter struct {
	DriverID *string
	Status   *models.ShiftStatus
}

// DeliveryFilter selects deliveries by predicate.
type DeliveryFilter struct {
	Status        *models.DeliveryStatus
	DriverID      *string
	ShiftID       *string
	OrderID       *string
	CreatedAfter  *int64
	CreatedBefore *int64
}

// LocationFilter selects location samples by predicate.
type LocationFilter struct {
	DriverID   *string
	DeliveryID *string
}

// Ledger is the capability set the dispatch engine runs against. The
// Transition* methods are compare-and-transition: the record must currently
// be in one of the given from-statuses, then apply mutates it, all
// atomically for that record. If apply changes the status, the change must
// be legal under the entity's transition table. Different records proceed
// fully in parallel.
type Ledger interface {
	// Users.
	CreateUser(u *models.User) error
	GetUser(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	ListUsersByRole(role string) ([]models.User, error)
	SetUserFCMToken(id, token string) error

	// Orders.
	CreateOrder(o *models.Order) error
	GetOrder(id string) (*models.Order, error)
	ListOrders(f OrderFilter) ([]models.Order, error)
	TransitionOrder(id string, from []models.OrderStatus, apply func(*models.Order)) (*models.Order, error)

	// Shifts. CreateShift enforces the single-active-shift-per-driver
	// invariant atomically.
	CreateShift(s *models.Shift) error
	GetShift(id string) (*models.Shift, error)
	ActiveShift(driverID string) (*models.Shift, error)
	ListShifts(f ShiftFilter, limit int) ([]models.Shift, error)
	TransitionShift(id string, from models.ShiftStatus, apply func(*models.Shift)) (*models.Shift, error)

	// Deliveries.
	CreateDelivery(d *models.Delivery) error
	GetDelivery(id string) (*models.Delivery, error)
	GetDeliveryByToken(token string) (*models.Delivery, error)
	ListDeliveries(f DeliveryFilter) ([]models.Delivery, error)
	TransitionDelivery(id string, from []models.DeliveryStatus, apply func(*models.Delivery)) (*models.Delivery, error)
	// SetDeliverySequence rewrites the sequence index only; it never
	// touches status and carries no status precondition.
	SetDeliverySequence(id, driverID string, sequence int) error

	// Location samples are append-only. ListLocations returns samples in
	// ascending timestamp order.
	AppendLocation(l *models.LocationSample) error
	ListLocations(f LocationFilter) ([]models.LocationSample, error)
	LatestLocation(f LocationFilter) (*models.LocationSample, error)
}
