package models

// DeliveryStatus is the authoritative state of a delivery trip. It only
// moves forward: assigned -> started -> near -> delivered.
type DeliveryStatus string

const (
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusStarted   DeliveryStatus = "started"
	DeliveryStatusNear      DeliveryStatus = "near"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusAssigned:  {DeliveryStatusStarted},
	DeliveryStatusStarted:   {DeliveryStatusNear, DeliveryStatusDelivered},
	DeliveryStatusNear:      {DeliveryStatusDelivered},
	DeliveryStatusDelivered: {},
}

// deliveryRank orders statuses for monotonicity checks: a delivery's
// observed sequence must be non-decreasing under this ordering.
var deliveryRank = map[DeliveryStatus]int{
	DeliveryStatusAssigned:  0,
	DeliveryStatusStarted:   1,
	DeliveryStatusNear:      2,
	DeliveryStatusDelivered: 3,
}

func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AtLeast reports whether s is at or past other in delivery order.
func (s DeliveryStatus) AtLeast(other DeliveryStatus) bool {
	return deliveryRank[s] >= deliveryRank[other]
}

// IsActive reports whether location updates are accepted for a delivery in
// this status.
func (s DeliveryStatus) IsActive() bool {
	return s == DeliveryStatusStarted || s == DeliveryStatusNear
}

// Delivery links one order to one shift and driver. The tracking token is
// the public capability for anonymous tracking and must stay unguessable.
type Delivery struct {
	ID              string         `json:"id" db:"id"`
	OrderID         string         `json:"order_id" db:"order_id"`
	DriverID        string         `json:"driver_id" db:"driver_id"`
	ShiftID         string         `json:"shift_id" db:"shift_id"`
	TrackingToken   string         `json:"tracking_token" db:"tracking_token"`
	Status          DeliveryStatus `json:"status" db:"status"`
	Sequence        int            `json:"delivery_sequence" db:"delivery_sequence"`
	StartedAt       *int64         `json:"started_at" db:"started_at"`
	CompletedAt     *int64         `json:"completed_at" db:"completed_at"`
	DurationMinutes *int           `json:"duration_minutes" db:"duration_minutes"`
	DistanceKm      *float64       `json:"distance_km" db:"distance_km"`
	Notes           *string        `json:"notes,omitempty" db:"notes"`
	ProofURL        *string        `json:"delivery_proof_url,omitempty" db:"delivery_proof_url"`
	CreatedAt       int64          `json:"created_at" db:"created_at"`
	UpdatedAt       int64          `json:"updated_at" db:"updated_at"`
}
