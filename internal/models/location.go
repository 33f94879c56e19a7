package models

// LocationSample is one GPS reading from a driver. Samples are append-only
// and are the source of truth for "where is the driver now" and for
// post-hoc distance reconstruction.
type LocationSample struct {
	ID         int64    `json:"id" db:"id"`
	DriverID   string   `json:"driver_id" db:"driver_id"`
	DeliveryID *string  `json:"delivery_id,omitempty" db:"delivery_id"`
	Latitude   float64  `json:"latitude" db:"latitude"`
	Longitude  float64  `json:"longitude" db:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty" db:"accuracy"` // meters
	Speed      *float64 `json:"speed,omitempty" db:"speed"`       // m/s
	Heading    *float64 `json:"heading,omitempty" db:"heading"`   // 0-360 degrees
	Timestamp  int64    `json:"timestamp" db:"timestamp"`         // unix millis
	CreatedAt  int64    `json:"created_at" db:"created_at"`
}
