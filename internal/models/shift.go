package models

import "database/sql"

// ShiftStatus represents the state of a driver's on-duty interval.
type ShiftStatus string

const (
	ShiftStatusActive    ShiftStatus = "active"
	ShiftStatusCompleted ShiftStatus = "completed"
)

var shiftTransitions = map[ShiftStatus][]ShiftStatus{
	ShiftStatusActive:    {ShiftStatusCompleted},
	ShiftStatusCompleted: {},
}

func (s ShiftStatus) CanTransitionTo(next ShiftStatus) bool {
	for _, allowed := range shiftTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Shift is a driver's bounded on-duty interval between clock-in and
// clock-out. A driver has at most one active shift at a time.
type Shift struct {
	ID                string      `json:"id" db:"id"`
	DriverID          string      `json:"driver_id" db:"driver_id"`
	Status            ShiftStatus `json:"status" db:"status"`
	ClockInTime       int64       `json:"clock_in_time" db:"clock_in_time"`
	ClockInLatitude   float64     `json:"clock_in_latitude" db:"clock_in_latitude"`
	ClockInLongitude  float64     `json:"clock_in_longitude" db:"clock_in_longitude"`
	ClockOutTime      *int64      `json:"clock_out_time" db:"clock_out_time"`
	ClockOutLatitude  *float64    `json:"clock_out_latitude" db:"clock_out_latitude"`
	ClockOutLongitude *float64    `json:"clock_out_longitude" db:"clock_out_longitude"`
	TotalDeliveries   int         `json:"total_deliveries" db:"total_deliveries"`
	TotalDistanceKm   float64     `json:"total_distance_km" db:"total_distance_km"`
	CreatedAt         int64       `json:"created_at" db:"created_at"`
	UpdatedAt         int64       `json:"updated_at" db:"updated_at"`
}

// ShiftSummary aggregates a closed or running shift for the driver app.
type ShiftSummary struct {
	Shift               Shift   `json:"shift"`
	TotalDeliveries     int     `json:"total_deliveries"`
	CompletedDeliveries int     `json:"completed_deliveries"`
	TotalDistanceKm     float64 `json:"total_distance_km"`
	AvgDeliveryMinutes  float64 `json:"avg_delivery_minutes"`
}

// ToNullInt64 converts a pointer to int64 to sql.NullInt64.
func ToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// ToNullFloat64 converts a pointer to float64 to sql.NullFloat64.
func ToNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// ToNullString converts a pointer to string to sql.NullString.
func ToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}
