package dispatch

import (
	"fireway-backend/internal/errs"
	"fireway-backend/internal/geo"
	"fireway-backend/internal/models"
)

// CoordinateInput is the caller-reported position attached to clock-in,
// clock-out and delivery start requests.
type CoordinateInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c CoordinateInput) Validate() error {
	if c.Latitude == 0 && c.Longitude == 0 {
		return errs.NewValidationError("coordinates", "location coordinates are required")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return errs.NewValidationError("latitude", "must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return errs.NewValidationError("longitude", "must be between -180 and 180")
	}
	return nil
}

func (c CoordinateInput) Point() geo.Point {
	return geo.Point{Latitude: c.Latitude, Longitude: c.Longitude}
}

// LocationInput is one GPS sample reported by a driver.
type LocationInput struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"` // unix millis, server clock when absent
}

func (l LocationInput) Validate() error {
	if err := (CoordinateInput{Latitude: l.Latitude, Longitude: l.Longitude}).Validate(); err != nil {
		return err
	}
	if l.Heading != nil && (*l.Heading < 0 || *l.Heading >= 360) {
		return errs.NewValidationError("heading", "must be between 0 and 360")
	}
	if l.Accuracy != nil && *l.Accuracy < 0 {
		return errs.NewValidationError("accuracy", "must not be negative")
	}
	if l.Speed != nil && *l.Speed < 0 {
		return errs.NewValidationError("speed", "must not be negative")
	}
	return nil
}

func (l LocationInput) Point() geo.Point {
	return geo.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// CreateOrderInput is the order-ingestion payload.
type CreateOrderInput struct {
	Platform          string            `json:"platform"`
	ExternalOrderID   string            `json:"external_order_id"`
	CustomerName      string            `json:"customer_name"`
	CustomerPhone     string            `json:"customer_phone"`
	CustomerAddress   string            `json:"customer_address"`
	CustomerLatitude  float64           `json:"customer_latitude"`
	CustomerLongitude float64           `json:"customer_longitude"`
	Items             models.OrderItems `json:"items"`
	TotalAmount       float64           `json:"total_amount"`
}

func (o CreateOrderInput) Validate() error {
	if o.CustomerName == "" {
		return errs.NewValidationError("customer_name", "required")
	}
	if o.CustomerAddress == "" {
		return errs.NewValidationError("customer_address", "required")
	}
	if err := (CoordinateInput{Latitude: o.CustomerLatitude, Longitude: o.CustomerLongitude}).Validate(); err != nil {
		return err
	}
	if len(o.Items) == 0 {
		return errs.NewValidationError("items", "at least one item is required")
	}
	if o.TotalAmount < 0 {
		return errs.NewValidationError("total_amount", "must not be negative")
	}
	return nil
}

// CompleteInput carries the optional proof fields for delivery completion.
type CompleteInput struct {
	Notes    *string `json:"notes,omitempty"`
	ProofURL *string `json:"proof_url,omitempty"`
}

// SequenceItem is one entry of a driver stop re-ordering request.
type SequenceItem struct {
	DeliveryID string `json:"delivery_id"`
	Sequence   int    `json:"sequence"`
}

// ResequenceInput re-orders a driver's pending stops. It only rewrites
// sequence indexes, never status.
type ResequenceInput struct {
	Items []SequenceItem `json:"delivery_sequence"`
}

func (r ResequenceInput) Validate() error {
	if len(r.Items) == 0 {
		return errs.NewValidationError("delivery_sequence", "required")
	}
	for _, item := range r.Items {
		if item.DeliveryID == "" {
			return errs.NewValidationError("delivery_id", "required")
		}
		if item.Sequence < 1 {
			return errs.NewValidationError("sequence", "must be at least 1")
		}
	}
	return nil
}
