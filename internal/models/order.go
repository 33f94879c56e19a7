package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// OrderStatus represents the lifecycle state of an order. Order status is a
// derived view of the owning delivery: it only moves along
// pending -> assigned -> out_for_delivery -> delivered, or to cancelled
// from any non-terminal state.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAssigned       OrderStatus = "assigned"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// orderTransitions is the single source of truth for legal order
// transitions, shared by every entry point that can move an order.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusAssigned, OrderStatusCancelled},
	OrderStatusAssigned:       {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderItem is one line of an order.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// OrderItems serializes as JSON in both the API and the items column.
type OrderItems []OrderItem

func (i OrderItems) Value() (driver.Value, error) {
	return json.Marshal(i)
}

func (i *OrderItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, i)
	case string:
		return json.Unmarshal([]byte(v), i)
	case nil:
		*i = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into OrderItems", src)
	}
}

// Order is created by order ingestion and mutated only by the dispatch
// engine.
type Order struct {
	ID                string      `json:"id" db:"id"`
	Platform          string      `json:"platform" db:"platform"`
	ExternalOrderID   string      `json:"external_order_id" db:"external_order_id"`
	CustomerName      string      `json:"customer_name" db:"customer_name"`
	CustomerPhone     string      `json:"customer_phone" db:"customer_phone"`
	CustomerAddress   string      `json:"customer_address" db:"customer_address"`
	CustomerLatitude  float64     `json:"customer_latitude" db:"customer_latitude"`
	CustomerLongitude float64     `json:"customer_longitude" db:"customer_longitude"`
	Items             OrderItems  `json:"items" db:"items"`
	TotalAmount       float64     `json:"total_amount" db:"total_amount"`
	Status            OrderStatus `json:"status" db:"status"`
	AssignedDriverID  *string     `json:"assigned_driver_id" db:"assigned_driver_id"`
	CreatedAt         int64       `json:"created_at" db:"created_at"`
	UpdatedAt         int64       `json:"updated_at" db:"updated_at"`
}
