package types

import (
	"encoding/json"
	"time"
)

// Order statuses as reported by the backend.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// OrderItem is a single line item in an order.
type OrderItem struct {
	ProductID string  `json:"product_id,omitempty"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is a server-owned order record.
type Order struct {
	ID            string      `json:"id"`
	Items         []OrderItem `json:"items"`
	Total         float64     `json:"total"`
	Status        string      `json:"status"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Note          string      `json:"note,omitempty"`
	CreatedAt     time.Time   `json:"created_at,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at,omitempty"`
}

// StockValidation is the outcome of the pre-flight inventory check performed
// before order creation. Issues are human-readable and field-specific.
type StockValidation struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (o *Order) MarshalBinary() ([]byte, error) {
	return json.Marshal(o)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (o *Order) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, o)
}
