package domain

import "time"

// Wire payloads for the saga topics. Field names follow the contract the
// order and payment services already speak.

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderCreated struct {
	EventID     string      `json:"eventId"`
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type OrderCancelled struct {
	EventID     string    `json:"eventId"`
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

type PaymentCompleted struct {
	EventID       string    `json:"eventId"`
	PaymentID     string    `json:"paymentId"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transactionId"`
	CompletedAt   time.Time `json:"completedAt"`
}

type ReservedItem struct {
	ProductID   string `json:"productId"`
	Quantity    int    `json:"quantity"`
	WarehouseID string `json:"warehouseId"`
}

type InventoryReserved struct {
	EventID    string         `json:"eventId"`
	OrderID    string         `json:"orderId"`
	Items      []ReservedItem `json:"items"`
	ReservedAt time.Time      `json:"reservedAt"`
}

type InventoryFailed struct {
	EventID  string    `json:"eventId"`
	OrderID  string    `json:"orderId"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

type InventoryReleased struct {
	EventID    string    `json:"eventId"`
	OrderID    string    `json:"orderId"`
	ReleasedAt time.Time `json:"releasedAt"`
}
