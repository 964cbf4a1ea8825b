package domain

const (
	TopicOrderCreated     = "order.created"
	TopicOrderCancelled   = "order.cancelled"
	TopicPaymentCompleted = "payment.completed"

	TopicInventoryReserved = "inventory.reserved"
	TopicInventoryFailed   = "inventory.failed"
	TopicInventoryReleased = "inventory.released"
)

const (
	EventInventoryReserved = "InventoryReserved"
	EventInventoryFailed   = "InventoryFailed"
	EventInventoryReleased = "InventoryReleased"
)
