package inventory

// Event topics published by the inventory module.
const (
	TopicTargetCreated = "inventory.target.created"
	TopicTargetUpdated = "inventory.target.updated"
	TopicTargetDeleted = "inventory.target.deleted"
)
