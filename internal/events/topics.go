package events

// Topic constants for events raised by checkout sessions.
const (
	TopicItemAdded       = "cart.item_added"
	TopicItemRemoved     = "cart.item_removed"
	TopicQuantityUpdated = "cart.quantity_updated"
	TopicCartCleared     = "cart.cleared"

	TopicCouponApplied  = "coupon.applied"
	TopicCouponRejected = "coupon.rejected"
	TopicCouponRemoved  = "coupon.removed"
	// TopicCouponDropped is raised when a restored coupon no longer validates.
	TopicCouponDropped = "coupon.dropped"

	TopicShippingUpdated = "shipping.updated"
	TopicShippingFailed  = "shipping.failed"

	TopicAddressUpdated = "address.updated"
	TopicAddressRemoved = "address.removed"
)

// DefaultTopics returns every topic a session can raise.
func DefaultTopics() []string {
	return []string{
		TopicItemAdded,
		TopicItemRemoved,
		TopicQuantityUpdated,
		TopicCartCleared,
		TopicCouponApplied,
		TopicCouponRejected,
		TopicCouponRemoved,
		TopicCouponDropped,
		TopicShippingUpdated,
		TopicShippingFailed,
		TopicAddressUpdated,
		TopicAddressRemoved,
	}
}
