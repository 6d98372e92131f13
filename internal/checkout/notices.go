package checkout

import (
	"fmt"

	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/events"
)

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeInfo    = "info"
	NoticeError   = "error"
)

// Notice is a user-facing message derived from a session event.
type Notice struct {
	Level   string `json:"level"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

type noticePayload struct {
	Name   string        `json:"name"`
	Code   string        `json:"code"`
	Reason coupon.Reason `json:"reason"`
}

var reasonMessages = map[coupon.Reason]string{
	coupon.ReasonNotFound:       "coupon %s does not exist",
	coupon.ReasonExpired:        "coupon %s has expired",
	coupon.ReasonUsageExhausted: "coupon %s has reached its usage limit",
	coupon.ReasonBelowMinimum:   "your order does not reach the minimum amount for coupon %s",
	coupon.ReasonInactive:       "coupon %s is no longer active",
}

// NoticeFor translates an event into a notice. Events without a user-facing
// message report false.
func NoticeFor(ev events.Event) (Notice, bool) {
	var p noticePayload
	_ = ev.Decode(&p)
	n := Notice{Level: NoticeInfo, Topic: ev.Topic}
	switch ev.Topic {
	case events.TopicItemAdded:
		n.Level = NoticeSuccess
		n.Message = fmt.Sprintf("%s added to cart", nameOr(p.Name, "item"))
	case events.TopicItemRemoved:
		n.Message = fmt.Sprintf("%s removed from cart", nameOr(p.Name, "item"))
	case events.TopicCartCleared:
		n.Message = "cart emptied"
	case events.TopicCouponApplied:
		n.Level = NoticeSuccess
		n.Message = fmt.Sprintf("coupon %s applied", p.Code)
	case events.TopicCouponRejected:
		n.Level = NoticeError
		n.Message = rejection(p.Code, p.Reason)
	case events.TopicCouponRemoved:
		n.Message = fmt.Sprintf("coupon %s removed", p.Code)
	case events.TopicShippingFailed:
		n.Level = NoticeError
		n.Message = "shipping cost could not be updated, please try again"
	case events.TopicAddressUpdated:
		n.Level = NoticeSuccess
		n.Message = "shipping address saved"
	default:
		return Notice{}, false
	}
	return n, true
}

// Notices translates every event that has a user-facing message.
func Notices(evs []events.Event) []Notice {
	out := make([]Notice, 0, len(evs))
	for _, ev := range evs {
		if n, ok := NoticeFor(ev); ok {
			out = append(out, n)
		}
	}
	return out
}

func rejection(code string, reason coupon.Reason) string {
	if msg, ok := reasonMessages[reason]; ok {
		return fmt.Sprintf(msg, code)
	}
	return fmt.Sprintf("coupon %s cannot be applied", code)
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
