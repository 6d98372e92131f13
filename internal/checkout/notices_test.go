package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/events"
)

func emitted(t *testing.T, topic string, payload any) events.Event {
	t.Helper()
	ev, err := (&events.Bus{}).Emit(context.Background(), topic, "s1", payload)
	require.NoError(t, err)
	return ev
}

func TestNoticeForRejectionReasons(t *testing.T) {
	cases := map[coupon.Reason]string{
		coupon.ReasonNotFound:       "coupon NOPE does not exist",
		coupon.ReasonExpired:        "coupon NOPE has expired",
		coupon.ReasonUsageExhausted: "coupon NOPE has reached its usage limit",
		coupon.ReasonInactive:       "coupon NOPE is no longer active",
	}
	for reason, want := range cases {
		n, ok := NoticeFor(emitted(t, events.TopicCouponRejected, map[string]any{"code": "NOPE", "reason": reason}))
		require.True(t, ok)
		require.Equal(t, NoticeError, n.Level)
		require.Equal(t, want, n.Message)
	}
}

func TestSilentEventsHaveNoNotice(t *testing.T) {
	for _, topic := range []string{events.TopicCouponDropped, events.TopicShippingUpdated, events.TopicQuantityUpdated, events.TopicAddressRemoved} {
		_, ok := NoticeFor(emitted(t, topic, nil))
		require.False(t, ok, topic)
	}
}

func TestNoticesKeepOrder(t *testing.T) {
	got := Notices([]events.Event{
		emitted(t, events.TopicItemAdded, map[string]any{"name": "Benchy"}),
		emitted(t, events.TopicShippingUpdated, nil),
		emitted(t, events.TopicCouponApplied, map[string]any{"code": "PRIMERA20"}),
	})
	require.Len(t, got, 2)
	require.Equal(t, "Benchy added to cart", got[0].Message)
	require.Equal(t, "coupon PRIMERA20 applied", got[1].Message)
}
