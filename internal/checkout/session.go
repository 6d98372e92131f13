package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/events"
	"github.com/noah-isme/modelshop-checkout/internal/obs"
	"github.com/noah-isme/modelshop-checkout/internal/persist"
	"github.com/noah-isme/modelshop-checkout/internal/pricing"
	"github.com/noah-isme/modelshop-checkout/internal/shipping"
	"github.com/noah-isme/modelshop-checkout/internal/tax"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Coupons *coupon.Validator
	Rates   shipping.RateService
	Tax     tax.Calculator
	Persist *persist.Persister
	Events  *events.Bus
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// View is a consistent snapshot of a session and its invoice.
type View struct {
	ID      string          `json:"id"`
	Items   []cart.LineItem `json:"items"`
	Address *cart.Address   `json:"address,omitempty"`
	Coupon  *coupon.Coupon  `json:"coupon,omitempty"`
	Invoice pricing.Summary `json:"invoice"`
}

// Session is the cart state of one customer. All mutations are serialised;
// coupon lookups and shipping quotes run outside the lock.
type Session struct {
	id   string
	deps *Deps

	mu       sync.Mutex
	store    *cart.Store
	address  *cart.Address
	applied  *coupon.Coupon
	shipping pricing.Money
	quotes   shipping.Tracker
	// lastSeen is unix nanoseconds; the manager stamps it without taking mu.
	lastSeen atomic.Int64

	// ready is closed once a restore attempt finished; restoreErr is set
	// before the close when it failed.
	ready      chan struct{}
	restoreErr error
}

// NewSession returns an empty session.
func NewSession(id string, deps *Deps) *Session {
	if deps == nil {
		deps = &Deps{}
	}
	s := &Session{
		id:       id,
		deps:     deps,
		store:    cart.NewStore(nil),
		shipping: decimal.Zero,
		ready:    make(chan struct{}),
	}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LastSeen returns when the session was last touched.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(s.deps.now().UnixNano())
}

// View returns the current state with freshly computed totals.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.viewLocked()
}

// AddItem merges the item into the cart. The returned error is non-nil only
// when a shipping requote failed; the item is added regardless.
func (s *Session) AddItem(ctx context.Context, item cart.LineItem) (View, error) {
	s.mu.Lock()
	before := s.store.PhysicalKey()
	line := s.store.Add(item)
	changed := before != s.store.PhysicalKey()
	s.saveLocked(ctx)
	s.mu.Unlock()

	s.emit(ctx, events.TopicItemAdded, map[string]any{"itemId": line.ID, "name": line.Name, "quantity": line.Quantity})
	return s.afterItemsChanged(ctx, changed)
}

// RemoveItem deletes a line. Removing an unknown id is a no-op.
func (s *Session) RemoveItem(ctx context.Context, id string) (View, error) {
	s.mu.Lock()
	before := s.store.PhysicalKey()
	line, _ := s.store.Get(id)
	removed := s.store.Remove(id)
	changed := before != s.store.PhysicalKey()
	if removed {
		s.saveLocked(ctx)
	}
	s.mu.Unlock()

	if removed {
		s.emit(ctx, events.TopicItemRemoved, map[string]any{"itemId": id, "name": line.Name})
	}
	return s.afterItemsChanged(ctx, changed)
}

// UpdateQuantity sets the quantity of a line; zero or below removes it.
func (s *Session) UpdateQuantity(ctx context.Context, id string, qty int) (View, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, id)
	}
	s.mu.Lock()
	before := s.store.PhysicalKey()
	found := s.store.UpdateQuantity(id, qty)
	changed := before != s.store.PhysicalKey()
	if found {
		s.saveLocked(ctx)
	}
	s.mu.Unlock()

	if found {
		s.emit(ctx, events.TopicQuantityUpdated, map[string]any{"itemId": id, "quantity": qty})
	}
	return s.afterItemsChanged(ctx, changed)
}

// Clear empties the cart, drops the applied coupon and resets shipping.
// The address is kept.
func (s *Session) Clear(ctx context.Context) View {
	s.mu.Lock()
	s.store.Clear()
	s.applied = nil
	s.shipping = decimal.Zero
	s.quotes.Invalidate()
	s.saveLocked(ctx)
	s.touchLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	s.emit(ctx, events.TopicCartCleared, nil)
	return v
}

// SetAddress replaces the destination and requotes shipping.
func (s *Session) SetAddress(ctx context.Context, addr cart.Address) (View, error) {
	s.mu.Lock()
	s.address = &addr
	s.saveLocked(ctx)
	s.mu.Unlock()

	s.emit(ctx, events.TopicAddressUpdated, map[string]any{"country": addr.Country})
	err := s.RefreshShipping(ctx)
	if errors.Is(err, shipping.ErrSuperseded) {
		err = nil
	}
	return s.View(), err
}

// ClearAddress removes the destination. Shipping drops to zero and tax falls
// back to the no-address rate.
func (s *Session) ClearAddress(ctx context.Context) View {
	s.mu.Lock()
	had := s.address != nil
	s.address = nil
	s.shipping = decimal.Zero
	s.quotes.Invalidate()
	s.saveLocked(ctx)
	s.touchLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	if had {
		s.emit(ctx, events.TopicAddressRemoved, nil)
	}
	return v
}

// ApplyCoupon validates the code against the current subtotal and applies
// it. Business-rule rejections come back as a Result with a reason and a
// nil error; the cart is left untouched. An unreachable repository yields
// coupon.ErrUnavailable and keeps the previously applied coupon.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (coupon.Result, View, error) {
	s.mu.Lock()
	subtotal := s.store.Subtotal()
	s.mu.Unlock()

	res, err := s.deps.Coupons.Apply(ctx, code, subtotal)
	if err != nil {
		obs.CountCouponValidation("unavailable")
		s.deps.Logger.Warn().Err(err).Str("session_id", s.id).Str("code", coupon.Normalize(code)).Msg("coupon lookup failed")
		return res, s.View(), err
	}

	s.mu.Lock()
	if res.OK() {
		// the cart may have changed while the lookup was in flight
		if reason := s.deps.Coupons.Validate(*res.Coupon, s.store.Subtotal()); reason != coupon.ReasonValid {
			res = coupon.Result{Code: res.Code, Reason: reason}
		}
	}
	if res.OK() {
		applied := *res.Coupon
		s.applied = &applied
		s.saveLocked(ctx)
	}
	s.touchLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	obs.CountCouponValidation(string(res.Reason))
	if res.OK() {
		s.emit(ctx, events.TopicCouponApplied, map[string]any{"code": res.Code, "discount": v.Invoice.Discount})
	} else {
		s.emit(ctx, events.TopicCouponRejected, map[string]any{"code": res.Code, "reason": res.Reason})
	}
	return res, v, nil
}

// RemoveCoupon drops the applied coupon, if any.
func (s *Session) RemoveCoupon(ctx context.Context) View {
	s.mu.Lock()
	prev := s.applied
	s.applied = nil
	if prev != nil {
		s.saveLocked(ctx)
	}
	s.touchLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	if prev != nil {
		s.emit(ctx, events.TopicCouponRemoved, map[string]any{"code": prev.Code})
	}
	return v
}

// RefreshShipping quotes the current cart and address. Only the newest
// request may update the cost: an older request that completes late returns
// shipping.ErrSuperseded and changes nothing. On failure the last known
// cost is kept and shipping.ErrUnavailable is returned.
func (s *Session) RefreshShipping(ctx context.Context) error {
	s.mu.Lock()
	if s.address == nil || s.store.PhysicalKey() == "" {
		s.quotes.Invalidate()
		s.shipping = decimal.Zero
		s.mu.Unlock()
		return nil
	}
	addr := *s.address
	req := shipping.Request{Items: s.store.Items(), Address: &addr}
	quoteCtx, ticket := s.quotes.Begin(ctx)
	s.mu.Unlock()

	start := time.Now()
	cost, err := s.rates().Quote(quoteCtx, req)
	elapsed := obs.DurationMillis(time.Since(start))

	s.mu.Lock()
	if !s.quotes.Current(ticket) {
		s.mu.Unlock()
		obs.ObserveShippingQuote("superseded", elapsed)
		s.deps.Logger.Debug().Str("session_id", s.id).Msg("discarding superseded shipping quote")
		return shipping.ErrSuperseded
	}
	s.quotes.Finish(ticket)
	if err != nil {
		s.mu.Unlock()
		obs.ObserveShippingQuote("error", elapsed)
		s.deps.Logger.Warn().Err(err).Str("session_id", s.id).Msg("shipping quote failed")
		s.emit(ctx, events.TopicShippingFailed, map[string]any{"country": addr.Country})
		if errors.Is(err, shipping.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", shipping.ErrUnavailable, err)
	}
	prev := s.shipping
	s.shipping = pricing.Round(pricing.NonNegative(cost))
	current := s.shipping
	s.mu.Unlock()

	obs.ObserveShippingQuote("ok", elapsed)
	if !prev.Equal(current) {
		s.emit(ctx, events.TopicShippingUpdated, map[string]any{"country": addr.Country, "cost": current})
	}
	return nil
}

// Restore loads persisted state. A restored coupon is looked up again and
// revalidated against the current subtotal and clock; one that no longer
// applies is dropped silently. A restored address triggers a requote.
//
// When the store cannot be read the session is left untouched and nothing
// is written back, so stored records survive. Malformed records are not
// read failures; they are discarded by the persister.
func (s *Session) Restore(ctx context.Context) error {
	snap, err := s.deps.Persist.Load(ctx, s.id)
	if err != nil {
		s.deps.Logger.Warn().Err(err).Str("session_id", s.id).Msg("restore session failed")
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	s.mu.Lock()
	s.store = cart.NewStore(snap.Items)
	s.address = snap.Address
	s.applied = nil
	subtotal := s.store.Subtotal()
	s.mu.Unlock()

	if snap.Coupon != nil {
		if c, ok := s.revalidate(ctx, *snap.Coupon, subtotal); ok {
			s.mu.Lock()
			s.applied = &c
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.saveLocked(ctx)
	s.mu.Unlock()

	if snap.Address != nil {
		if err := s.RefreshShipping(ctx); err != nil && !errors.Is(err, shipping.ErrSuperseded) {
			s.deps.Logger.Warn().Err(err).Str("session_id", s.id).Msg("requote after restore failed")
		}
	}
	return nil
}

func (s *Session) revalidate(ctx context.Context, stored coupon.Coupon, subtotal pricing.Money) (coupon.Coupon, bool) {
	current := stored
	fresh, err := s.deps.Coupons.Lookup(ctx, stored.Code)
	switch {
	case err == nil:
		current = fresh
	case errors.Is(err, coupon.ErrNotFound):
		s.dropCoupon(ctx, stored.Code, coupon.ReasonNotFound)
		return coupon.Coupon{}, false
	default:
		s.deps.Logger.Warn().Err(err).Str("session_id", s.id).Str("code", stored.Code).Msg("coupon lookup failed, revalidating stored record")
	}
	if reason := s.deps.Coupons.Validate(current, subtotal); reason != coupon.ReasonValid {
		s.dropCoupon(ctx, stored.Code, reason)
		return coupon.Coupon{}, false
	}
	return current, true
}

func (s *Session) dropCoupon(ctx context.Context, code string, reason coupon.Reason) {
	obs.CountCouponValidation(string(reason))
	s.deps.Logger.Info().Str("session_id", s.id).Str("code", code).Str("reason", string(reason)).Msg("dropping restored coupon")
	s.emit(ctx, events.TopicCouponDropped, map[string]any{"code": code, "reason": reason})
}

func (s *Session) afterItemsChanged(ctx context.Context, physicalChanged bool) (View, error) {
	if !physicalChanged {
		return s.View(), nil
	}
	err := s.RefreshShipping(ctx)
	if errors.Is(err, shipping.ErrSuperseded) {
		err = nil
	}
	return s.View(), err
}

func (s *Session) rates() shipping.RateService {
	if s.deps.Rates == nil {
		return shipping.NewLocalRates()
	}
	return s.deps.Rates
}

func (s *Session) viewLocked() View {
	subtotal := s.store.Subtotal()
	discount := decimal.Zero
	var applied *coupon.Coupon
	if s.applied != nil {
		discount = coupon.Compute(*s.applied, subtotal)
		c := *s.applied
		applied = &c
	}
	var addr *cart.Address
	if s.address != nil {
		a := *s.address
		addr = &a
	}
	summary := pricing.Compute(s.store.PricingItems(), pricing.Adjustments{
		Shipping: s.shipping,
		Tax:      s.deps.Tax.Compute(subtotal, s.address),
		Discount: discount,
	})
	return View{ID: s.id, Items: s.store.Items(), Address: addr, Coupon: applied, Invoice: summary}
}

func (s *Session) saveLocked(ctx context.Context) {
	s.touchLocked()
	s.deps.Persist.Save(context.WithoutCancel(ctx), s.id, persist.Snapshot{
		Items:   s.store.Items(),
		Address: s.address,
		Coupon:  s.applied,
	})
}

func (s *Session) touchLocked() {
	s.touch()
}

func (s *Session) emit(ctx context.Context, topic string, payload any) {
	if _, err := s.deps.Events.Emit(ctx, topic, s.id, payload); err != nil {
		s.deps.Logger.Warn().Err(err).Str("topic", topic).Str("session_id", s.id).Msg("emit event")
	}
}
