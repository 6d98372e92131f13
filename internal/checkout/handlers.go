package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/common"
	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/events"
	"github.com/noah-isme/modelshop-checkout/internal/pricing"
	"github.com/noah-isme/modelshop-checkout/internal/shipping"
)

var payloadValidator = validator.New()

const retryAfter = 5 * time.Second

// Handler exposes checkout sessions over HTTP.
type Handler struct {
	Sessions *Manager
	// Rates serves stateless estimates; it defaults to the static tables.
	Rates shipping.RateService
	// SessionLimiter bounds how fast one client can open sessions.
	SessionLimiter func(http.Handler) http.Handler
	// CouponLimiter guards coupon submissions against code guessing.
	CouponLimiter func(http.Handler) http.Handler
	// Idempotency guards item additions, which are not idempotent.
	Idempotency func(http.Handler) http.Handler
	Logger      zerolog.Logger
}

type quantityInput struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type couponInput struct {
	Code string `json:"code" validate:"required,max=64"`
}

type estimateInput struct {
	Items   []cart.LineItem `json:"items" validate:"dive"`
	Address cart.Address    `json:"address"`
}

type couponOutcome struct {
	Code    string        `json:"code"`
	Reason  coupon.Reason `json:"reason"`
	Applied bool          `json:"applied"`
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	limit := orPassthrough(h.CouponLimiter)
	idem := orPassthrough(h.Idempotency)
	r.With(orPassthrough(h.SessionLimiter)).Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sid}", func(s chi.Router) {
		s.Get("/", h.GetSession)
		s.With(idem).Post("/items", h.AddItem)
		s.Delete("/items", h.ClearCart)
		s.Patch("/items/{itemId}", h.UpdateItem)
		s.Delete("/items/{itemId}", h.RemoveItem)
		s.Put("/address", h.SetAddress)
		s.Delete("/address", h.ClearAddress)
		s.With(limit).Post("/coupon", h.ApplyCoupon)
		s.Delete("/coupon", h.RemoveCoupon)
		s.Post("/shipping/refresh", h.RefreshShipping)
	})
	r.Post("/shipping/estimate", h.Estimate)
}

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create()
	common.JSON(w, http.StatusCreated, map[string]any{"data": s.View()})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, s.View(), collector)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item cart.LineItem
	if !decodeAndValidate(w, r, &item) {
		return
	}
	if err := item.CheckAmounts(); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	view, err := s.AddItem(ctx, item)
	h.logRequote(err, s.ID())
	h.respond(w, http.StatusOK, view, collector)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var in quantityInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	view, err := s.UpdateQuantity(ctx, chi.URLParam(r, "itemId"), *in.Quantity)
	h.logRequote(err, s.ID())
	h.respond(w, http.StatusOK, view, collector)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	view, err := s.RemoveItem(ctx, chi.URLParam(r, "itemId"))
	h.logRequote(err, s.ID())
	h.respond(w, http.StatusOK, view, collector)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, s.Clear(ctx), collector)
}

func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	var addr cart.Address
	if !decodeAndValidate(w, r, &addr) {
		return
	}
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	view, err := s.SetAddress(ctx, addr)
	h.logRequote(err, s.ID())
	h.respond(w, http.StatusOK, view, collector)
}

func (h *Handler) ClearAddress(w http.ResponseWriter, r *http.Request) {
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, s.ClearAddress(ctx), collector)
}

func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var in couponInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	res, view, err := s.ApplyCoupon(ctx, in.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"session": view,
			"coupon":  couponOutcome{Code: res.Code, Reason: res.Reason, Applied: res.OK()},
		},
		"notices": Notices(collector.Events()),
	})
}

func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, s.RemoveCoupon(ctx), collector)
}

func (h *Handler) RefreshShipping(w http.ResponseWriter, r *http.Request) {
	ctx, collector := events.WithCollector(r.Context())
	s, ok := h.session(ctx, w, r)
	if !ok {
		return
	}
	if err := s.RefreshShipping(ctx); err != nil && !errors.Is(err, shipping.ErrSuperseded) {
		writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, s.View(), collector)
}

// Estimate prices shipping for an arbitrary cart without touching a session.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var in estimateInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	for _, item := range in.Items {
		if err := item.CheckAmounts(); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"item": item.ID})
			return
		}
	}
	rates := h.Rates
	if rates == nil {
		rates = shipping.NewLocalRates()
	}
	cost, err := rates.Quote(r.Context(), shipping.Request{Items: in.Items, Address: &in.Address})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]pricing.Money{"shipping": cost}})
}

func (h *Handler) session(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if h.Sessions == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout not configured", nil)
		return nil, false
	}
	s, err := h.Sessions.Get(ctx, chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrInvalidSessionID):
		return common.NewAppError("NOT_FOUND", "session not found", http.StatusNotFound, err)
	case errors.Is(err, ErrRestoreFailed):
		return common.Retryable("SESSION_UNAVAILABLE", "session storage unavailable, please retry", retryAfter, err)
	case errors.Is(err, coupon.ErrUnavailable):
		return common.Retryable("COUPON_UNAVAILABLE", "coupon service unavailable, please retry", retryAfter, err)
	case errors.Is(err, shipping.ErrUnavailable):
		return common.Retryable("SHIPPING_UNAVAILABLE", "shipping rates unavailable, please retry", retryAfter, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.Retryable("UNAVAILABLE", "request cancelled", retryAfter, err)
	default:
		return common.NewAppError("INTERNAL", "unexpected error", http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteAppError(w, toAppError(err))
}

func (h *Handler) respond(w http.ResponseWriter, status int, view View, collector *events.Collector) {
	common.JSON(w, status, map[string]any{
		"data":    view,
		"notices": Notices(collector.Events()),
	})
}

func (h *Handler) logRequote(err error, sessionID string) {
	if err != nil {
		h.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("mutation applied but shipping was not requoted")
	}
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := payloadValidator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[strings.ToLower(fe.Field())] = fe.Tag()
			}
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid payload", details)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}
