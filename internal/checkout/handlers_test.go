package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Notices []Notice        `json:"notices"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T, env *testEnv, couponLimit func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	h := &Handler{Sessions: NewManager(*env.deps), CouponLimiter: couponLimit}
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r
}

func call(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr, env
}

func createSession(t *testing.T, router http.Handler) string {
	t.Helper()
	rr, env := call(t, router, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var v View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.NotEmpty(t, v.ID)
	return v.ID
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	sid := createSession(t, router)
	base := "/api/v1/sessions/" + sid

	item := `{"id":"p1","name":"Dragon bust","price":"30","type":"physical","weight":1.5,"dimensions":{"length":10,"width":10,"height":20}}`
	rr, env := call(t, router, http.MethodPost, base+"/items", item)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.Notices, 1)
	require.Equal(t, NoticeSuccess, env.Notices[0].Level)

	_, _ = call(t, router, http.MethodPost, base+"/items", `{"id":"m1","name":"Benchy STL","price":30,"type":"digital"}`)
	rr, _ = call(t, router, http.MethodPut, base+"/address", `{"fullName":"Lucía","city":"Sevilla","country":"España"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, env = call(t, router, http.MethodPost, base+"/coupon", `{"code":"primera20"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var applied struct {
		Session View          `json:"session"`
		Coupon  couponOutcome `json:"coupon"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &applied))
	require.True(t, applied.Coupon.Applied)
	requireMoney(t, "71.58", applied.Session.Invoice.Total)

	rr, env = call(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var v View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	requireMoney(t, "10.98", v.Invoice.Shipping)
	requireMoney(t, "12.60", v.Invoice.Tax)
	require.Empty(t, env.Notices)
}

func TestRejectedCouponReturnsReasonNotice(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	base := "/api/v1/sessions/" + createSession(t, router)
	_, _ = call(t, router, http.MethodPost, base+"/items", `{"id":"m1","name":"Benchy","price":"40","type":"digital"}`)

	rr, env := call(t, router, http.MethodPost, base+"/coupon", `{"code":"PRIMERA20"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.Notices, 1)
	require.Equal(t, NoticeError, env.Notices[0].Level)
	require.Contains(t, env.Notices[0].Message, "minimum")
}

func TestCouponOutageIsRetryable(t *testing.T) {
	e := newEnv(t)
	e.coupons.setDown(true)
	router := newRouter(t, e, nil)
	base := "/api/v1/sessions/" + createSession(t, router)

	rr, env := call(t, router, http.MethodPost, base+"/coupon", `{"code":"PRIMERA20"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "COUPON_UNAVAILABLE", env.Error.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestPayloadValidation(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	base := "/api/v1/sessions/" + createSession(t, router)

	rr, env := call(t, router, http.MethodPost, base+"/items", `{"id":"x","name":"X","price":1,"type":"resin"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "oneof", env.Error.Details["kind"])

	rr, _ = call(t, router, http.MethodPost, base+"/items", `{"id":"x","name":"X","price":-1,"type":"digital"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, _ = call(t, router, http.MethodPut, base+"/address", `{"city":"Lima"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, _ = call(t, router, http.MethodPatch, base+"/items/x", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, _ = call(t, router, http.MethodPost, base+"/coupon", `not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownSessionIDIsNotFound(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	rr, env := call(t, router, http.MethodGet, "/api/v1/sessions/not-a-uuid", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestQuantityPatchAndClear(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	base := "/api/v1/sessions/" + createSession(t, router)
	_, _ = call(t, router, http.MethodPost, base+"/items", `{"id":"m1","name":"Benchy","price":"12.50","type":"digital"}`)

	rr, env := call(t, router, http.MethodPatch, base+"/items/m1", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var v View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	requireMoney(t, "50", v.Invoice.Subtotal)

	rr, env = call(t, router, http.MethodDelete, base+"/items", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Empty(t, v.Items)
	require.Equal(t, "cart emptied", env.Notices[0].Message)
}

func TestCouponSubmissionsAreRateLimited(t *testing.T) {
	lim := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})
	router := newRouter(t, newEnv(t), stdlib.NewMiddleware(lim).Handler)
	base := "/api/v1/sessions/" + createSession(t, router)

	for i := 0; i < 2; i++ {
		rr, _ := call(t, router, http.MethodPost, base+"/coupon", `{"code":"NOPE"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	req := httptest.NewRequest(http.MethodPost, base+"/coupon", strings.NewReader(`{"code":"NOPE"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	// removing a coupon is not limited
	rr2, _ := call(t, router, http.MethodDelete, base+"/coupon", "")
	require.Equal(t, http.StatusOK, rr2.Code)
}

func TestStatelessEstimate(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	body := `{"items":[{"id":"p1","name":"Bust","price":"30","quantity":1,"type":"physical","weight":"1.5","dimensions":{"length":10,"width":10,"height":20}}],"address":{"country":"España"}}`
	rr, env := call(t, router, http.MethodPost, "/api/v1/shipping/estimate", body)
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Shipping string `json:"shipping"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	requireMoney(t, "10.98", dec(out.Shipping))
}

func TestNegativeMeasurementsAreRejected(t *testing.T) {
	router := newRouter(t, newEnv(t), nil)
	base := "/api/v1/sessions/" + createSession(t, router)

	rr, env := call(t, router, http.MethodPost, base+"/items", `{"id":"p2","name":"Print","price":"10","type":"physical","weight":-19.5}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rr, _ = call(t, router, http.MethodPost, base+"/items", `{"id":"p2","name":"Print","price":"10","type":"physical","dimensions":{"length":-10,"width":10,"height":10}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, env = call(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var v View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Empty(t, v.Items)

	body := `{"items":[{"id":"p1","name":"Bust","price":"30","quantity":1,"type":"physical","weight":"-3"}],"address":{"country":"España"}}`
	rr, env = call(t, router, http.MethodPost, "/api/v1/shipping/estimate", body)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "p1", env.Error.Details["item"])
}
