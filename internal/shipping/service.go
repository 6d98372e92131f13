package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/pricing"
	"github.com/noah-isme/modelshop-checkout/internal/resilience"
)

var (
	// ErrUnavailable indicates the rate source failed. Callers keep the last
	// known cost and may retry.
	ErrUnavailable = errors.New("shipping rates unavailable")
	// ErrSuperseded is returned when a newer estimate replaced this one.
	ErrSuperseded = errors.New("shipping estimate superseded")
)

// Request is the input to a shipping quote.
type Request struct {
	Items   []cart.LineItem `json:"items"`
	Address *cart.Address   `json:"address"`
}

// RateService produces a shipping cost for a cart and destination.
type RateService interface {
	Quote(ctx context.Context, req Request) (pricing.Money, error)
}

// LocalRates quotes from the in-process Estimator.
type LocalRates struct {
	Estimator Estimator
}

// NewLocalRates returns a LocalRates over DefaultTable.
func NewLocalRates() LocalRates {
	return LocalRates{Estimator: NewEstimator()}
}

// Quote implements RateService. It honours cancellation but never fails otherwise.
func (l LocalRates) Quote(ctx context.Context, req Request) (pricing.Money, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return l.Estimator.Estimate(req.Items, req.Address), nil
}

// RemoteRates quotes from an HTTP rate service. The endpoint receives the
// Request as JSON and answers {"cost": "12.34"}.
type RemoteRates struct {
	Endpoint string
	Client   resilience.HTTPClient
}

type quoteResponse struct {
	Cost decimal.Decimal `json:"cost"`
}

// Quote implements RateService.
func (r RemoteRates) Quote(ctx context.Context, req Request) (pricing.Money, error) {
	if req.Address == nil {
		return decimal.Zero, nil
	}
	ctx, span := otel.Tracer("shipping").Start(ctx, "shipping.quote")
	defer span.End()
	span.SetAttributes(
		attribute.String("shipping.country", cart.CountryKey(req.Address.Country)),
		attribute.Int("shipping.lines", len(req.Items)),
	)

	cost, err := r.quote(ctx, req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return decimal.Zero, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return cost, nil
}

func (r RemoteRates) quote(ctx context.Context, req Request) (pricing.Money, error) {
	endpoint := strings.TrimSpace(r.Endpoint)
	if endpoint == "" {
		return decimal.Zero, errors.New("rate endpoint not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return decimal.Zero, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(ctx, httpReq)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode quote: %w", err)
	}
	if out.Cost.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative quote %s", out.Cost)
	}
	return pricing.Round(out.Cost), nil
}
