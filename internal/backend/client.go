// Package backend is the REST client for the storefront backend. The backend
// keeps its session in a cookie, so one Client speaks for one shopper.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/Christian112b/InonicApp/internal/domain"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/httpclient"
	"github.com/Christian112b/InonicApp/pkg/logger"
	"github.com/Christian112b/InonicApp/pkg/middleware"
)

// Backend paths.
const (
	pathCheckSession   = "/check-session"
	pathAddCart        = "/addCart"
	pathSaveCart       = "/saveCart"
	pathGetItemsCart   = "/getItemsCart"
	pathGetAddresses   = "/getAddresses"
	pathAddAddress     = "/api/address/add"
	pathGetDiscounts   = "/get-discounts"
	pathValidateCoupon = "/validate-coupon"
	pathCouponUsage    = "/check-coupon-usage"
	pathRecordUsage    = "/record-coupon-usage"
	pathPaymentIntent  = "/create-payment-intent"
	pathLogout         = "/logout"
)

const maxBodyBytes = 1 << 20

// Client talks to the storefront backend through a circuit breaker.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a backend client rooted at baseURL. The wrapped client
// gets a fresh cookie jar.
func NewClient(cb *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *Client {
	c := &Client{
		http:    cb,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
	c.ResetSession()
	return c
}

// ResetSession drops every backend cookie so the next call starts a new
// session.
func (c *Client) ResetSession() {
	// cookiejar.New only fails on a bad PublicSuffixList.
	jar, _ := cookiejar.New(nil)
	c.http.Client().SetJar(jar)
}

// Healthy reports an error while the breaker is open.
func (c *Client) Healthy(context.Context) error {
	if c.http.State() == gobreaker.StateOpen {
		return apperrors.ServiceUnavailable("backend circuit breaker is open")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// CheckSession asks whether the backend session is signed in.
func (c *Client) CheckSession(ctx context.Context) (Session, error) {
	var out sessionResponse
	if err := c.call(ctx, http.MethodGet, pathCheckSession, nil, &out); err != nil {
		return Session{}, err
	}
	return Session{Active: out.OK, UserID: string(out.UserID)}, nil
}

// Logout ends the backend session and forgets its cookies.
func (c *Client) Logout(ctx context.Context) error {
	defer c.ResetSession()

	resp, err := c.send(ctx, http.MethodGet, pathLogout, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", pathLogout, resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

// AddCart tells the backend one unit of id was added.
func (c *Client) AddCart(ctx context.Context, id domain.ProductID) error {
	var out ackResponse
	if err := c.call(ctx, http.MethodPost, pathAddCart, addCartRequest{ProductID: int64(id)}, &out); err != nil {
		return err
	}
	return out.err(pathAddCart)
}

// SaveCart overwrites the backend cart with lines.
func (c *Client) SaveCart(ctx context.Context, lines []domain.CartLine) error {
	req := saveCartRequest{Items: make([]cartItem, len(lines))}
	for i, l := range lines {
		req.Items[i] = newCartItem(l)
	}

	var out ackResponse
	if err := c.call(ctx, http.MethodPost, pathSaveCart, req, &out); err != nil {
		return err
	}
	return out.err(pathSaveCart)
}

// GetItemsCart fetches the backend cart. Malformed lines are dropped.
func (c *Client) GetItemsCart(ctx context.Context) ([]domain.CartLine, error) {
	var out itemsResponse
	if err := c.call(ctx, http.MethodGet, pathGetItemsCart, nil, &out); err != nil {
		return nil, err
	}
	if err := out.ackResponse.err(pathGetItemsCart); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return []domain.CartLine{}, nil
	}

	lines, dropped, err := domain.ParseLines(out.Items)
	if err != nil {
		return nil, fmt.Errorf("decode %s items: %w", pathGetItemsCart, err)
	}
	if dropped > 0 {
		c.logger.WarnContext(ctx, "backend cart had invalid lines", slog.Int("dropped", dropped))
	}
	return lines, nil
}

// ---------------------------------------------------------------------------
// Addresses
// ---------------------------------------------------------------------------

// GetAddresses lists the shopper's saved addresses.
func (c *Client) GetAddresses(ctx context.Context) ([]domain.Address, error) {
	var out addressesResponse
	if err := c.call(ctx, http.MethodGet, pathGetAddresses, nil, &out); err != nil {
		return nil, err
	}
	addrs := make([]domain.Address, len(out.Addresses))
	for i, a := range out.Addresses {
		addrs[i] = a.domain()
	}
	return addrs, nil
}

// AddAddress saves a new address.
func (c *Client) AddAddress(ctx context.Context, a domain.Address) error {
	req := addAddressRequest{
		Alias:        a.Alias,
		Street:       a.Street,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
	}
	var out ackResponse
	if err := c.call(ctx, http.MethodPost, pathAddAddress, req, &out); err != nil {
		return err
	}
	return out.err(pathAddAddress)
}

// ---------------------------------------------------------------------------
// Coupons
// ---------------------------------------------------------------------------

// GetDiscounts lists every coupon the backend offers.
func (c *Client) GetDiscounts(ctx context.Context) ([]domain.Coupon, error) {
	var out []domain.Coupon
	if err := c.call(ctx, http.MethodGet, pathGetDiscounts, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Coupon{}
	}
	return out, nil
}

// ValidateCoupon looks a coupon up by name. A rejected code is not an
// error: it comes back as Valid false with the backend's message.
func (c *Client) ValidateCoupon(ctx context.Context, name string) (CouponValidation, error) {
	resp, err := c.send(ctx, http.MethodPost, pathValidateCoupon, validateCouponRequest{Name: name})
	if err != nil {
		return CouponValidation{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return CouponValidation{}, fmt.Errorf("read %s response: %w", pathValidateCoupon, err)
	}

	// 400 and 404 carry the rejection message; other non-2xx are failures.
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound:
	default:
		return CouponValidation{}, httpclient.ErrorFromBody(resp.StatusCode, body, pathValidateCoupon)
	}

	var out validateCouponResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return CouponValidation{}, fmt.Errorf("decode %s response (status %d): %w", pathValidateCoupon, resp.StatusCode, err)
	}
	if !out.OK || out.Coupon == nil {
		return CouponValidation{Message: out.Text()}, nil
	}
	return CouponValidation{Valid: true, Coupon: *out.Coupon}, nil
}

// CheckCouponUsage asks whether userID already redeemed couponID.
func (c *Client) CheckCouponUsage(ctx context.Context, userID string, couponID int64) (CouponUsage, error) {
	var out couponUsageResponse
	req := couponUsageRequest{UserID: userID, CouponID: couponID}
	if err := c.call(ctx, http.MethodPost, pathCouponUsage, req, &out); err != nil {
		return CouponUsage{}, err
	}
	return CouponUsage{Used: out.Used, UsageDate: out.UsageDate}, nil
}

// RecordCouponUsage records that userID redeemed couponID on paymentID.
func (c *Client) RecordCouponUsage(ctx context.Context, userID string, couponID int64, paymentID string) error {
	req := recordUsageRequest{CouponID: couponID}
	if userID != "" {
		req.UserID = &userID
	}
	if paymentID != "" {
		req.PaymentID = &paymentID
	}
	return c.call(ctx, http.MethodPost, pathRecordUsage, req, nil)
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// CreatePaymentIntent asks the backend to start a payment.
func (c *Client) CreatePaymentIntent(ctx context.Context, in IntentRequest) (domain.PaymentIntent, error) {
	req := intentRequest{Amount: in.Amount, MethodID: in.Method.BackendID()}
	if in.CouponID != 0 {
		req.CouponID = &in.CouponID
	}
	if in.AddressID != 0 {
		req.AddressID = &in.AddressID
	}

	var out intentResponse
	if err := c.call(ctx, http.MethodPost, pathPaymentIntent, req, &out); err != nil {
		return domain.PaymentIntent{}, err
	}
	if out.Error != "" {
		return domain.PaymentIntent{}, apperrors.PaymentFailed(out.Error)
	}
	return domain.PaymentIntent{
		ClientSecret: out.ClientSecret,
		Status:       out.Status,
		PaymentID:    string(out.PaymentID),
		CloseModal:   out.CloseModal,
	}, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call sends in as JSON and decodes a 2xx body into out. Non-2xx answers are
// mapped to AppErrors.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// send performs the request. 5xx answers surface as errors; anything below
// comes back as a response the caller must close.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := middleware.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		var se *httpclient.ServerError
		switch {
		case errors.As(err, &se):
			return nil, httpclient.ErrorFromBody(se.StatusCode, se.Body, path)
		case errors.Is(err, httpclient.ErrCircuitOpen), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%s: %w", path, apperrors.ServiceUnavailable("storefront backend is unavailable"))
		default:
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
	}
	return resp, nil
}
