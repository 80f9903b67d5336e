package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Christian112b/InonicApp/internal/domain"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/httpclient"
	"github.com/Christian112b/InonicApp/pkg/middleware"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), httpclient.DefaultCircuitBreakerConfig(t.Name()), logger)
	return NewClient(cb, srv.URL+"/", logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
	return m
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

func TestCheckSession_NumericUserID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check-session", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": 42})
	}))

	s, err := c.CheckSession(context.Background())

	require.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, "42", s.UserID)
}

func TestCheckSession_Anonymous(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false})
	}))

	s, err := c.CheckSession(context.Background())

	require.NoError(t, err)
	assert.False(t, s.Active)
	assert.Empty(t, s.UserID)
}

func TestSessionCookie_KeptUntilReset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/check-session", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": "7"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"ok": false})
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	first, err := c.CheckSession(ctx)
	require.NoError(t, err)
	second, err := c.CheckSession(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	third, err := c.CheckSession(ctx)
	require.NoError(t, err)

	assert.False(t, first.Active)
	assert.True(t, second.Active)
	assert.False(t, third.Active)
}

func TestSend_ForwardsBearerAndCorrelation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))
	ctx := middleware.WithToken(context.Background(), "tok-1", nil)

	_, err := c.CheckSession(ctx)

	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

func TestAddCart_SendsProductID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/addCart", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, float64(12), decodeBody(t, r)["id_producto"])
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mensaje": "Producto agregado"})
	}))

	require.NoError(t, c.AddCart(context.Background(), 12))
}

func TestAddCart_NotFoundCarriesMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "mensaje": "Producto no encontrado o inactivo."})
	}))

	err := c.AddCart(context.Background(), 12)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "Producto no encontrado o inactivo.")
}

func TestAddCart_OKFalseIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "mensaje": "Producto sin stock disponible."})
	}))

	err := c.AddCart(context.Background(), 12)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Producto sin stock disponible.", appErr.Message)
}

func TestSaveCart_SendsItemsWithNumericPrices(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/saveCart", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":[{"id":1,"name":"Trufa","image":"t.png","price":25.5,"quantity":2}]}`, string(body))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))

	err := c.SaveCart(context.Background(), []domain.CartLine{
		{ID: 1, Name: "Trufa", Image: "t.png", UnitPrice: decimal.RequireFromString("25.50"), Quantity: 2},
	})

	require.NoError(t, err)
}

func TestSaveCart_EmptyCartSendsEmptyArray(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"items":[]}`, string(body))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))

	require.NoError(t, c.SaveCart(context.Background(), nil))
}

func TestSaveCart_Unauthenticated(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "mensaje": "No autenticado"})
	}))

	err := c.SaveCart(context.Background(), nil)

	assert.ErrorIs(t, err, apperrors.ErrSessionRequired)
}

func TestGetItemsCart_DropsInvalidLines(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getItemsCart", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"items":[
			{"id":1,"name":"Trufa","image":"t.png","price":"25.00","quantity":2},
			{"id":2,"name":"Roto","quantity":1}
		]}`))
	}))

	lines, err := c.GetItemsCart(context.Background())

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.ProductID(1), lines[0].ID)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.NewFromInt(25)))
}

func TestGetItemsCart_Empty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": []any{}})
	}))

	lines, err := c.GetItemsCart(context.Background())

	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestGetItemsCart_SessionRequired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "mensaje": "Debes iniciar sesión para ver tu carrito."})
	}))

	_, err := c.GetItemsCart(context.Background())

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SESSION_REQUIRED", appErr.Code)
	assert.Equal(t, "Debes iniciar sesión para ver tu carrito.", appErr.Message)
}

// ---------------------------------------------------------------------------
// Addresses
// ---------------------------------------------------------------------------

func TestGetAddresses_MapsBackendFields(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"direcciones":[
			{"id":3,"alias":"Casa","calle":"Av. Universidad 123","colonia":"Centro","ciudad":"SLP","estado":"SLP","cp":78000},
			{"id":4,"alias":"Oficina","calle":"Real 456","colonia":"Norte","ciudad":"SLP","estado":"SLP","cp":"07800"}
		]}`))
	}))

	addrs, err := c.GetAddresses(context.Background())

	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, domain.Address{
		ID: 3, Alias: "Casa", Street: "Av. Universidad 123", Neighborhood: "Centro",
		City: "SLP", State: "SLP", PostalCode: "78000",
	}, addrs[0])
	assert.Equal(t, "07800", addrs[1].PostalCode)
}

func TestAddAddress_SendsCamelCaseBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/address/add", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "Casa", body["alias"])
		assert.Equal(t, "Centro", body["neighborhood"])
		assert.Equal(t, "78000", body["postalCode"])
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Dirección agregada"})
	}))

	err := c.AddAddress(context.Background(), domain.Address{
		Alias: "Casa", Street: "Av. 1", Neighborhood: "Centro", City: "SLP", State: "SLP", PostalCode: "78000",
	})

	require.NoError(t, err)
}

func TestAddAddress_RejectedWithMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "Código postal debe tener 5 dígitos"})
	}))

	err := c.AddAddress(context.Background(), domain.Address{})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_INPUT", appErr.Code)
	assert.Equal(t, "Código postal debe tener 5 dígitos", appErr.Message)
}

// ---------------------------------------------------------------------------
// Coupons
// ---------------------------------------------------------------------------

func TestGetDiscounts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id_descuento":7,"nombre":"CACAO40","tipo":"porcentaje","valor":"40.00"}]`))
	}))

	coupons, err := c.GetDiscounts(context.Background())

	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, int64(7), coupons[0].ID)
	assert.True(t, coupons[0].IsPercentage())
	assert.True(t, coupons[0].Value.Equal(decimal.NewFromInt(40)))
}

func TestValidateCoupon_Valid(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CACAO40", decodeBody(t, r)["coupon_name"])
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"cupon": map[string]any{"id_descuento": 7, "nombre": "CACAO40", "tipo": "porcentaje", "valor": 40},
		})
	}))

	v, err := c.ValidateCoupon(context.Background(), "CACAO40")

	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, int64(7), v.Coupon.ID)
}

func TestValidateCoupon_RejectedIsNotAnError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "mensaje": "Cupón no encontrado o no válido."})
	}))

	v, err := c.ValidateCoupon(context.Background(), "NOPE")

	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "Cupón no encontrado o no válido.", v.Message)
}

func TestValidateCoupon_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "mensaje": "Error interno del servidor."})
	}))

	_, err := c.ValidateCoupon(context.Background(), "X")

	assert.Error(t, err)
}

func TestCheckCouponUsage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "42", body["user_id"])
		assert.Equal(t, float64(7), body["coupon_id"])
		writeJSON(w, http.StatusOK, map[string]any{"used": true, "usage_date": "2025-03-01"})
	}))

	u, err := c.CheckCouponUsage(context.Background(), "42", 7)

	require.NoError(t, err)
	assert.True(t, u.Used)
	assert.Equal(t, "2025-03-01", u.UsageDate)
}

func TestRecordCouponUsage_NullsMissingIDs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"user_id":null,"coupon_id":7,"payment_id":null}`, string(body))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))

	require.NoError(t, c.RecordCouponUsage(context.Background(), "", 7, ""))
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

func TestCreatePaymentIntent_Pending(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":10800,"method_id":5}`, string(body))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "pendiente", "closeModal": true})
	}))

	intent, err := c.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 10800, Method: domain.MethodCash})

	require.NoError(t, err)
	assert.True(t, intent.Pending())
	assert.True(t, intent.CloseModal)
}

func TestCreatePaymentIntent_CardWithCouponAndAddress(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":8800,"method_id":1,"cupon_id":7,"direccion_id":3}`, string(body))
		writeJSON(w, http.StatusOK, map[string]any{"clientSecret": "pi_1_secret_2", "ok": true, "status": "exitoso", "closeModal": true})
	}))

	intent, err := c.CreatePaymentIntent(context.Background(), IntentRequest{
		Amount: 8800, Method: domain.MethodCard, CouponID: 7, AddressID: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_2", intent.ClientSecret)
	assert.False(t, intent.Pending())
}

func TestCreatePaymentIntent_ErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid amount"})
	}))

	_, err := c.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 0, Method: domain.MethodCard})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid amount")
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestServiceUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "maintenance"})
	}))

	_, err := c.CheckSession(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestBreakerOpen_ReportsUnhealthy(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx := context.Background()
	require.NoError(t, c.Healthy(ctx))

	for i := 0; i < 5; i++ {
		_, _ = c.CheckSession(ctx)
	}
	_, err := c.CheckSession(ctx)

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.ErrorIs(t, c.Healthy(ctx), apperrors.ErrServiceUnavail)
}
