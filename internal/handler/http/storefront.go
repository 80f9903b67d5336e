package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/service"
	"github.com/Christian112b/InonicApp/internal/ui"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/httputil"
	"github.com/Christian112b/InonicApp/pkg/validator"
)

// StorefrontHandler serves the local API the UI shell drives.
type StorefrontHandler struct {
	service  *service.Storefront
	recorder *ui.Recorder
	logger   *slog.Logger

	// One shopper, one shell: calls run one at a time so each response
	// carries exactly the notifications its call raised.
	mu sync.Mutex
}

// NewStorefrontHandler creates a new storefront HTTP handler.
func NewStorefrontHandler(svc *service.Storefront, recorder *ui.Recorder, logger *slog.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		service:  svc,
		recorder: recorder,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding a product to the cart.
type AddItemRequest struct {
	ID    int64           `json:"id" validate:"required,gt=0"`
	Name  string          `json:"name" validate:"notblank,max=200"`
	Image string          `json:"image"`
	Price decimal.Decimal `json:"price"`
}

// QuantityRequest is the JSON request body for setting a line quantity.
type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

// MethodRequest is the JSON request body for choosing a payment method.
type MethodRequest struct {
	Method string `json:"method" validate:"required,oneof=card transfer cash"`
}

// CouponRequest is the JSON request body for applying a coupon. An empty
// code removes the coupon.
type CouponRequest struct {
	Code string `json:"code" validate:"max=100"`
}

// --- Handlers: cart ---

// OpenCart handles GET /api/v1/cart
func (h *StorefrontHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		view, err := h.service.OpenCart(ctx)
		if err != nil {
			return nil, err
		}
		return view, nil
	})
}

// AddItem handles POST /api/v1/cart/items
func (h *StorefrontHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price.IsNegative() {
		h.writeError(w, r, apperrors.InvalidInput("price must not be negative"))
		return
	}

	p := domain.Product{ID: domain.ProductID(req.ID), Name: req.Name, Image: req.Image, Price: req.Price}
	h.serve(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		view, err := h.service.AddItem(ctx, p)
		if err != nil {
			return nil, err
		}
		return view, nil
	})
}

// SetQuantity handles PUT /api/v1/cart/items/{id}
func (h *StorefrontHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req QuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.SetQuantity(ctx, domain.ProductID(id), req.Quantity), nil
	})
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *StorefrontHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.RemoveItem(ctx, domain.ProductID(id)), nil
	})
}

// ClearCart handles DELETE /api/v1/cart
func (h *StorefrontHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.ClearCart(ctx), nil
	})
}

// --- Handlers: session ---

// SyncAfterLogin handles POST /api/v1/session/sync
func (h *StorefrontHandler) SyncAfterLogin(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		view, err := h.service.SyncAfterLogin(ctx)
		if err != nil {
			return nil, err
		}
		return view, nil
	})
}

// Logout handles POST /api/v1/session/logout
func (h *StorefrontHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		if err := h.service.Logout(ctx); err != nil {
			return nil, err
		}
		return h.service.Cart(), nil
	})
}

// --- Handlers: addresses and coupons ---

// ListAddresses handles GET /api/v1/addresses
func (h *StorefrontHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		addrs, err := h.service.Addresses(ctx)
		if err != nil {
			return nil, err
		}
		return addrs, nil
	})
}

// AddAddress handles POST /api/v1/addresses
func (h *StorefrontHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !h.decodeOnly(w, r, &req) {
		return
	}
	h.serve(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		addrs, err := h.service.AddAddress(ctx, req)
		if err != nil {
			return nil, err
		}
		return addrs, nil
	})
}

// ListCoupons handles GET /api/v1/coupons
func (h *StorefrontHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		coupons, err := h.service.Coupons(ctx)
		if err != nil {
			return nil, err
		}
		return coupons, nil
	})
}

// --- Handlers: checkout ---

// BeginCheckout handles POST /api/v1/checkout
func (h *StorefrontHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		view, err := h.service.BeginCheckout(ctx)
		if err != nil {
			return nil, err
		}
		return view, nil
	})
}

// CheckoutState handles GET /api/v1/checkout
func (h *StorefrontHandler) CheckoutState(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(context.Context) (any, error) {
		return h.service.CheckoutState(), nil
	})
}

// CloseCheckout handles DELETE /api/v1/checkout
func (h *StorefrontHandler) CloseCheckout(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.CloseCheckout(ctx), nil
	})
}

// Next handles POST /api/v1/checkout/next
func (h *StorefrontHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.Next(ctx)
	})
}

// Back handles POST /api/v1/checkout/back
func (h *StorefrontHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.Back(ctx)
	})
}

// GoTo handles POST /api/v1/checkout/tabs/{index}
func (h *StorefrontHandler) GoTo(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid tab index: "+chi.URLParam(r, "index")))
		return
	}
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.GoTo(ctx, index)
	})
}

// SelectAddress handles PUT /api/v1/checkout/address
func (h *StorefrontHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !h.decodeOnly(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		h.writeError(w, r, apperrors.InvalidInput("address id is required"))
		return
	}
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.SelectAddress(ctx, req)
	})
}

// SelectMethod handles PUT /api/v1/checkout/method
func (h *StorefrontHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req MethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput(err.Error()))
		return
	}
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.SelectMethod(ctx, method)
	})
}

// ApplyCoupon handles POST /api/v1/checkout/coupon
func (h *StorefrontHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.ApplyCoupon(ctx, req.Code)
	})
}

// Finalize handles POST /api/v1/checkout/finalize
func (h *StorefrontHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.Finalize(ctx)
	})
}

// --- Helpers ---

// serve runs fn and writes its result together with the notifications it
// raised and the inline card error. Data returned alongside an error is
// kept so the shell can re-render, e.g. the wizard after a blocked gate.
func (h *StorefrontHandler) serve(w http.ResponseWriter, r *http.Request, status int, fn func(context.Context) (any, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recorder.Drain()
	data, err := fn(r.Context())

	resp := httputil.Response{Data: data}
	if err != nil {
		status, resp = httputil.ErrorEnvelope(r, err, h.logger)
		resp.Data = data
	}
	resp.Notifications = h.recorder.Drain()
	resp.CardError = h.recorder.CardError()
	httputil.WriteJSON(w, status, resp)
}

// decode reads and validates a JSON body. On failure it writes the error
// and returns false.
func (h *StorefrontHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !h.decodeOnly(w, r, dst) {
		return false
	}
	if err := validator.Validate(dst); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *StorefrontHandler) decodeOnly(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *StorefrontHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}
