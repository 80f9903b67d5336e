// Package service is the storefront session: it ties the local cart, the
// reconciler, the coupon validator, the checkout wizard and the payment flow
// into the operations the UI shell calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Christian112b/InonicApp/internal/cart"
	"github.com/Christian112b/InonicApp/internal/checkout"
	"github.com/Christian112b/InonicApp/internal/coupon"
	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/payment"
	"github.com/Christian112b/InonicApp/internal/pricing"
	"github.com/Christian112b/InonicApp/internal/reconciler"
	"github.com/Christian112b/InonicApp/internal/ui"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/validator"
)

// User-facing messages.
const (
	MsgItemAdded       = "Producto agregado al carrito"
	MsgCartLoadFailed  = "No se pudo cargar el carrito."
	MsgSyncFailed      = "Error al sincronizar carrito. Intenta de nuevo."
	MsgAddressesFailed = "No se pudieron cargar las direcciones."
	MsgAddressInvalid  = "Revisa los datos de la dirección."
	MsgAddressSaved    = "Dirección guardada correctamente!"
	MsgAddressFailed   = "No se pudo guardar la dirección."
	MsgLoggedOut       = "Sesión cerrada"
)

// Backend is the part of the storefront backend the session calls directly.
type Backend interface {
	Logout(ctx context.Context) error
	GetAddresses(ctx context.Context) ([]domain.Address, error)
	AddAddress(ctx context.Context, a domain.Address) error
}

// CartView is the cart panel: lines plus the preview breakdown.
type CartView struct {
	Items   []domain.CartLine `json:"items"`
	Preview pricing.Preview   `json:"preview"`
}

// CheckoutView is what opening checkout returns.
type CheckoutView struct {
	State   checkout.State  `json:"state"`
	Coupons []domain.Coupon `json:"coupons"`
}

// Storefront implements the shopper-facing operations of one session.
type Storefront struct {
	store     *cart.Store
	sync      *reconciler.Reconciler
	coupons   *coupon.Validator
	wizard    *checkout.Wizard
	flow      *payment.Flow
	backend   Backend
	presenter ui.Presenter
	logger    *slog.Logger
}

// NewStorefront creates the session service.
func NewStorefront(
	store *cart.Store,
	sync *reconciler.Reconciler,
	coupons *coupon.Validator,
	wizard *checkout.Wizard,
	flow *payment.Flow,
	b Backend,
	presenter ui.Presenter,
	logger *slog.Logger,
) *Storefront {
	return &Storefront{
		store:     store,
		sync:      sync,
		coupons:   coupons,
		wizard:    wizard,
		flow:      flow,
		backend:   b,
		presenter: presenter,
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Cart panel
// ---------------------------------------------------------------------------

// OpenCart gates the cart panel on an active session, pulls the backend
// cart and returns it. Without a session the cart is not revealed.
func (s *Storefront) OpenCart(ctx context.Context) (CartView, error) {
	lines, err := s.sync.Open(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionRequired) {
			s.presenter.Notify(ctx, ui.LevelWarning, reconciler.MsgSessionRequired)
			return CartView{}, err
		}
		if errors.Is(err, apperrors.ErrBusy) {
			return CartView{}, err
		}
		s.logger.WarnContext(ctx, "failed to open cart", slog.String("error", err.Error()))
		s.presenter.Notify(ctx, ui.LevelError, MsgCartLoadFailed)
		return CartView{}, err
	}
	return newCartView(lines), nil
}

// Cart returns the local cart without talking to the backend.
func (s *Storefront) Cart() CartView {
	return newCartView(s.store.Lines())
}

// AddItem adds one unit of p. The backend hears about it in the background.
func (s *Storefront) AddItem(ctx context.Context, p domain.Product) (CartView, error) {
	line, err := s.store.AddItem(ctx, p)
	if err != nil {
		return CartView{}, err
	}
	s.presenter.Notify(ctx, ui.LevelSuccess, MsgItemAdded)
	s.logger.DebugContext(ctx, "item added",
		slog.String("product_id", line.ID.String()),
		slog.Int("quantity", line.Quantity),
	)
	return s.Cart(), nil
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (s *Storefront) SetQuantity(ctx context.Context, id domain.ProductID, qty int) CartView {
	s.store.SetQuantity(ctx, id, qty)
	return s.Cart()
}

// RemoveItem deletes a line. Missing lines are ignored.
func (s *Storefront) RemoveItem(ctx context.Context, id domain.ProductID) CartView {
	s.store.RemoveItem(ctx, id)
	return s.Cart()
}

// ClearCart empties the cart.
func (s *Storefront) ClearCart(ctx context.Context) CartView {
	s.store.Clear(ctx)
	return s.Cart()
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// SyncAfterLogin reconciles the local cart with the backend right after the
// shopper signs in. Failures are logged and do not block the session.
func (s *Storefront) SyncAfterLogin(ctx context.Context) (CartView, error) {
	if err := s.sync.SyncAfterLogin(ctx); err != nil {
		if errors.Is(err, apperrors.ErrBusy) {
			return CartView{}, err
		}
		s.logger.WarnContext(ctx, "cart sync after login failed", slog.String("error", err.Error()))
	}
	return s.Cart(), nil
}

// Logout ends the backend session and drops every piece of local session
// state: the cart and its snapshot, the coupon, the wizard and the saved
// card suffix. A failed backend logout still tears down locally.
func (s *Storefront) Logout(ctx context.Context) error {
	if err := s.backend.Logout(ctx); err != nil {
		s.logger.WarnContext(ctx, "backend logout failed", slog.String("error", err.Error()))
	}

	s.sync.Wait()
	if err := s.store.Forget(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to erase cart snapshot", slog.String("error", err.Error()))
	}
	s.coupons.Clear()
	s.wizard.Reset(ctx)

	s.presenter.Notify(ctx, ui.LevelInfo, MsgLoggedOut)
	s.logger.InfoContext(ctx, "session logged out")
	return nil
}

// ---------------------------------------------------------------------------
// Address book
// ---------------------------------------------------------------------------

// Addresses lists the shopper's saved addresses.
func (s *Storefront) Addresses(ctx context.Context) ([]domain.Address, error) {
	addrs, err := s.backend.GetAddresses(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load addresses", slog.String("error", err.Error()))
		s.presenter.Notify(ctx, ui.LevelError, MsgAddressesFailed)
		return nil, fmt.Errorf("get addresses: %w", err)
	}
	return addrs, nil
}

// AddAddress validates and saves a, then returns the reloaded list.
func (s *Storefront) AddAddress(ctx context.Context, a domain.Address) ([]domain.Address, error) {
	a.ID = 0
	if err := validator.Validate(a); err != nil {
		s.presenter.Notify(ctx, ui.LevelWarning, MsgAddressInvalid)
		return nil, err
	}

	if err := s.backend.AddAddress(ctx, a); err != nil {
		msg := MsgAddressFailed
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperrors.ErrInvalidInput) && appErr.Message != "" {
			msg = appErr.Message
		}
		s.logger.WarnContext(ctx, "failed to save address", slog.String("error", err.Error()))
		s.presenter.Notify(ctx, ui.LevelError, msg)
		return nil, fmt.Errorf("add address: %w", err)
	}

	s.presenter.Notify(ctx, ui.LevelSuccess, MsgAddressSaved)
	return s.Addresses(ctx)
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

// Coupons lists the coupons on offer, falling back to the cached list.
func (s *Storefront) Coupons(ctx context.Context) ([]domain.Coupon, error) {
	return s.coupons.List(ctx)
}

// BeginCheckout persists the whole cart and waits for the backend before
// opening the wizard. A failed persist keeps the wizard closed.
func (s *Storefront) BeginCheckout(ctx context.Context) (CheckoutView, error) {
	if s.store.IsEmpty() {
		s.presenter.Notify(ctx, ui.LevelWarning, checkout.MsgEmptyCart)
		return CheckoutView{}, apperrors.CheckoutBlocked(checkout.MsgEmptyCart)
	}

	if err := s.sync.PushAndAwait(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cart before checkout", slog.String("error", err.Error()))
		s.presenter.Notify(ctx, ui.LevelError, MsgSyncFailed)
		return CheckoutView{}, err
	}

	st := s.wizard.Open(ctx)

	coupons, err := s.coupons.List(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "coupon list unavailable", slog.String("error", err.Error()))
		coupons = []domain.Coupon{}
	}

	s.logger.InfoContext(ctx, "checkout opened", slog.Int("lines", len(s.store.Lines())))
	return CheckoutView{State: st, Coupons: coupons}, nil
}

// CheckoutState returns the wizard view.
func (s *Storefront) CheckoutState() checkout.State {
	return s.wizard.State()
}

// CloseCheckout hides the wizard.
func (s *Storefront) CloseCheckout(ctx context.Context) checkout.State {
	s.wizard.Close(ctx)
	return s.wizard.State()
}

// Next advances the wizard.
func (s *Storefront) Next(ctx context.Context) (checkout.State, error) {
	return s.wizard.Next(ctx)
}

// Back steps the wizard back.
func (s *Storefront) Back(ctx context.Context) (checkout.State, error) {
	return s.wizard.Back(ctx)
}

// GoTo jumps the wizard to a tab.
func (s *Storefront) GoTo(ctx context.Context, index int) (checkout.State, error) {
	return s.wizard.GoTo(ctx, index)
}

// SelectAddress picks the shipping address.
func (s *Storefront) SelectAddress(ctx context.Context, a domain.Address) (checkout.State, error) {
	return s.wizard.SelectAddress(ctx, a)
}

// SelectMethod picks the payment method.
func (s *Storefront) SelectMethod(ctx context.Context, m domain.PaymentMethod) (checkout.State, error) {
	return s.wizard.SelectMethod(ctx, m)
}

// ApplyCoupon validates code against the current subtotal. An empty code
// removes the coupon. The returned state carries the new totals.
func (s *Storefront) ApplyCoupon(ctx context.Context, code string) (checkout.State, error) {
	subtotal := pricing.Subtotal(s.store.Lines())
	if _, err := s.coupons.Apply(ctx, code, subtotal); err != nil {
		return s.wizard.State(), err
	}
	return s.wizard.State(), nil
}

// Finalize runs the payment.
func (s *Storefront) Finalize(ctx context.Context) (payment.Result, error) {
	return s.flow.Execute(ctx)
}

func newCartView(lines []domain.CartLine) CartView {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartView{Items: lines, Preview: pricing.CartPreview(lines)}
}
