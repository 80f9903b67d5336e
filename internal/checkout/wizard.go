// Package checkout is the checkout wizard: four ordered tabs with a gate on
// each, lazy setup of the payment tab and a read-only summary on the last.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/payment/provider"
	"github.com/Christian112b/InonicApp/internal/pricing"
	"github.com/Christian112b/InonicApp/internal/ui"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

// Gate messages.
const (
	MsgEmptyCart         = "Tu carrito está vacío"
	MsgNoAddress         = "Selecciona una dirección de envío para continuar."
	MsgNoMethod          = "Selecciona un método de pago para continuar."
	MsgIncompleteConfirm = "Completa la dirección y el método de pago antes de confirmar."
	msgCardMountFailed   = "Formulario de tarjeta no inicializado"
	noAddressLabel       = "No seleccionado"
)

// Footer is the wizard's primary action.
type Footer string

const (
	FooterNext     Footer = "next"
	FooterFinalize Footer = "finalize"
)

// CartView is the read side of the cart the wizard needs.
type CartView interface {
	Lines() []domain.CartLine
	IsEmpty() bool
}

// CouponSource yields the selected coupon, if any.
type CouponSource interface {
	SelectedCoupon() *domain.Coupon
}

// Summary is the read-only recap on the Confirm tab.
type Summary struct {
	Address string         `json:"address"`
	Method  string         `json:"method"`
	Coupon  string         `json:"coupon,omitempty"`
	Totals  pricing.Totals `json:"totals"`
	Card    string         `json:"card,omitempty"`
}

// State is a snapshot of the wizard for rendering.
type State struct {
	Open    bool                 `json:"open"`
	Tab     domain.Tab           `json:"tab"`
	TabName string               `json:"tab_name"`
	Address *domain.Address      `json:"address,omitempty"`
	Method  domain.PaymentMethod `json:"method,omitempty"`
	Footer  Footer               `json:"footer"`
	Totals  pricing.Totals       `json:"totals"`
	Summary *Summary             `json:"summary,omitempty"`
}

// Wizard is the checkout state machine.
type Wizard struct {
	cart      CartView
	coupons   CouponSource
	gateway   provider.CardGateway
	presenter ui.Presenter
	logger    *slog.Logger

	mu              sync.Mutex
	open            bool
	tab             domain.Tab
	address         *domain.Address
	method          domain.PaymentMethod
	summary         *Summary
	methodsRendered bool
	cardSuffix      string
}

// NewWizard creates a closed wizard.
func NewWizard(cart CartView, coupons CouponSource, gateway provider.CardGateway, presenter ui.Presenter, logger *slog.Logger) *Wizard {
	return &Wizard{
		cart:      cart,
		coupons:   coupons,
		gateway:   gateway,
		presenter: presenter,
		logger:    logger,
	}
}

// Open shows the wizard on the Summary tab with nothing selected.
func (w *Wizard) Open(ctx context.Context) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.open = true
	w.tab = domain.TabSummary
	w.address = nil
	w.method = ""
	w.summary = nil

	w.logger.DebugContext(ctx, "checkout wizard opened")
	return w.stateLocked()
}

// Close hides the wizard.
func (w *Wizard) Close(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return
	}
	w.open = false
	w.summary = nil
	w.presenter.ClearCardError(ctx)
	w.logger.DebugContext(ctx, "checkout wizard closed")
}

// Reset closes the wizard and drops everything tied to the session: the
// rendered payment methods, the saved card suffix and the card element.
func (w *Wizard) Reset(ctx context.Context) {
	w.Close(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.methodsRendered = false
	w.cardSuffix = ""
	w.address = nil
	w.method = ""
	w.gateway.Unmount()
	w.logger.DebugContext(ctx, "checkout wizard reset")
}

// IsOpen reports whether the wizard is showing.
func (w *Wizard) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// State returns the current view state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Next advances one tab if the current tab's gate passes. On the last tab it
// does nothing.
func (w *Wizard) Next(ctx context.Context) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpenLocked(); err != nil {
		return State{}, err
	}
	if w.tab == domain.TabConfirm {
		return w.stateLocked(), nil
	}
	if err := w.gateLocked(ctx, w.tab); err != nil {
		return w.stateLocked(), err
	}
	if err := w.enterLocked(ctx, domain.ClampTab(int(w.tab)+1)); err != nil {
		return w.stateLocked(), err
	}
	return w.stateLocked(), nil
}

// Back returns one tab. Going back is never gated.
func (w *Wizard) Back(ctx context.Context) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpenLocked(); err != nil {
		return State{}, err
	}
	if err := w.enterLocked(ctx, domain.ClampTab(int(w.tab)-1)); err != nil {
		return w.stateLocked(), err
	}
	return w.stateLocked(), nil
}

// GoTo jumps to index, clamped to the tab range. Jumping forward must pass
// the gate of every tab it leaves behind.
func (w *Wizard) GoTo(ctx context.Context, index int) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpenLocked(); err != nil {
		return State{}, err
	}
	target := domain.ClampTab(index)
	for t := w.tab; t < target; t++ {
		if err := w.gateLocked(ctx, t); err != nil {
			return w.stateLocked(), err
		}
	}
	if err := w.enterLocked(ctx, target); err != nil {
		return w.stateLocked(), err
	}
	return w.stateLocked(), nil
}

// SelectAddress records the shipping address.
func (w *Wizard) SelectAddress(ctx context.Context, a domain.Address) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpenLocked(); err != nil {
		return State{}, err
	}
	w.address = &a
	if w.tab == domain.TabConfirm {
		w.summary = w.buildSummaryLocked()
	}
	return w.stateLocked(), nil
}

// SelectMethod records the payment method. Choosing card once the payment
// tab has been reached mounts the card element; any other choice clears the
// inline card error.
func (w *Wizard) SelectMethod(ctx context.Context, m domain.PaymentMethod) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireOpenLocked(); err != nil {
		return State{}, err
	}
	w.method = m
	if m == domain.MethodCard {
		if w.tab >= domain.TabPayment {
			if err := w.mountCardLocked(ctx); err != nil {
				return w.stateLocked(), err
			}
		}
	} else {
		w.presenter.ClearCardError(ctx)
	}
	if w.tab == domain.TabConfirm {
		w.summary = w.buildSummaryLocked()
	}
	return w.stateLocked(), nil
}

// Address returns the selected address, or nil.
func (w *Wizard) Address() *domain.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.address == nil {
		return nil
	}
	a := *w.address
	return &a
}

// Method returns the selected payment method, or "".
func (w *Wizard) Method() domain.PaymentMethod {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.method
}

// Totals recomputes the checkout totals from the cart and coupon.
func (w *Wizard) Totals() pricing.Totals {
	return pricing.Compute(w.cart.Lines(), w.coupons.SelectedCoupon())
}

// SetCardSuffix keeps the last four digits of the card that paid, for later
// summaries.
func (w *Wizard) SetCardSuffix(last4 string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cardSuffix = last4
}

// CanProceed checks the gate of tab without side effects.
func (w *Wizard) CanProceed(tab domain.Tab) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checkLocked(tab)
}

func (w *Wizard) checkLocked(tab domain.Tab) error {
	switch tab {
	case domain.TabSummary:
		if w.cart.IsEmpty() {
			return apperrors.CheckoutBlocked(MsgEmptyCart)
		}
	case domain.TabAddress:
		if w.address == nil {
			return apperrors.CheckoutBlocked(MsgNoAddress)
		}
	case domain.TabPayment:
		if w.method == "" {
			return apperrors.CheckoutBlocked(MsgNoMethod)
		}
	case domain.TabConfirm:
		if w.address == nil || w.method == "" {
			return apperrors.CheckoutBlocked(MsgIncompleteConfirm)
		}
	}
	return nil
}

// gateLocked is checkLocked with the warning shown to the shopper.
func (w *Wizard) gateLocked(ctx context.Context, tab domain.Tab) error {
	err := w.checkLocked(tab)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			w.presenter.Notify(ctx, ui.LevelWarning, appErr.Message)
		}
		w.logger.DebugContext(ctx, "checkout gate blocked", slog.String("tab", tab.String()))
	}
	return err
}

func (w *Wizard) enterLocked(ctx context.Context, tab domain.Tab) error {
	w.tab = tab
	w.summary = nil

	switch tab {
	case domain.TabPayment:
		if !w.methodsRendered {
			w.presenter.RenderPaymentMethods(ctx, domain.PaymentMethods)
			w.methodsRendered = true
		}
		if w.method == domain.MethodCard {
			return w.mountCardLocked(ctx)
		}
	case domain.TabConfirm:
		w.summary = w.buildSummaryLocked()
	}
	return nil
}

func (w *Wizard) mountCardLocked(ctx context.Context) error {
	if w.gateway.Ready() {
		return nil
	}
	if err := w.gateway.Mount(ctx); err != nil {
		w.logger.ErrorContext(ctx, "failed to mount card element",
			slog.String("gateway", w.gateway.Name()),
			slog.String("error", err.Error()),
		)
		w.presenter.Notify(ctx, ui.LevelError, msgCardMountFailed)
		return fmt.Errorf("mount card element: %w", err)
	}
	return nil
}

func (w *Wizard) buildSummaryLocked() *Summary {
	s := &Summary{
		Address: noAddressLabel,
		Method:  w.method.Label(),
		Totals:  pricing.Compute(w.cart.Lines(), w.coupons.SelectedCoupon()),
	}
	if w.address != nil {
		s.Address = w.address.Label()
	}
	if c := w.coupons.SelectedCoupon(); c != nil {
		s.Coupon = c.Name
	}
	if w.method == domain.MethodCard {
		s.Card = domain.MaskCard(w.cardSuffix)
	}
	return s
}

func (w *Wizard) stateLocked() State {
	st := State{
		Open:    w.open,
		Tab:     w.tab,
		TabName: w.tab.String(),
		Method:  w.method,
		Footer:  FooterNext,
		Totals:  pricing.Compute(w.cart.Lines(), w.coupons.SelectedCoupon()),
	}
	if w.address != nil {
		a := *w.address
		st.Address = &a
	}
	if w.tab == domain.TabConfirm {
		st.Footer = FooterFinalize
	}
	if w.summary != nil {
		s := *w.summary
		st.Summary = &s
	}
	return st
}

func (w *Wizard) requireOpenLocked() error {
	if !w.open {
		return apperrors.Conflict("checkout is not open")
	}
	return nil
}
