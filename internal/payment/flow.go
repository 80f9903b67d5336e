// Package payment runs the finalize step of checkout: create the payment
// intent, confirm the card when needed, then settle the cart and wizard.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Christian112b/InonicApp/internal/backend"
	"github.com/Christian112b/InonicApp/internal/coupon"
	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/event"
	"github.com/Christian112b/InonicApp/internal/payment/provider"
	"github.com/Christian112b/InonicApp/internal/pricing"
	"github.com/Christian112b/InonicApp/internal/ui"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/tracing"
)

// User-facing messages.
const (
	MsgNoMethod       = "Por favor selecciona un método de pago antes de finalizar."
	MsgPending        = "Pedido creado y pendiente de pago. Revisa las instrucciones para completar el pago."
	MsgIntentFailed   = "Error al crear el intento de pago"
	MsgCardNotReady   = "Formulario de tarjeta no inicializado"
	MsgCardFailed     = "Pago fallido: "
	MsgSucceeded      = "Pago exitoso"
	MsgGenericFailure = "Error procesando el pago. Intenta de nuevo."
)

// Outcome labels a finished flow.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePending   Outcome = "pending"
	OutcomeDeclined  Outcome = "declined"
	OutcomeFailed    Outcome = "failed"
)

var paymentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_payments_total",
		Help: "Finalize attempts by payment method and outcome",
	},
	[]string{"method", "outcome"},
)

func init() {
	prometheus.MustRegister(paymentsTotal)
}

// Backend is the part of the storefront backend payments need.
type Backend interface {
	CreatePaymentIntent(ctx context.Context, in backend.IntentRequest) (domain.PaymentIntent, error)
	RecordCouponUsage(ctx context.Context, userID string, couponID int64, paymentID string) error
}

// Checkout is the wizard state the flow reads and settles.
type Checkout interface {
	Method() domain.PaymentMethod
	Address() *domain.Address
	Totals() pricing.Totals
	SetCardSuffix(last4 string)
	Close(ctx context.Context)
}

// Coupons holds the selected coupon.
type Coupons interface {
	Selected() *coupon.Selection
	Clear()
}

// Cart is the local cart the flow empties on success.
type Cart interface {
	Lines() []domain.CartLine
	Clear(ctx context.Context)
}

// Timeouts bound the two network steps. Zero means no extra bound.
type Timeouts struct {
	Intent  time.Duration
	Confirm time.Duration
}

// Result describes a finished flow.
type Result struct {
	Outcome     Outcome              `json:"outcome"`
	Method      domain.PaymentMethod `json:"method"`
	AmountMinor int64                `json:"amount_minor"`
	PaymentID   string               `json:"payment_id,omitempty"`
	CardSuffix  string               `json:"card_suffix,omitempty"`
}

// Flow executes payments. Only one runs at a time.
type Flow struct {
	backend   Backend
	gateway   provider.CardGateway
	checkout  Checkout
	coupons   Coupons
	cart      Cart
	presenter ui.Presenter
	events    event.Publisher
	logger    *slog.Logger
	timeouts  Timeouts
	tracer    trace.Tracer

	running atomic.Bool
}

// NewFlow creates a payment flow.
func NewFlow(
	b Backend,
	gateway provider.CardGateway,
	checkout Checkout,
	coupons Coupons,
	cart Cart,
	presenter ui.Presenter,
	events event.Publisher,
	logger *slog.Logger,
	timeouts Timeouts,
) *Flow {
	return &Flow{
		backend:   b,
		gateway:   gateway,
		checkout:  checkout,
		coupons:   coupons,
		cart:      cart,
		presenter: presenter,
		events:    events,
		logger:    logger,
		timeouts:  timeouts,
		tracer:    tracing.Tracer("storefront/payment"),
	}
}

// attempt carries one execution's inputs.
type attempt struct {
	method    domain.PaymentMethod
	amount    int64
	selection *coupon.Selection
	address   *domain.Address
	items     int
}

// Execute finalizes checkout with the selected method. The UI is locked for
// the duration and always unlocked on return. The cart and wizard are only
// settled once the payment is pending or confirmed.
func (f *Flow) Execute(ctx context.Context) (Result, error) {
	method := f.checkout.Method()
	if method == "" {
		f.presenter.Notify(ctx, ui.LevelWarning, MsgNoMethod)
		return Result{}, apperrors.CheckoutBlocked(MsgNoMethod)
	}
	if !f.running.CompareAndSwap(false, true) {
		return Result{}, apperrors.Busy("payment already in progress")
	}
	defer f.running.Store(false)

	f.presenter.Lock(ctx)
	defer f.presenter.Unlock(ctx)

	totals := f.checkout.Totals()
	lines := f.cart.Lines()
	a := attempt{
		method:    method,
		amount:    pricing.MinorUnits(totals.GrandTotal),
		selection: f.coupons.Selected(),
		address:   f.checkout.Address(),
		items:     (&domain.Cart{Lines: lines}).ItemCount(),
	}

	ctx, span := f.tracer.Start(ctx, "payment.Execute", trace.WithAttributes(
		attribute.String("payment.method", string(method)),
		attribute.Int64("payment.amount_minor", a.amount),
	))
	defer span.End()

	res, stage, err := f.execute(ctx, a)
	paymentsTotal.WithLabelValues(string(method), string(res.Outcome)).Inc()
	span.SetAttributes(attribute.String("payment.outcome", string(res.Outcome)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.publishFailed(ctx, a, stage, err)
		return res, err
	}

	f.publishCompleted(ctx, a, res)
	return res, nil
}

func (f *Flow) execute(ctx context.Context, a attempt) (Result, string, error) {
	res := Result{Outcome: OutcomeFailed, Method: a.method, AmountMinor: a.amount}

	req := backend.IntentRequest{Amount: a.amount, Method: a.method}
	if a.selection != nil {
		req.CouponID = a.selection.Coupon.ID
	}
	if a.address != nil {
		req.AddressID = a.address.ID
	}

	ictx, cancel := withTimeout(ctx, f.timeouts.Intent)
	intent, err := f.backend.CreatePaymentIntent(ictx, req)
	cancel()
	if err != nil {
		msg := MsgGenericFailure
		if errors.Is(err, apperrors.ErrPaymentFailed) || errors.Is(err, apperrors.ErrInvalidInput) {
			msg = MsgIntentFailed
		}
		f.fail(ctx, "intent", msg, err)
		return res, "intent", fmt.Errorf("create payment intent: %w", err)
	}

	if intent.Pending() {
		f.recordUsage(ctx, a, intent.PaymentID)
		f.presenter.Notify(ctx, ui.LevelInfo, MsgPending)
		f.settle(ctx, intent)

		res.Outcome = OutcomePending
		res.PaymentID = intent.PaymentID
		f.logger.InfoContext(ctx, "payment pending",
			slog.String("method", string(a.method)),
			slog.String("payment_id", intent.PaymentID),
			slog.Int64("amount_minor", a.amount),
		)
		return res, "", nil
	}

	if intent.ClientSecret == "" {
		f.fail(ctx, "intent", MsgIntentFailed, nil)
		return res, "intent", apperrors.PaymentFailed(MsgIntentFailed)
	}
	if a.method == domain.MethodCard && !f.gateway.Ready() {
		f.fail(ctx, "card", MsgCardNotReady, nil)
		return res, "card", apperrors.PaymentFailed(MsgCardNotReady)
	}

	cctx, cancel := withTimeout(ctx, f.timeouts.Confirm)
	conf, err := f.gateway.ConfirmCardPayment(cctx, intent.ClientSecret)
	cancel()
	if err != nil {
		var cardErr *provider.CardError
		if errors.As(err, &cardErr) {
			f.presenter.ShowCardError(ctx, cardErr.Message)
			f.presenter.Notify(ctx, ui.LevelError, MsgCardFailed+cardErr.Message)
			f.logger.WarnContext(ctx, "card payment declined",
				slog.String("gateway", f.gateway.Name()),
				slog.String("code", cardErr.Code),
			)
			res.Outcome = OutcomeDeclined
			return res, "confirm", apperrors.PaymentFailed(cardErr.Message)
		}
		f.fail(ctx, "confirm", MsgGenericFailure, err)
		return res, "confirm", fmt.Errorf("confirm card payment: %w", err)
	}

	f.recordUsage(ctx, a, conf.PaymentIntentID)

	suffix := conf.Last4
	if suffix == "" {
		suffix = domain.UnknownCardSuffix
	}
	f.checkout.SetCardSuffix(suffix)

	f.presenter.Notify(ctx, ui.LevelSuccess, MsgSucceeded)
	f.settle(ctx, intent)

	res.Outcome = OutcomeSucceeded
	res.PaymentID = conf.PaymentIntentID
	res.CardSuffix = suffix
	f.logger.InfoContext(ctx, "payment succeeded",
		slog.String("method", string(a.method)),
		slog.String("payment_id", conf.PaymentIntentID),
		slog.Int64("amount_minor", a.amount),
	)
	return res, "", nil
}

// settle empties the cart, drops the used coupon and closes the wizard. The
// emptied cart reaches the backend through the cart's change listeners.
func (f *Flow) settle(ctx context.Context, intent domain.PaymentIntent) {
	if !intent.CloseModal {
		f.logger.DebugContext(ctx, "backend did not ask to close checkout; closing anyway")
	}
	f.cart.Clear(ctx)
	f.coupons.Clear()
	f.checkout.Close(ctx)
}

// recordUsage marks the selected coupon as used. Failures are only logged:
// the payment already went through.
func (f *Flow) recordUsage(ctx context.Context, a attempt, paymentID string) {
	if a.selection == nil {
		return
	}
	rctx, cancel := withTimeout(ctx, f.timeouts.Intent)
	defer cancel()
	if err := f.backend.RecordCouponUsage(rctx, a.selection.UserID, a.selection.Coupon.ID, paymentID); err != nil {
		f.logger.WarnContext(ctx, "failed to record coupon usage",
			slog.Int64("coupon_id", a.selection.Coupon.ID),
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
	}
}

func (f *Flow) fail(ctx context.Context, stage, msg string, err error) {
	attrs := []any{slog.String("stage", stage)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	f.logger.ErrorContext(ctx, "payment failed", attrs...)
	f.presenter.Notify(ctx, ui.LevelError, msg)
}

func (f *Flow) publishCompleted(ctx context.Context, a attempt, res Result) {
	data := event.CheckoutCompletedData{
		PaymentID:   res.PaymentID,
		Method:      string(a.method),
		Status:      string(res.Outcome),
		AmountMinor: a.amount,
		Items:       a.items,
	}
	if a.selection != nil {
		data.UserID = a.selection.UserID
		data.CouponID = a.selection.Coupon.ID
	}
	if a.address != nil {
		data.AddressID = a.address.ID
	}
	if err := f.events.PublishCheckoutCompleted(ctx, data); err != nil {
		f.logger.ErrorContext(ctx, "failed to publish checkout.completed event",
			slog.String("payment_id", res.PaymentID),
			slog.String("error", err.Error()),
		)
	}
}

func (f *Flow) publishFailed(ctx context.Context, a attempt, stage string, cause error) {
	data := event.CheckoutFailedData{
		Method:        string(a.method),
		AmountMinor:   a.amount,
		Stage:         stage,
		FailureReason: cause.Error(),
	}
	if a.selection != nil {
		data.UserID = a.selection.UserID
	}
	if err := f.events.PublishCheckoutFailed(ctx, data); err != nil {
		f.logger.ErrorContext(ctx, "failed to publish checkout.failed event",
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
