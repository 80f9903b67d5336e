// Package coupon validates coupon codes against the backend and holds the
// one coupon selected for checkout.
package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Christian112b/InonicApp/internal/backend"
	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/pricing"
	"github.com/Christian112b/InonicApp/internal/repository"
	"github.com/Christian112b/InonicApp/internal/ui"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

// User-facing messages.
const (
	MsgInvalid        = "Cupón no válido"
	MsgValidationFail = "Error validando cupón"
	msgAlreadyUsed    = "Ya has usado este cupón anteriormente"
	msgApplied        = "Descuento aplicado: $"
)

// Backend is the part of the storefront backend coupons need.
type Backend interface {
	CheckSession(ctx context.Context) (backend.Session, error)
	ValidateCoupon(ctx context.Context, name string) (backend.CouponValidation, error)
	CheckCouponUsage(ctx context.Context, userID string, couponID int64) (backend.CouponUsage, error)
	GetDiscounts(ctx context.Context) ([]domain.Coupon, error)
}

// Selection is the coupon chosen for checkout and the shopper it was
// validated for.
type Selection struct {
	Coupon domain.Coupon `json:"coupon"`
	UserID string        `json:"user_id"`
}

// Validator runs the apply sequence and remembers the selection.
type Validator struct {
	backend   Backend
	snapshots repository.SnapshotStore
	presenter ui.Presenter
	logger    *slog.Logger

	mu       sync.Mutex
	selected *Selection
}

// NewValidator creates a validator with nothing selected. snapshots caches
// the coupon list.
func NewValidator(b Backend, snapshots repository.SnapshotStore, presenter ui.Presenter, logger *slog.Logger) *Validator {
	return &Validator{
		backend:   b,
		snapshots: snapshots,
		presenter: presenter,
		logger:    logger,
	}
}

// Apply validates code and selects it. An empty code only clears the
// selection. Any rejection or failure clears the selection too, so at most
// one validated coupon is ever selected.
func (v *Validator) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Selection, error) {
	v.Clear()
	if code == "" {
		return nil, nil
	}

	sel, err := v.validate(ctx, code)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperrors.ErrInvalidInput) {
			v.logger.DebugContext(ctx, "coupon rejected",
				slog.String("code", code),
				slog.String("reason", appErr.Message),
			)
			v.presenter.Notify(ctx, ui.LevelWarning, appErr.Message)
			return nil, err
		}
		v.logger.WarnContext(ctx, "coupon validation failed",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		v.presenter.Notify(ctx, ui.LevelError, MsgValidationFail)
		return nil, fmt.Errorf("validate coupon: %w", err)
	}

	v.mu.Lock()
	v.selected = sel
	v.mu.Unlock()

	discount := pricing.Discount(subtotal, &sel.Coupon)
	v.presenter.Notify(ctx, ui.LevelSuccess, msgApplied+pricing.Display(discount))
	v.logger.InfoContext(ctx, "coupon applied",
		slog.Int64("coupon_id", sel.Coupon.ID),
		slog.String("discount", pricing.Display(discount)),
	)
	return sel, nil
}

func (v *Validator) validate(ctx context.Context, code string) (*Selection, error) {
	s, err := v.backend.CheckSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !s.Active || s.UserID == "" {
		return nil, apperrors.SessionRequired("no active session")
	}

	res, err := v.backend.ValidateCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		msg := res.Message
		if msg == "" {
			msg = MsgInvalid
		}
		return nil, apperrors.InvalidInput(msg)
	}

	usage, err := v.backend.CheckCouponUsage(ctx, s.UserID, res.Coupon.ID)
	if err != nil {
		return nil, fmt.Errorf("check coupon usage: %w", err)
	}
	if usage.Used && usage.UsageDate != "" {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s (%s)", msgAlreadyUsed, usage.UsageDate))
	}

	return &Selection{Coupon: res.Coupon, UserID: s.UserID}, nil
}

// Selected returns a copy of the current selection, or nil.
func (v *Validator) Selected() *Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected == nil {
		return nil
	}
	sel := *v.selected
	return &sel
}

// SelectedCoupon returns the selected coupon for the totals, or nil.
func (v *Validator) SelectedCoupon() *domain.Coupon {
	if sel := v.Selected(); sel != nil {
		return &sel.Coupon
	}
	return nil
}

// Clear drops the selection.
func (v *Validator) Clear() {
	v.mu.Lock()
	v.selected = nil
	v.mu.Unlock()
}

// List returns the coupons on offer. A fresh list replaces the cached copy;
// when the backend cannot be reached the cached copy is served instead.
func (v *Validator) List(ctx context.Context) ([]domain.Coupon, error) {
	coupons, err := v.backend.GetDiscounts(ctx)
	if err == nil {
		v.cache(ctx, coupons)
		return coupons, nil
	}

	cached, cacheErr := v.cached(ctx)
	if cacheErr != nil {
		return nil, fmt.Errorf("get discounts: %w", err)
	}
	v.logger.WarnContext(ctx, "serving cached coupon list",
		slog.String("error", err.Error()),
		slog.Int("coupons", len(cached)),
	)
	return cached, nil
}

func (v *Validator) cache(ctx context.Context, coupons []domain.Coupon) {
	data, err := json.Marshal(coupons)
	if err == nil {
		err = v.snapshots.Put(ctx, repository.CouponListKey, data)
	}
	if err != nil {
		v.logger.WarnContext(ctx, "failed to cache coupon list", slog.String("error", err.Error()))
	}
}

func (v *Validator) cached(ctx context.Context) ([]domain.Coupon, error) {
	data, err := v.snapshots.Get(ctx, repository.CouponListKey)
	if err != nil {
		return nil, err
	}
	var coupons []domain.Coupon
	if err := json.Unmarshal(data, &coupons); err != nil {
		v.logger.WarnContext(ctx, "discarding corrupt coupon cache", slog.String("error", err.Error()))
		_ = v.snapshots.Delete(ctx, repository.CouponListKey)
		return nil, fmt.Errorf("decode coupon cache: %w", err)
	}
	return coupons, nil
}
