package coupon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Christian112b/InonicApp/internal/backend"
	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/repository"
	"github.com/Christian112b/InonicApp/internal/repository/memory"
	"github.com/Christian112b/InonicApp/internal/ui"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/httputil"
)

// --- Mock Backend ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) CheckSession(ctx context.Context) (backend.Session, error) {
	args := m.Called(ctx)
	return args.Get(0).(backend.Session), args.Error(1)
}

func (m *mockBackend) ValidateCoupon(ctx context.Context, name string) (backend.CouponValidation, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(backend.CouponValidation), args.Error(1)
}

func (m *mockBackend) CheckCouponUsage(ctx context.Context, userID string, couponID int64) (backend.CouponUsage, error) {
	args := m.Called(ctx, userID, couponID)
	return args.Get(0).(backend.CouponUsage), args.Error(1)
}

func (m *mockBackend) GetDiscounts(ctx context.Context) ([]domain.Coupon, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Coupon), args.Error(1)
}

// --- Helpers ---

func newTestValidator() (*Validator, *mockBackend, *ui.Recorder, *memory.SnapshotStore) {
	b := &mockBackend{}
	rec := ui.NewRecorder()
	snaps := memory.NewSnapshotStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewValidator(b, snaps, rec, logger), b, rec, snaps
}

func fixed20() domain.Coupon {
	return domain.Coupon{ID: 7, Name: "DULCE20", Kind: domain.CouponFixed, Value: decimal.NewFromInt(20)}
}

func signedIn(b *mockBackend) {
	b.On("CheckSession", mock.Anything).Return(backend.Session{Active: true, UserID: "42"}, nil)
}

var subtotal50 = decimal.NewFromInt(50)

// ============================================================================
// Apply
// ============================================================================

func TestApply_Success(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	b.On("ValidateCoupon", mock.Anything, "DULCE20").Return(backend.CouponValidation{Valid: true, Coupon: fixed20()}, nil)
	b.On("CheckCouponUsage", mock.Anything, "42", int64(7)).Return(backend.CouponUsage{}, nil)

	sel, err := v.Apply(context.Background(), "DULCE20", subtotal50)

	require.NoError(t, err)
	assert.Equal(t, int64(7), sel.Coupon.ID)
	assert.Equal(t, "42", sel.UserID)
	assert.Equal(t, int64(7), v.SelectedCoupon().ID)
	assert.Equal(t, []httputil.Notice{{Level: "success", Message: "Descuento aplicado: $20.00"}}, rec.Drain())
}

func TestApply_PercentagePreview(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	half := domain.Coupon{ID: 8, Name: "MITAD", Kind: domain.CouponPercentage, Value: decimal.NewFromInt(50)}
	b.On("ValidateCoupon", mock.Anything, "MITAD").Return(backend.CouponValidation{Valid: true, Coupon: half}, nil)
	b.On("CheckCouponUsage", mock.Anything, "42", int64(8)).Return(backend.CouponUsage{}, nil)

	_, err := v.Apply(context.Background(), "MITAD", subtotal50)

	require.NoError(t, err)
	assert.Equal(t, "Descuento aplicado: $25.00", rec.Drain()[0].Message)
}

func TestApply_EmptyCodeClears(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	b.On("ValidateCoupon", mock.Anything, "DULCE20").Return(backend.CouponValidation{Valid: true, Coupon: fixed20()}, nil)
	b.On("CheckCouponUsage", mock.Anything, "42", int64(7)).Return(backend.CouponUsage{}, nil)
	_, _ = v.Apply(context.Background(), "DULCE20", subtotal50)
	rec.Drain()

	sel, err := v.Apply(context.Background(), "", subtotal50)

	assert.NoError(t, err)
	assert.Nil(t, sel)
	assert.Nil(t, v.Selected())
	assert.Empty(t, rec.Drain())
}

func TestApply_RejectedUsesBackendMessage(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	b.On("ValidateCoupon", mock.Anything, "NOPE").Return(backend.CouponValidation{Message: "Cupón expirado"}, nil)

	_, err := v.Apply(context.Background(), "NOPE", subtotal50)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Nil(t, v.Selected())
	assert.Equal(t, []httputil.Notice{{Level: "warning", Message: "Cupón expirado"}}, rec.Drain())
	b.AssertNotCalled(t, "CheckCouponUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_RejectedDefaultMessage(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	b.On("ValidateCoupon", mock.Anything, "NOPE").Return(backend.CouponValidation{}, nil)

	_, err := v.Apply(context.Background(), "NOPE", subtotal50)

	assert.Error(t, err)
	assert.Equal(t, MsgInvalid, rec.Drain()[0].Message)
}

func TestApply_AlreadyUsed(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	b.On("ValidateCoupon", mock.Anything, "DULCE20").Return(backend.CouponValidation{Valid: true, Coupon: fixed20()}, nil)
	b.On("CheckCouponUsage", mock.Anything, "42", int64(7)).
		Return(backend.CouponUsage{Used: true, UsageDate: "2025-03-01"}, nil)

	_, err := v.Apply(context.Background(), "DULCE20", subtotal50)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Nil(t, v.Selected())
	assert.Equal(t, "Ya has usado este cupón anteriormente (2025-03-01)", rec.Drain()[0].Message)
}

func TestApply_NoSessionIsGenericFailure(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	b.On("CheckSession", mock.Anything).Return(backend.Session{Active: true}, nil)

	_, err := v.Apply(context.Background(), "DULCE20", subtotal50)

	assert.ErrorIs(t, err, apperrors.ErrSessionRequired)
	assert.Equal(t, []httputil.Notice{{Level: "error", Message: MsgValidationFail}}, rec.Drain())
	b.AssertNotCalled(t, "ValidateCoupon", mock.Anything, mock.Anything)
}

func TestApply_NetworkFailureClearsPrevious(t *testing.T) {
	v, b, rec, _ := newTestValidator()
	signedIn(b)
	b.On("ValidateCoupon", mock.Anything, "DULCE20").Return(backend.CouponValidation{Valid: true, Coupon: fixed20()}, nil)
	b.On("CheckCouponUsage", mock.Anything, "42", int64(7)).Return(backend.CouponUsage{}, nil)
	b.On("ValidateCoupon", mock.Anything, "OTRO").Return(backend.CouponValidation{}, errors.New("connection reset"))
	_, _ = v.Apply(context.Background(), "DULCE20", subtotal50)
	rec.Drain()

	_, err := v.Apply(context.Background(), "OTRO", subtotal50)

	assert.Error(t, err)
	assert.Nil(t, v.Selected())
	assert.Equal(t, MsgValidationFail, rec.Drain()[0].Message)
}

func TestApply_NewCodeReplacesSelection(t *testing.T) {
	v, b, _, _ := newTestValidator()
	signedIn(b)
	other := domain.Coupon{ID: 9, Name: "CACAO", Kind: domain.CouponFixed, Value: decimal.NewFromInt(5)}
	b.On("ValidateCoupon", mock.Anything, "DULCE20").Return(backend.CouponValidation{Valid: true, Coupon: fixed20()}, nil)
	b.On("ValidateCoupon", mock.Anything, "CACAO").Return(backend.CouponValidation{Valid: true, Coupon: other}, nil)
	b.On("CheckCouponUsage", mock.Anything, "42", mock.Anything).Return(backend.CouponUsage{}, nil)

	_, _ = v.Apply(context.Background(), "DULCE20", subtotal50)
	_, err := v.Apply(context.Background(), "CACAO", subtotal50)

	require.NoError(t, err)
	assert.Equal(t, int64(9), v.SelectedCoupon().ID)
}

// ============================================================================
// List
// ============================================================================

func TestList_CachesFreshList(t *testing.T) {
	v, b, _, snaps := newTestValidator()
	b.On("GetDiscounts", mock.Anything).Return([]domain.Coupon{fixed20()}, nil)

	coupons, err := v.List(context.Background())

	require.NoError(t, err)
	assert.Len(t, coupons, 1)
	data, err := snaps.Get(context.Background(), repository.CouponListKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DULCE20")
}

func TestList_FallsBackToCache(t *testing.T) {
	v, b, _, snaps := newTestValidator()
	ctx := context.Background()
	require.NoError(t, snaps.Put(ctx, repository.CouponListKey,
		[]byte(`[{"id_descuento":7,"nombre":"DULCE20","tipo":"fijo","valor":20}]`)))
	b.On("GetDiscounts", mock.Anything).Return(nil, errors.New("offline"))

	coupons, err := v.List(ctx)

	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, "DULCE20", coupons[0].Name)
}

func TestList_CorruptCacheDiscarded(t *testing.T) {
	v, b, _, snaps := newTestValidator()
	ctx := context.Background()
	require.NoError(t, snaps.Put(ctx, repository.CouponListKey, []byte(`{broken`)))
	b.On("GetDiscounts", mock.Anything).Return(nil, errors.New("offline"))

	_, err := v.List(ctx)

	assert.Error(t, err)
	_, err = snaps.Get(ctx, repository.CouponListKey)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestList_NoCacheNoBackend(t *testing.T) {
	v, b, _, _ := newTestValidator()
	b.On("GetDiscounts", mock.Anything).Return(nil, errors.New("offline"))

	_, err := v.List(context.Background())

	assert.Error(t, err)
}
