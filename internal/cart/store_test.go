package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/repository"
	"github.com/Christian112b/InonicApp/internal/repository/memory"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, *memory.SnapshotStore) {
	t.Helper()
	snaps := memory.NewSnapshotStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(snaps, logger), snaps
}

func truffle() domain.Product {
	return domain.Product{ID: 1, Name: "Trufa", Image: "t.png", Price: decimal.RequireFromString("25.00")}
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) listen(_ context.Context, c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) kinds() []ChangeKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ChangeKind, len(l.changes))
	for i, c := range l.changes {
		out[i] = c.Kind
	}
	return out
}

func storedLines(t *testing.T, snaps repository.SnapshotStore) []domain.CartLine {
	t.Helper()
	data, err := snaps.Get(context.Background(), repository.CartSnapshotKey)
	require.NoError(t, err)
	lines, dropped, err := domain.ParseLines(data)
	require.NoError(t, err)
	require.Zero(t, dropped)
	return lines
}

// ============================================================================
// AddItem
// ============================================================================

func TestAddItem_NewLine(t *testing.T) {
	s, snaps := newTestStore(t)

	line, err := s.AddItem(context.Background(), truffle())

	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "Trufa", line.Name)
	assert.Len(t, s.Lines(), 1)
	stored := storedLines(t, snaps)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.ProductID(1), stored[0].ID)
	assert.True(t, stored[0].UnitPrice.Equal(decimal.NewFromInt(25)))
}

func TestAddItem_ExistingLineIncrements(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, truffle())
	require.NoError(t, err)
	line, err := s.AddItem(ctx, truffle())
	require.NoError(t, err)

	assert.Equal(t, 2, line.Quantity)
	require.Len(t, s.Lines(), 1)
	assert.Equal(t, 2, s.Lines()[0].Quantity)
}

func TestAddItem_DefaultsName(t *testing.T) {
	s, _ := newTestStore(t)
	p := truffle()
	p.Name = ""

	line, err := s.AddItem(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, "Producto", line.Name)
}

func TestAddItem_RejectsInvalidProduct(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddItem(ctx, domain.Product{Name: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	p := truffle()
	p.Price = decimal.NewFromInt(-1)
	_, err = s.AddItem(ctx, p)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.True(t, s.IsEmpty())
}

// ============================================================================
// SetQuantity / RemoveItem / Adjust
// ============================================================================

func TestSetQuantity_Updates(t *testing.T) {
	s, snaps := newTestStore(t)
	ctx := context.Background()
	_, _ = s.AddItem(ctx, truffle())

	s.SetQuantity(ctx, 1, 5)

	assert.Equal(t, 5, s.Lines()[0].Quantity)
	assert.Equal(t, 5, storedLines(t, snaps)[0].Quantity)
}

func TestSetQuantity_ZeroBehavesLikeRemove(t *testing.T) {
	viaZero, _ := newTestStore(t)
	viaRemove, _ := newTestStore(t)
	ctx := context.Background()
	for _, s := range []*Store{viaZero, viaRemove} {
		_, _ = s.AddItem(ctx, truffle())
		_, _ = s.AddItem(ctx, domain.Product{ID: 2, Name: "Barra", Price: decimal.NewFromInt(10)})
	}
	logZero, logRemove := &changeLog{}, &changeLog{}
	viaZero.Subscribe(logZero.listen)
	viaRemove.Subscribe(logRemove.listen)

	viaZero.SetQuantity(ctx, 1, 0)
	viaRemove.RemoveItem(ctx, 1)

	assert.Equal(t, viaRemove.Lines(), viaZero.Lines())
	assert.Equal(t, []ChangeKind{Removed}, logZero.kinds())
	assert.Equal(t, logRemove.kinds(), logZero.kinds())
}

func TestSetQuantity_MissingIDIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	log := &changeLog{}
	s.Subscribe(log.listen)

	s.SetQuantity(context.Background(), 99, 3)
	s.RemoveItem(context.Background(), 99)

	assert.True(t, s.IsEmpty())
	assert.Empty(t, log.kinds())
}

func TestAdjust(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.AddItem(ctx, truffle())

	s.Adjust(ctx, 1, 2)
	assert.Equal(t, 3, s.Lines()[0].Quantity)

	s.Adjust(ctx, 1, -3)
	assert.True(t, s.IsEmpty())
}

func TestRemoveItem_KeepsOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, _ = s.AddItem(ctx, domain.Product{ID: domain.ProductID(i), Name: "p", Price: decimal.NewFromInt(1)})
	}

	s.RemoveItem(ctx, 2)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, domain.ProductID(1), lines[0].ID)
	assert.Equal(t, domain.ProductID(3), lines[1].ID)
}

// ============================================================================
// Clear / Replace / Forget
// ============================================================================

func TestClear_DeletesSnapshot(t *testing.T) {
	s, snaps := newTestStore(t)
	ctx := context.Background()
	_, _ = s.AddItem(ctx, truffle())
	log := &changeLog{}
	s.Subscribe(log.listen)

	s.Clear(ctx)

	assert.True(t, s.IsEmpty())
	_, err := snaps.Get(ctx, repository.CartSnapshotKey)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, []ChangeKind{Cleared}, log.kinds())
}

func TestReplace_DropsInvalidLines(t *testing.T) {
	s, _ := newTestStore(t)
	log := &changeLog{}
	s.Subscribe(log.listen)

	s.Replace(context.Background(), []domain.CartLine{
		{ID: 1, Name: "Trufa", UnitPrice: decimal.NewFromInt(25), Quantity: 2},
		{ID: 2, Name: "", UnitPrice: decimal.NewFromInt(5), Quantity: 1},
		{ID: 3, Name: "Barra", UnitPrice: decimal.NewFromInt(5), Quantity: 0},
	})

	require.Len(t, s.Lines(), 1)
	assert.Equal(t, []ChangeKind{Replaced}, log.kinds())
}

func TestReplace_MergesRepeatedIDsAndDropsNegativePrice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Replace(ctx, []domain.CartLine{
		{ID: 1, Name: "Trufa", UnitPrice: decimal.NewFromInt(25), Quantity: 1},
		{ID: 1, Name: "Trufa", UnitPrice: decimal.NewFromInt(25), Quantity: 2},
		{ID: 2, Name: "Barra", UnitPrice: decimal.NewFromInt(-5), Quantity: 1},
	})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	s.RemoveItem(ctx, 1)
	assert.True(t, s.IsEmpty())
}

func TestVersion_IncreasesPerMutation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	log := &changeLog{}
	s.Subscribe(log.listen)

	_, _ = s.AddItem(ctx, truffle())
	s.SetQuantity(ctx, 1, 4)
	s.Clear(ctx)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.changes, 3)
	for i, c := range log.changes {
		assert.Equal(t, uint64(i+1), c.Version)
	}
	_, version := s.Versioned()
	assert.Equal(t, uint64(3), version)
}

func TestForget_DeletesSnapshotSilently(t *testing.T) {
	s, snaps := newTestStore(t)
	ctx := context.Background()
	_, _ = s.AddItem(ctx, truffle())
	log := &changeLog{}
	s.Subscribe(log.listen)

	require.NoError(t, s.Forget(ctx))

	assert.True(t, s.IsEmpty())
	_, err := snaps.Get(ctx, repository.CartSnapshotKey)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, log.kinds())
}

// ============================================================================
// Restore
// ============================================================================

func TestRestore_DropsLineMissingPrice(t *testing.T) {
	s, snaps := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, snaps.Put(ctx, repository.CartSnapshotKey, []byte(`[
		{"id":1,"name":"Trufa","price":25,"quantity":2},
		{"id":2,"name":"Bombón","quantity":1}
	]`)))

	require.NoError(t, s.Restore(ctx))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, domain.ProductID(1), lines[0].ID)
	assert.Len(t, storedLines(t, snaps), 1)
}

func TestRestore_MergesRepeatedIDsAndDropsNegativePrice(t *testing.T) {
	s, snaps := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, snaps.Put(ctx, repository.CartSnapshotKey, []byte(`[
		{"id":1,"name":"Trufa","price":25,"quantity":1},
		{"id":1,"name":"Trufa","price":25,"quantity":2},
		{"id":2,"name":"Barra","price":-5,"quantity":1}
	]`)))

	require.NoError(t, s.Restore(ctx))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, domain.ProductID(1), lines[0].ID)
	assert.Equal(t, 3, lines[0].Quantity)

	s.RemoveItem(ctx, 1)
	assert.True(t, s.IsEmpty())
	assert.Empty(t, storedLines(t, snaps))
}

func TestRestore_CorruptSnapshotYieldsEmptyCart(t *testing.T) {
	s, snaps := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, snaps.Put(ctx, repository.CartSnapshotKey, []byte(`{not json`)))

	require.NoError(t, s.Restore(ctx))

	assert.True(t, s.IsEmpty())
	data, err := snaps.Get(ctx, repository.CartSnapshotKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestRestore_NoSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Restore(context.Background()))
	assert.True(t, s.IsEmpty())
}

type failingSnapshots struct{ *memory.SnapshotStore }

func (failingSnapshots) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk gone")
}

func (failingSnapshots) Put(context.Context, string, []byte) error {
	return errors.New("disk gone")
}

func TestRestore_StoreError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStore(failingSnapshots{memory.NewSnapshotStore()}, logger)

	assert.Error(t, s.Restore(context.Background()))
}

func TestMutation_SurvivesSnapshotFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStore(failingSnapshots{memory.NewSnapshotStore()}, logger)

	_, err := s.AddItem(context.Background(), truffle())

	require.NoError(t, err)
	assert.Len(t, s.Lines(), 1)
}

// ============================================================================
// Listeners
// ============================================================================

func TestSubscribe_ReceivesChangesInOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	log := &changeLog{}
	s.Subscribe(log.listen)

	_, _ = s.AddItem(ctx, truffle())
	s.SetQuantity(ctx, 1, 4)
	s.RemoveItem(ctx, 1)
	s.Clear(ctx)

	assert.Equal(t, []ChangeKind{Added, Updated, Removed, Cleared}, log.kinds())
	assert.Equal(t, 4, log.changes[1].Line.Quantity)
	assert.Empty(t, log.changes[2].Lines)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	log := &changeLog{}
	unsubscribe := s.Subscribe(log.listen)
	unsubscribe()

	_, _ = s.AddItem(context.Background(), truffle())

	assert.Empty(t, log.kinds())
}

func TestLines_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	_, _ = s.AddItem(context.Background(), truffle())

	lines := s.Lines()
	lines[0].Quantity = 42

	assert.Equal(t, 1, s.Lines()[0].Quantity)
}

func TestConcurrentAdds(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddItem(ctx, truffle())
		}()
	}
	wg.Wait()

	cart := s.Cart()
	assert.Equal(t, 50, cart.ItemCount())
}
