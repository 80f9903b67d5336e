// Package cart holds the shopper's local cart. It is the source of truth for
// what the cart panel shows and is written through to a snapshot store on
// every mutation.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/internal/repository"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

const defaultProductName = "Producto"

// ChangeKind says what a mutation did.
type ChangeKind int

const (
	Added ChangeKind = iota
	Updated
	Removed
	Cleared
	Replaced
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Cleared:
		return "cleared"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Line is the affected line (zero for
// Cleared and Replaced); Lines is the cart right after the mutation.
// Version increases by one per mutation, so listeners can order changes
// that reach them out of order.
type Change struct {
	Kind    ChangeKind
	Line    domain.CartLine
	Lines   []domain.CartLine
	Version uint64
}

// Listener is called synchronously after every mutation, outside the store
// lock, with the context of the call that caused it.
type Listener func(ctx context.Context, c Change)

// Store is the mutex-guarded local cart.
type Store struct {
	mu        sync.Mutex
	lines     []domain.CartLine
	version   uint64
	snapshots repository.SnapshotStore
	logger    *slog.Logger

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewStore creates an empty store backed by snapshots.
func NewStore(snapshots repository.SnapshotStore, logger *slog.Logger) *Store {
	return &Store{
		snapshots: snapshots,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// Restore hydrates the cart from its snapshot. Invalid lines are dropped and
// a corrupt snapshot yields an empty cart; the cleaned cart is re-saved.
// Listeners are not notified.
func (s *Store) Restore(ctx context.Context) error {
	data, err := s.snapshots.Get(ctx, repository.CartSnapshotKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load cart snapshot: %w", err)
	}

	lines, dropped, err := domain.ParseLines(data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt cart snapshot", slog.String("error", err.Error()))
		lines = nil
	}
	if dropped > 0 {
		s.logger.InfoContext(ctx, "dropped invalid cart lines from snapshot", slog.Int("dropped", dropped))
	}

	s.mu.Lock()
	s.lines = lines
	s.persistLocked(ctx)
	s.mu.Unlock()

	return nil
}

// AddItem adds one unit of p, creating the line if needed.
func (s *Store) AddItem(ctx context.Context, p domain.Product) (domain.CartLine, error) {
	if p.ID == 0 {
		return domain.CartLine{}, apperrors.InvalidInput("product id is required")
	}
	if p.Price.IsNegative() {
		return domain.CartLine{}, apperrors.InvalidInput("price must not be negative")
	}

	s.mu.Lock()
	var line domain.CartLine
	if i := s.indexLocked(p.ID); i >= 0 {
		s.lines[i].Quantity++
		line = s.lines[i]
	} else {
		line = domain.CartLine{
			ID:        p.ID,
			Name:      p.Name,
			Image:     p.Image,
			UnitPrice: p.Price,
			Quantity:  1,
		}
		if line.Name == "" {
			line.Name = defaultProductName
		}
		s.lines = append(s.lines, line)
	}
	c := s.commitLocked(ctx, Added, line)
	s.mu.Unlock()

	s.notify(ctx, c)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("product_id", p.ID.String()),
		slog.Int("quantity", line.Quantity),
	)
	return line, nil
}

// RemoveItem deletes the line for id. Missing ids are a no-op.
func (s *Store) RemoveItem(ctx context.Context, id domain.ProductID) {
	s.mutateQuantity(ctx, id, func(int) int { return 0 })
}

// SetQuantity sets the line's quantity. Zero or less removes the line.
// Missing ids are a no-op.
func (s *Store) SetQuantity(ctx context.Context, id domain.ProductID, qty int) {
	s.mutateQuantity(ctx, id, func(int) int { return qty })
}

// Adjust adds delta to the line's quantity, removing it at zero or below.
func (s *Store) Adjust(ctx context.Context, id domain.ProductID, delta int) {
	s.mutateQuantity(ctx, id, func(q int) int { return q + delta })
}

func (s *Store) mutateQuantity(ctx context.Context, id domain.ProductID, next func(int) int) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}

	var c Change
	if qty := next(s.lines[i].Quantity); qty > 0 {
		s.lines[i].Quantity = qty
		c = s.commitLocked(ctx, Updated, s.lines[i])
	} else {
		line := s.lines[i]
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		c = s.commitLocked(ctx, Removed, line)
	}
	s.mu.Unlock()

	s.notify(ctx, c)
}

// Clear empties the cart and erases its snapshot.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	if err := s.snapshots.Delete(ctx, repository.CartSnapshotKey); err != nil {
		s.logger.WarnContext(ctx, "failed to delete cart snapshot", slog.String("error", err.Error()))
	}
	s.version++
	c := Change{Kind: Cleared, Lines: []domain.CartLine{}, Version: s.version}
	s.mu.Unlock()

	s.notify(ctx, c)
}

// Replace overwrites the whole cart, e.g. with the backend's copy. Invalid
// lines are dropped and repeated ids merged.
func (s *Store) Replace(ctx context.Context, lines []domain.CartLine) {
	clean, dropped := domain.NormalizeLines(lines)
	if dropped > 0 {
		s.logger.InfoContext(ctx, "dropped invalid or repeated cart lines", slog.Int("dropped", dropped))
	}

	s.mu.Lock()
	s.lines = clean
	c := s.commitLocked(ctx, Replaced, domain.CartLine{})
	s.mu.Unlock()

	s.notify(ctx, c)
}

// Forget empties the cart and deletes its snapshot without notifying
// listeners.
func (s *Store) Forget(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	if err := s.snapshots.Delete(ctx, repository.CartSnapshotKey); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

// Lines returns a copy of the current lines.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines)
}

// Versioned returns a copy of the current lines and the version they belong
// to.
func (s *Store) Versioned() ([]domain.CartLine, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines), s.version
}

// Cart returns a copy of the cart.
func (s *Store) Cart() domain.Cart {
	return domain.Cart{Lines: s.Lines()}
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

func (s *Store) indexLocked(id domain.ProductID) int {
	for i := range s.lines {
		if s.lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) commitLocked(ctx context.Context, kind ChangeKind, line domain.CartLine) Change {
	s.persistLocked(ctx)
	s.version++
	return Change{Kind: kind, Line: line, Lines: cloneLines(s.lines), Version: s.version}
}

// persistLocked writes the snapshot. A failed write is logged and the
// in-memory mutation stands.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := encodeLines(s.lines)
	if err == nil {
		err = s.snapshots.Put(ctx, repository.CartSnapshotKey, data)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist cart snapshot", slog.String("error", err.Error()))
	}
}

func (s *Store) notify(ctx context.Context, c Change) {
	s.lmu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.lmu.RUnlock()

	for _, l := range ls {
		l(ctx, c)
	}
}

func encodeLines(lines []domain.CartLine) ([]byte, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode cart lines: %w", err)
	}
	return data, nil
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}
