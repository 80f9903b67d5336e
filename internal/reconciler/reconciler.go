// Package reconciler keeps the backend cart in step with the local one:
// background pushes after each mutation, a full pull when the cart panel
// opens and an awaited push before checkout.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Christian112b/InonicApp/internal/backend"
	"github.com/Christian112b/InonicApp/internal/cart"
	"github.com/Christian112b/InonicApp/internal/domain"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/middleware"
)

// MsgSessionRequired is shown when the cart panel opens without a session.
const MsgSessionRequired = "Debes iniciar sesión para ver tu carrito."

var pushFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_cart_push_failures_total",
		Help: "Background cart pushes that failed and were dropped",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(pushFailures)
}

// Backend is the part of the storefront backend the reconciler needs.
type Backend interface {
	CheckSession(ctx context.Context) (backend.Session, error)
	AddCart(ctx context.Context, id domain.ProductID) error
	SaveCart(ctx context.Context, lines []domain.CartLine) error
	GetItemsCart(ctx context.Context) ([]domain.CartLine, error)
}

// Reconciler synchronizes a cart.Store with the backend. Background pushes
// go out one at a time in mutation order.
type Reconciler struct {
	store       *cart.Store
	backend     Backend
	logger      *slog.Logger
	pushTimeout time.Duration
	now         func() time.Time

	syncing atomic.Bool

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []pending
	sending bool
	closed  bool
	// synced is the newest cart version the backend holds in full. Queued
	// changes at or below it are already reflected there.
	synced uint64

	stopped     chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

type pending struct {
	ctx    context.Context
	change cart.Change
}

// New creates a reconciler, starts its push worker and subscribes it to
// store. pushTimeout bounds each background push.
func New(store *cart.Store, b Backend, logger *slog.Logger, pushTimeout time.Duration) *Reconciler {
	r := &Reconciler{
		store:       store,
		backend:     b,
		logger:      logger,
		pushTimeout: pushTimeout,
		now:         time.Now,
		stopped:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.run()
	r.unsubscribe = store.Subscribe(r.onChange)
	return r
}

// onChange queues a background push for c. Replaced carts came from the
// backend and are not sent back.
func (r *Reconciler) onChange(ctx context.Context, c cart.Change) {
	if c.Kind == cart.Replaced {
		r.markSynced(c.Version)
		return
	}
	if claims := middleware.ClaimsFromContext(ctx); claims.Expired(r.now()) {
		r.logger.InfoContext(ctx, "token expired, cart saved locally only",
			slog.String("change", c.Kind.String()),
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.WarnContext(ctx, "reconciler closed, cart change not pushed",
			slog.String("change", c.Kind.String()),
		)
		return
	}
	// The push outlives the request that caused it.
	r.queue = append(r.queue, pending{ctx: context.WithoutCancel(ctx), change: c})
	r.cond.Broadcast()
}

// run drains the queue until Close, finishing what was queued before it.
func (r *Reconciler) run() {
	defer close(r.stopped)

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			return
		}

		p := r.queue[0]
		r.queue = r.queue[1:]
		if p.change.Version <= r.synced {
			r.logger.DebugContext(p.ctx, "cart change already on backend, push skipped",
				slog.String("change", p.change.Kind.String()),
			)
			r.cond.Broadcast()
			continue
		}

		r.sending = true
		r.mu.Unlock()
		ok := r.push(p.ctx, p.change)
		r.mu.Lock()
		r.sending = false
		if ok && p.change.Kind != cart.Added && p.change.Version > r.synced {
			r.synced = p.change.Version
		}
		r.cond.Broadcast()
	}
}

func (r *Reconciler) push(ctx context.Context, c cart.Change) bool {
	if r.pushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.pushTimeout)
		defer cancel()
	}

	var err error
	switch c.Kind {
	case cart.Added:
		err = r.backend.AddCart(ctx, c.Line.ID)
	default:
		err = r.backend.SaveCart(ctx, c.Lines)
	}
	if err != nil {
		pushFailures.WithLabelValues(c.Kind.String()).Inc()
		r.logger.WarnContext(ctx, "background cart push failed",
			slog.String("change", c.Kind.String()),
			slog.String("product_id", c.Line.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	r.logger.DebugContext(ctx, "cart change pushed", slog.String("change", c.Kind.String()))
	return true
}

func (r *Reconciler) markSynced(version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version > r.synced {
		r.synced = version
	}
}

// Open gates the cart panel on an active session and then replaces the
// local cart with the backend's copy.
func (r *Reconciler) Open(ctx context.Context) ([]domain.CartLine, error) {
	s, err := r.backend.CheckSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !s.Active {
		return nil, apperrors.SessionRequired(MsgSessionRequired)
	}
	if err := r.Pull(ctx); err != nil {
		return nil, err
	}
	return r.store.Lines(), nil
}

// Pull overwrites the local cart with the backend cart. Local lines the
// backend has not seen are lost.
func (r *Reconciler) Pull(ctx context.Context) error {
	if !r.syncing.CompareAndSwap(false, true) {
		return apperrors.Busy("cart sync already in progress")
	}
	defer r.syncing.Store(false)
	r.Wait()

	lines, err := r.backend.GetItemsCart(ctx)
	if err != nil {
		return fmt.Errorf("pull cart: %w", err)
	}
	r.store.Replace(ctx, lines)

	r.logger.InfoContext(ctx, "cart pulled from backend", slog.Int("lines", len(lines)))
	return nil
}

// PushAndAwait lets queued background pushes land, then sends the whole
// local cart and waits for the answer.
func (r *Reconciler) PushAndAwait(ctx context.Context) error {
	if !r.syncing.CompareAndSwap(false, true) {
		return apperrors.Busy("cart sync already in progress")
	}
	defer r.syncing.Store(false)
	r.Wait()

	lines, version := r.store.Versioned()
	if err := r.backend.SaveCart(ctx, lines); err != nil {
		return fmt.Errorf("push cart: %w", err)
	}
	r.markSynced(version)

	r.logger.InfoContext(ctx, "cart pushed to backend", slog.Int("lines", len(lines)))
	return nil
}

// SyncAfterLogin reconciles right after sign-in: a non-empty local cart is
// pushed, an empty one is filled from the backend.
func (r *Reconciler) SyncAfterLogin(ctx context.Context) error {
	if r.store.IsEmpty() {
		return r.Pull(ctx)
	}
	return r.PushAndAwait(ctx)
}

// Wait blocks until every queued background push has been sent.
func (r *Reconciler) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) > 0 || r.sending {
		r.cond.Wait()
	}
}

// Close stops listening to the store, sends what is already queued and
// stops the worker.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.unsubscribe()
		r.mu.Lock()
		r.closed = true
		r.cond.Broadcast()
		r.mu.Unlock()
		<-r.stopped
	})
}
