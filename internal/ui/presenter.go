// Package ui is the port through which the storefront tells the UI shell what
// to show: toasts, the inline card error, the blocking overlay and the
// payment-method list.
package ui

import (
	"context"
	"sync"

	"github.com/Christian112b/InonicApp/internal/domain"
	"github.com/Christian112b/InonicApp/pkg/httputil"
)

// Level is a toast severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Presenter receives the UI side effects of storefront operations.
type Presenter interface {
	Notify(ctx context.Context, level Level, message string)
	ShowCardError(ctx context.Context, message string)
	ClearCardError(ctx context.Context)
	Lock(ctx context.Context)
	Unlock(ctx context.Context)
	RenderPaymentMethods(ctx context.Context, methods []domain.PaymentMethod)
}

// Recorder is a Presenter that keeps everything in memory for the local API
// to hand back to the shell.
type Recorder struct {
	mu        sync.Mutex
	notices   []httputil.Notice
	cardError string
	locked    bool
	methods   []domain.PaymentMethod
	renders   int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, httputil.Notice{Level: string(level), Message: message})
}

func (r *Recorder) ShowCardError(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cardError = message
}

func (r *Recorder) ClearCardError(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cardError = ""
}

func (r *Recorder) Lock(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

func (r *Recorder) Unlock(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = false
}

func (r *Recorder) RenderPaymentMethods(_ context.Context, methods []domain.PaymentMethod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append([]domain.PaymentMethod(nil), methods...)
	r.renders++
}

// Drain returns and forgets the pending notices.
func (r *Recorder) Drain() []httputil.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

// CardError is the inline card error currently shown, if any.
func (r *Recorder) CardError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cardError
}

// Locked reports whether the blocking overlay is up.
func (r *Recorder) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// PaymentMethods returns the rendered method list and how many times it was
// rendered.
func (r *Recorder) PaymentMethods() ([]domain.PaymentMethod, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PaymentMethod(nil), r.methods...), r.renders
}

// Reset drops all recorded state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
	r.cardError = ""
	r.locked = false
	r.methods = nil
	r.renders = 0
}
