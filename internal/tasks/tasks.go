package tasks

import (
	"context"
	"net/http"
	"sync"

	"github.com/kdells/postflight/internal/model"
)

// Func is a single deferred unit of work. The context passed by the
// dispatcher is context.Background(): once dispatched, a task runs to
// completion or failure with no cancellation or timeout.
type Func func(ctx context.Context) error

// pending is one registered-but-not-yet-dispatched task. Its id is minted
// at registration time so completion logs reference an id that existed
// while the request was in flight.
type pending struct {
	id   string
	name string
	fn   Func
}

// List collects the deferred tasks of a single request. It is created by the
// dispatcher middleware when the request starts and is owned exclusively by
// that request; registrations are purely additive and never execute anything.
type List struct {
	requestID string

	mu      sync.Mutex
	pending []pending
}

// NewList creates an empty task list scoped to the given request id.
func NewList(requestID string) *List {
	return &List{requestID: requestID}
}

// RequestID returns the id of the request this list belongs to.
func (l *List) RequestID() string {
	return l.requestID
}

// Add registers a deferred task under the given name and returns the task id.
// The task does not run until the request's response has been written.
func (l *List) Add(name string, fn Func) string {
	id := model.NewID()
	l.mu.Lock()
	l.pending = append(l.pending, pending{id: id, name: name, fn: fn})
	l.mu.Unlock()
	return id
}

// Len returns the number of tasks registered so far.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// take hands ownership of the pending tasks to the caller and empties the list.
func (l *List) take() []pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.pending
	l.pending = nil
	return p
}

type ctxKey struct{}

// NewContext returns a context carrying the request's task list.
func NewContext(ctx context.Context, l *List) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the task list attached to ctx, or nil when the request
// did not pass through the dispatcher middleware.
func FromContext(ctx context.Context) *List {
	l, _ := ctx.Value(ctxKey{}).(*List)
	return l
}

// RequestIDFromContext returns the request id minted by the dispatcher
// middleware, or "" when there is none.
func RequestIDFromContext(ctx context.Context) string {
	if l := FromContext(ctx); l != nil {
		return l.requestID
	}
	return ""
}

// Middleware attaches a fresh task list to every request and dispatches it
// once the wrapped handler has returned. The response is flushed to the
// client before dispatch, so deferred work never delays bytes the handler
// already produced. Tasks registered by a handler that later panicked still
// dispatch; an inner recoverer finalizes the 500 response first.
func (d *Dispatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := NewList(model.NewID())
		w.Header().Set("X-Request-Id", l.requestID)

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))

		// Push buffered response bytes to the client before any deferred
		// work is scheduled.
		_ = http.NewResponseController(w).Flush()

		d.Dispatch(l)
	})
}
