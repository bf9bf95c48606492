package fetcher

import "context"

// Func is the operation a fetcher wraps. The context it receives keeps the
// values of the caller that started the invocation but not its cancellation.
type Func[A, V any] func(ctx context.Context, args A) (V, error)

// Params controls a single Fetch call.
type Params struct {
	// Force starts a new invocation even when a value is cached or an
	// invocation is already in flight. The superseded invocation still runs,
	// but its result is discarded.
	Force bool
	// Clean clears the slot's value and error before a new invocation starts.
	Clean bool
}

// DefaultParams returns the parameters a plain refresh uses: forced and clean.
func DefaultParams() Params {
	return Params{Force: true, Clean: true}
}

// SlotState is a copy of one slot's observable state.
type SlotState[V, E any] struct {
	Value    V
	HasValue bool
	Err      E
	HasErr   bool
	Loading  bool
}

// State is a consistent snapshot of a Fetcher.
type State[V, E any] struct {
	SlotState[V, E]
	CallIndex uint64
}

// Fetcher coordinates a single cached value, error and loading flag for an
// operation whose calls are not distinguished by key, such as "fetch the
// current user".
type Fetcher[A, V, E any] struct {
	c *core[A, struct{}, V, E]
}

// New wraps op in a Fetcher that records failures as-is.
// It panics with ErrNilOperation if op is nil.
func New[A, V any](op Func[A, V], opts ...Option[V, error]) *Fetcher[A, V, error] {
	return NewMapped(op, identity, opts...)
}

// NewMapped wraps op in a Fetcher that records failures through mapError.
// If mapError panics, the failure is recorded as the zero E.
func NewMapped[A, V, E any](op Func[A, V], mapError func(error) E, opts ...Option[V, E]) *Fetcher[A, V, E] {
	c := newCore[A](op, mapError, func(struct{}) string { return "" }, opts)
	if c.opts.hasInitial {
		c.set(struct{}{}, c.opts.initial)
	}
	return &Fetcher[A, V, E]{c: c}
}

// Fetch returns the value for args, invoking the operation when needed.
//
// Without p.Force, a call joins an invocation that is already in flight, or
// returns the cached value if there is one. Otherwise a new invocation starts
// and Fetch blocks until it settles or ctx is done.
//
// Failures never surface here: Fetch reports false and the mapped error is
// available from Err. A false result also means ctx ended first, in which
// case the invocation continues and still updates the state.
func (f *Fetcher[A, V, E]) Fetch(ctx context.Context, p Params, args A) (V, bool) {
	return f.c.fetch(ctx, struct{}{}, p, args)
}

// ClearCache drops the value and the error. An invocation still in flight
// is superseded and will not repopulate the slot.
func (f *Fetcher[A, V, E]) ClearCache() { f.c.clear() }

// Set publishes v as the current value and clears the error.
func (f *Fetcher[A, V, E]) Set(v V) { f.c.set(struct{}{}, v) }

// Value returns the current value, if any.
func (f *Fetcher[A, V, E]) Value() (V, bool) {
	s := f.c.slotState(struct{}{})
	return s.Value, s.HasValue
}

// Err returns the current mapped error, if any.
func (f *Fetcher[A, V, E]) Err() (E, bool) {
	s := f.c.slotState(struct{}{})
	return s.Err, s.HasErr
}

// Loading reports whether an invocation is outstanding.
func (f *Fetcher[A, V, E]) Loading() bool {
	return f.c.slotState(struct{}{}).Loading
}

// CallIndex counts Fetch calls, whatever their outcome.
func (f *Fetcher[A, V, E]) CallIndex() uint64 { return f.c.callIndex() }

// State returns a consistent snapshot of the fetcher.
func (f *Fetcher[A, V, E]) State() State[V, E] {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	st := State[V, E]{CallIndex: f.c.calls}
	if s, ok := f.c.slots[struct{}{}]; ok {
		st.SlotState = s.state()
	}
	return st
}

// Subscribe registers fn to be called after every state change. The
// returned function unregisters it. A panic in fn is logged and dropped.
func (f *Fetcher[A, V, E]) Subscribe(fn func()) (cancel func()) {
	return f.c.subscribe(fn)
}
