package fetcher

import "context"

// Keyed coordinates independent cached slots addressed by a request key
// derived from each call's arguments, such as "fetch user by id".
//
// Two calls whose keys are equal are the same request, whatever their
// arguments. The request-key function alone decides identity and must be
// pure.
type Keyed[A any, K comparable, V, E any] struct {
	c          *core[A, K, V, E]
	requestKey func(A) K
}

// NewKeyed wraps op in a Keyed fetcher that records failures as-is.
// It panics with ErrNilOperation or ErrNilRequestKey on nil arguments.
func NewKeyed[A any, K comparable, V any](op Func[A, V], requestKey func(A) K, opts ...Option[V, error]) *Keyed[A, K, V, error] {
	return NewKeyedMapped(op, requestKey, identity, opts...)
}

// NewKeyedMapped wraps op in a Keyed fetcher that records failures through
// mapError.
func NewKeyedMapped[A any, K comparable, V, E any](op Func[A, V], requestKey func(A) K, mapError func(error) E, opts ...Option[V, E]) *Keyed[A, K, V, E] {
	if requestKey == nil {
		panic(ErrNilRequestKey)
	}
	return &Keyed[A, K, V, E]{
		c:          newCore[A](op, mapError, keyString[K], opts),
		requestKey: requestKey,
	}
}

// Fetch behaves like Fetcher.Fetch on the slot selected by requestKey(args).
func (k *Keyed[A, K, V, E]) Fetch(ctx context.Context, p Params, args A) (V, bool) {
	return k.c.fetch(ctx, k.requestKey(args), p, args)
}

// ClearCache drops every slot and the last error. Invocations still in
// flight are superseded.
func (k *Keyed[A, K, V, E]) ClearCache() { k.c.clear() }

// Forget drops the slot for key.
func (k *Keyed[A, K, V, E]) Forget(key K) { k.c.forget(key) }

// Set publishes v as the value for key and clears its error.
func (k *Keyed[A, K, V, E]) Set(key K, v V) { k.c.set(key, v) }

// Get returns the value cached for key.
func (k *Keyed[A, K, V, E]) Get(key K) (V, bool) {
	s := k.c.slotState(key)
	return s.Value, s.HasValue
}

// Err returns the mapped error recorded for key.
func (k *Keyed[A, K, V, E]) Err(key K) (E, bool) {
	s := k.c.slotState(key)
	return s.Err, s.HasErr
}

// Loading reports whether an invocation for key is outstanding.
func (k *Keyed[A, K, V, E]) Loading(key K) bool {
	return k.c.slotState(key).Loading
}

// Slot returns a copy of the state for key.
func (k *Keyed[A, K, V, E]) Slot(key K) SlotState[V, E] {
	return k.c.slotState(key)
}

// AnyLoading reports whether any slot is loading.
func (k *Keyed[A, K, V, E]) AnyLoading() bool {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()

	for _, s := range k.c.slots {
		if s.loading {
			return true
		}
	}
	return false
}

// AnyError reports whether any slot holds an error.
func (k *Keyed[A, K, V, E]) AnyError() bool {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()

	for _, s := range k.c.slots {
		if s.hasErr {
			return true
		}
	}
	return false
}

// LastError returns the most recently recorded error across all keys.
func (k *Keyed[A, K, V, E]) LastError() (E, bool) {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()
	return k.c.lastErr, k.c.hasLast
}

// Map returns the resolved values by key. Slots without a value are left out.
func (k *Keyed[A, K, V, E]) Map() map[K]V {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()

	m := make(map[K]V, len(k.c.slots))
	for key, s := range k.c.slots {
		if s.hasValue {
			m[key] = s.value
		}
	}
	return m
}

// Values returns the resolved values in no particular order.
func (k *Keyed[A, K, V, E]) Values() []V {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()

	vs := make([]V, 0, len(k.c.slots))
	for _, s := range k.c.slots {
		if s.hasValue {
			vs = append(vs, s.value)
		}
	}
	return vs
}

// Errors returns the recorded errors by key.
func (k *Keyed[A, K, V, E]) Errors() map[K]E {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()

	m := make(map[K]E)
	for key, s := range k.c.slots {
		if s.hasErr {
			m[key] = s.err
		}
	}
	return m
}

// Len returns the number of slots, including ones that hold only an error
// or are still loading.
func (k *Keyed[A, K, V, E]) Len() int {
	k.c.mu.Lock()
	defer k.c.mu.Unlock()
	return len(k.c.slots)
}

// CallIndex counts Fetch calls across all keys.
func (k *Keyed[A, K, V, E]) CallIndex() uint64 { return k.c.callIndex() }

// Subscribe registers fn to be called after every state change. The
// returned function unregisters it. A panic in fn is logged and dropped.
func (k *Keyed[A, K, V, E]) Subscribe(fn func()) (cancel func()) {
	return k.c.subscribe(fn)
}
