package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightKey is the only key used in a slot's singleflight group. Each slot
// owns its own group, so request keys never need to be stringified.
const flightKey = "fetch"

// attempt is one invocation of the wrapped operation.
type attempt struct {
	// seq is the sequence number this attempt settles under. A joining
	// caller re-stamps it so the joined attempt stays current.
	seq uint64
	run func() (any, error)
}

// slot is the cached state for one request key. All fields are guarded by
// the owning core's mutex.
type slot[V, E any] struct {
	value    V
	hasValue bool
	err      E
	hasErr   bool
	loading  bool
	seq      uint64
	inflight *attempt
	flight   singleflight.Group
}

func (s *slot[V, E]) clean() {
	var zeroV V
	var zeroE E
	s.value, s.hasValue = zeroV, false
	s.err, s.hasErr = zeroE, false
}

// reset drops everything and supersedes an outstanding attempt, if any.
func (s *slot[V, E]) reset() {
	s.clean()
	s.seq++
	s.inflight = nil
	s.loading = false
}

func (s *slot[V, E]) state() SlotState[V, E] {
	return SlotState[V, E]{
		Value:    s.value,
		HasValue: s.hasValue,
		Err:      s.err,
		HasErr:   s.hasErr,
		Loading:  s.loading,
	}
}

// core is the state machine shared by Fetcher and Keyed. The synchronous
// coordination state (sequence numbers, in-flight markers) and the published
// slot state both live behind mu; listeners only ever observe copies.
type core[A any, K comparable, V, E any] struct {
	op       Func[A, V]
	mapError func(error) E
	keyName  func(K) string
	opts     config[V, E]

	mu        sync.Mutex
	slots     map[K]*slot[V, E]
	calls     uint64
	lastErr   E
	hasLast   bool
	listeners map[uint64]func()
	nextID    uint64
}

func newCore[A any, K comparable, V, E any](op Func[A, V], mapError func(error) E, keyName func(K) string, opts []Option[V, E]) *core[A, K, V, E] {
	if op == nil {
		panic(ErrNilOperation)
	}
	if mapError == nil {
		panic(ErrNilMapError)
	}
	cfg := defaultConfig[V, E]()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &core[A, K, V, E]{
		op:        op,
		mapError:  mapError,
		keyName:   keyName,
		opts:      cfg,
		slots:     make(map[K]*slot[V, E]),
		listeners: make(map[uint64]func()),
	}
}

// slotFor returns the slot for key, creating it on first use. Callers hold mu.
func (c *core[A, K, V, E]) slotFor(key K) *slot[V, E] {
	s, ok := c.slots[key]
	if !ok {
		s = &slot[V, E]{}
		c.slots[key] = s
	}
	return s
}

func (c *core[A, K, V, E]) fetch(ctx context.Context, key K, p Params, args A) (V, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	s := c.slotFor(key)
	s.seq++
	c.calls++
	seq := s.seq

	if !p.Force {
		if s.inflight != nil {
			// The attempt is still registered in s.flight: it clears
			// s.inflight under mu before its function returns.
			s.inflight.seq = seq
			ch := s.flight.DoChan(flightKey, s.inflight.run)
			c.mu.Unlock()
			c.emit(EventDedup, key, seq)
			c.notify()
			return wait[V](ctx, ch)
		}
		if s.hasValue {
			v := s.value
			c.mu.Unlock()
			c.emit(EventHit, key, seq)
			c.notify()
			return v, true
		}
	}

	// A forced call, or nothing to reuse: start a new attempt. Forget lets
	// a superseded attempt finish on its own without being joined.
	s.flight.Forget(flightKey)
	if p.Clean {
		s.clean()
	}
	at := &attempt{seq: seq}
	at.run = func() (any, error) {
		return c.run(ctx, key, s, at, args)
	}
	s.inflight = at
	s.loading = true
	ch := s.flight.DoChan(flightKey, at.run)
	c.mu.Unlock()

	c.emit(EventMiss, key, seq)
	c.notify()
	return wait[V](ctx, ch)
}

func wait[V any](ctx context.Context, ch <-chan singleflight.Result) (V, bool) {
	var zero V
	select {
	case <-ctx.Done():
		return zero, false
	case res := <-ch:
		if res.Err != nil {
			return zero, false
		}
		v, _ := res.Val.(V)
		return v, true
	}
}

// run executes the operation for at and settles the result into s. It runs
// on the goroutine singleflight starts for the attempt.
func (c *core[A, K, V, E]) run(ctx context.Context, key K, s *slot[V, E], at *attempt, args A) (any, error) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	v, err := c.invoke(opCtx, key, args)
	c.settle(key, s, at, v, err)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *core[A, K, V, E]) invoke(ctx context.Context, key K, args A) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			c.log(ctx, slog.LevelError, "fetcher: operation panicked",
				slog.String("key", c.keyName(key)), slog.Any("panic", r))
		}
	}()
	return c.op(ctx, args)
}

// mapFailure runs the error mapper. A panicking mapper records the zero E
// so the slot still reports a failure.
func (c *core[A, K, V, E]) mapFailure(key K, opErr error) (mapped E) {
	defer func() {
		if r := recover(); r != nil {
			var zero E
			mapped = zero
			c.log(context.Background(), slog.LevelError, "fetcher: error mapper panicked",
				slog.String("key", c.keyName(key)), slog.Any("error", opErr), slog.Any("panic", r))
		}
	}()
	return c.mapError(opErr)
}

// guard runs a caller-supplied callback, logging instead of propagating a
// panic: callbacks run on goroutines no caller can recover on.
func (c *core[A, K, V, E]) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log(context.Background(), slog.LevelError, "fetcher: "+what+" panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// opContext detaches the operation from the starting caller's cancellation:
// joiners may still be waiting after the first caller gives up.
func (c *core[A, K, V, E]) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.opts.timeout > 0 {
		return context.WithTimeout(detached, c.opts.timeout)
	}
	return detached, func() {}
}

func (c *core[A, K, V, E]) settle(key K, s *slot[V, E], at *attempt, v V, opErr error) {
	var mapped E
	if opErr != nil {
		mapped = c.mapFailure(key, opErr)
	}

	c.mu.Lock()
	if s.inflight == at {
		s.inflight = nil
	}
	seq, current := at.seq, at.seq == s.seq
	if !current {
		c.mu.Unlock()
		c.log(context.Background(), slog.LevelDebug, "fetcher: discarding stale result",
			slog.String("key", c.keyName(key)), slog.Uint64("seq", seq))
		c.emit(EventStale, key, seq)
		return
	}

	s.loading = false
	if opErr != nil {
		var zero V
		s.value, s.hasValue = zero, false
		s.err, s.hasErr = mapped, true
		c.lastErr, c.hasLast = mapped, true
	} else {
		var zero E
		s.value, s.hasValue = v, true
		s.err, s.hasErr = zero, false
	}
	c.mu.Unlock()

	if opErr != nil {
		c.log(context.Background(), slog.LevelDebug, "fetcher: operation failed",
			slog.String("key", c.keyName(key)), slog.Any("error", opErr))
		c.emit(EventError, key, seq)
	}
	c.notify()
}

func (c *core[A, K, V, E]) set(key K, v V) {
	c.mu.Lock()
	s := c.slotFor(key)
	var zero E
	s.value, s.hasValue = v, true
	s.err, s.hasErr = zero, false
	c.mu.Unlock()
	c.notify()
}

func (c *core[A, K, V, E]) forget(key K) {
	c.mu.Lock()
	if s, ok := c.slots[key]; ok {
		s.reset()
		delete(c.slots, key)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *core[A, K, V, E]) clear() {
	c.mu.Lock()
	for key, s := range c.slots {
		s.reset()
		delete(c.slots, key)
	}
	var zero E
	c.lastErr, c.hasLast = zero, false
	c.mu.Unlock()
	c.notify()
}

func (c *core[A, K, V, E]) slotState(key K) SlotState[V, E] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		return SlotState[V, E]{}
	}
	return s.state()
}

func (c *core[A, K, V, E]) callIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *core[A, K, V, E]) subscribe(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// notify calls every listener outside the lock.
func (c *core[A, K, V, E]) notify() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		c.guard("listener", fn)
	}
}

func (c *core[A, K, V, E]) emit(event Event, key K, seq uint64) {
	if c.opts.observer == nil {
		return
	}
	data := EventData{
		Event: event,
		Key:   c.keyName(key),
		Seq:   seq,
	}
	c.guard("observer", func() { c.opts.observer.On(data) })
}

func (c *core[A, K, V, E]) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if c.opts.logger == nil {
		return
	}
	c.opts.logger.LogAttrs(ctx, level, msg, attrs...)
}

// identity is the default failure mapper.
func identity(err error) error { return err }

func keyString[K comparable](key K) string { return fmt.Sprint(key) }
