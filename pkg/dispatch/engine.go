// Package dispatch implements the concurrent receive/dispatch engine: a
// single lock guarding a last-value "recv pool", an append-only "keep pool"
// for explicitly watched message names, and a registry of wait-conditions
// signalled as matching packets arrive. One Engine serves one connection;
// it is reset on reconnect.
//
// The shape is adapted from the teacher's pkg/engine.Hub (register/
// unregister/broadcast over channels). All shared state sits behind a
// single sync.Mutex; each waiter is signalled through its own buffered
// channel rather than a shared condition variable.
package dispatch

import (
	"context"
	"sync"
	"time"

	"mavgo/pkg/framer"
	"mavgo/pkg/schema"
)

const paramValueMessage = "PARAM_VALUE"

// Engine holds the recv pool, keep pool, wait-condition registry, and
// parameter-type cache for one connection.
type Engine struct {
	mu sync.Mutex

	recvPool map[string]framer.Packet
	keepPool map[string][]framer.Packet
	keepAll  map[string]bool

	waits []*wait

	paramTypes map[string]any
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{
		recvPool:   make(map[string]framer.Packet),
		keepPool:   make(map[string][]framer.Packet),
		keepAll:    make(map[string]bool),
		paramTypes: make(map[string]any),
	}
}

// Dispatch is called by the reader goroutine for every decoded packet. It
// updates the recv pool, appends to the keep pool if enabled for this
// message name, refreshes the param-type cache on PARAM_VALUE, and signals
// every matching wait-condition — all under one short critical section.
func (e *Engine) Dispatch(pkt framer.Packet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := pkt.Message.Name
	e.recvPool[name] = pkt

	if e.keepAll[name] {
		e.keepPool[name] = append(e.keepPool[name], pkt)
	}

	if name == paramValueMessage {
		if id, ok := pkt.Content["param_id"]; ok {
			if typ, ok := pkt.Content["param_type"]; ok {
				e.paramTypes[toParamKey(id)] = typ
			}
		}
	}

	for _, w := range e.waits {
		if w.name != name {
			continue
		}
		if matches(pkt.Message, pkt.Content, w.predicate) {
			w.deliver(pkt)
		}
	}
}

func toParamKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func matches(msg *schema.Message, content, predicate map[string]any) bool {
	for field, want := range predicate {
		got, ok := content[field]
		if !ok || !valuesEqual(msg, field, got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares one decoded field value against a predicate value the
// way a caller means it, not the way Go's interface equality sees it:
//
//   - a predicate built with a plain int64/float64 literal must still match a
//     packet's natively-typed decoded value (getScalar returns the field's
//     own width, e.g. uint16 for a uint16_t command field, never a fixed
//     int64) — integers and floats are normalized onto float64 before
//     comparing, so any combination of widths/signedness/floatness compares
//     by magnitude;
//   - an enum-bound field decodes to its entry name (resolveDecodeValue), so
//     a predicate expressed as the raw integer value (e.g. a MAV_CMD id) must
//     still match a string-valued got, and a predicate expressed as the
//     entry name must still match if got is ever the raw integer — both
//     directions are resolved through the field's Enum before falling back
//     to numeric or plain equality.
func valuesEqual(msg *schema.Message, field string, got, want any) bool {
	if got == want {
		return true
	}

	if gs, wn, ok := stringAndNumber(got, want); ok {
		return enumNameMatchesValue(msg, field, gs, wn)
	}
	if ws, gn, ok := stringAndNumber(want, got); ok {
		return enumNameMatchesValue(msg, field, ws, gn)
	}

	gf, gok := toFloat64(got)
	wf, wok := toFloat64(want)
	if gok && wok {
		return gf == wf
	}
	return false
}

// stringAndNumber reports whether a is a string and b is a numeric value,
// returning that string and b's value as a float64.
func stringAndNumber(a, b any) (string, float64, bool) {
	s, ok := a.(string)
	if !ok {
		return "", 0, false
	}
	n, ok := toFloat64(b)
	return s, n, ok
}

// enumNameMatchesValue reports whether name is the enum entry whose numeric
// value equals n, for the named field of msg. If the field is not
// enum-bound (or msg is unknown), there is no name/value relationship to
// bridge and the two never match.
func enumNameMatchesValue(msg *schema.Message, field, name string, n float64) bool {
	if msg == nil {
		return false
	}
	f, ok := msg.FieldByName(field)
	if !ok {
		return false
	}
	enum, ok := f.Enum()
	if !ok {
		return false
	}
	entry, ok := enum.EntryByName(name)
	if !ok {
		return false
	}
	return float64(entry.Value) == n
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Last returns the most recent packet received for name, and whether one
// has arrived yet.
func (e *Engine) Last(name string) (framer.Packet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pkt, ok := e.recvPool[name]
	return pkt, ok
}

// Clear removes any recv-pool entry for name, so a subsequent wait observes
// only packets that arrive after the clear — the single-consumer pattern
// request/response calls use to avoid racing on a stale value.
func (e *Engine) Clear(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.recvPool, name)
}

// SetKeepAll enables or disables keep-pool accumulation for a message name.
// Disabling does not clear any history already collected.
func (e *Engine) SetKeepAll(name string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keepAll[name] = enabled
}

// Kept returns a snapshot of the keep-pool history for name, in arrival
// order.
func (e *Engine) Kept(name string) []framer.Packet {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]framer.Packet, len(e.keepPool[name]))
	copy(out, e.keepPool[name])
	return out
}

// ResetKept discards the keep-pool history for name.
func (e *Engine) ResetKept(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.keepPool, name)
}

// ParamType returns the cached MAV_PARAM_TYPE for a parameter name learned
// from a prior PARAM_VALUE.
func (e *Engine) ParamType(paramID string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.paramTypes[paramID]
	return t, ok
}

// Reset clears every pool and wakes every outstanding waiter with
// ErrClosed, as happens on reconnect or connection close.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recvPool = make(map[string]framer.Packet)
	e.keepPool = make(map[string][]framer.Packet)
	e.paramTypes = make(map[string]any)
	for _, w := range e.waits {
		w.fail(ErrClosed)
	}
	e.waits = nil
}

// wait is one registered intent to block until a packet named `name`
// arrives whose content matches `predicate`. Delivery uses a dedicated
// channel per waiter rather than a single broadcast condvar, avoiding a
// thundering herd when many waiters watch the same message name — the
// per-condition signalling spec.md prefers over a shared broadcast.
type wait struct {
	name      string
	predicate map[string]any
	result    chan waitResult
	delivered bool
}

type waitResult struct {
	pkt framer.Packet
	err error
}

func (w *wait) deliver(pkt framer.Packet) {
	if w.delivered {
		return
	}
	w.delivered = true
	w.result <- waitResult{pkt: pkt}
}

func (w *wait) fail(err error) {
	if w.delivered {
		return
	}
	w.delivered = true
	w.result <- waitResult{err: err}
}

// RegisterWait adds a wait-condition for packets named `name` whose content
// matches every (field, value) pair in predicate. The returned handle must
// be resolved by calling Block exactly once, which removes the condition on
// return (success, timeout, or cancellation) — conditions are created on
// entry to a waiter and removed on exit, never left registered.
func (e *Engine) RegisterWait(name string, predicate map[string]any) *Handle {
	w := &wait{name: name, predicate: predicate, result: make(chan waitResult, 1)}
	e.mu.Lock()
	e.waits = append(e.waits, w)
	e.mu.Unlock()
	return &Handle{engine: e, w: w}
}

// Handle is a registered wait-condition awaiting resolution.
type Handle struct {
	engine *Engine
	w      *wait
}

// Block waits for the condition to be signalled, for ctx to be cancelled,
// or for timeout to elapse, whichever comes first. It always deregisters
// the wait-condition before returning.
func (h *Handle) Block(ctx context.Context, timeout time.Duration) (framer.Packet, error) {
	defer h.engine.removeWait(h.w)

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-h.w.result:
		return res.pkt, res.err
	case <-timeoutCh:
		return framer.Packet{}, ErrTimeout
	case <-ctx.Done():
		return framer.Packet{}, ctx.Err()
	}
}

func (e *Engine) removeWait(target *wait) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.waits {
		if w == target {
			e.waits = append(e.waits[:i], e.waits[i+1:]...)
			return
		}
	}
}
