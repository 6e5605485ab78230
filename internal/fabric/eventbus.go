package fabric

import (
	"encoding/json"
	"sync"
)

// DefaultListenerBuffer is the channel capacity new subscriptions get when
// the caller doesn't request a specific size.
const DefaultListenerBuffer = 32

// TypedDelivery is what a typed listener receives: either a decoded event
// value or, on shutdown, the sentinel with Shutdown set. Criteria carries
// the emission's own tag, which a none-criteria listener needs to echo
// back to external callers (spec.md §6 "Event{name, criteria, data}").
type TypedDelivery struct {
	Shutdown bool
	Criteria FilterCriteria
	Value    interface{}
}

// JSONDelivery is what a JSON listener receives.
type JSONDelivery struct {
	Shutdown bool
	Criteria FilterCriteria
	Data     json.RawMessage
}

// CBORDelivery is what a CBOR listener receives.
type CBORDelivery struct {
	Shutdown bool
	Criteria FilterCriteria
	Data     []byte
}

// translator converts a declared event's value between its native Go type,
// JSON and CBOR, so an emission in any one encoding can be re-broadcast in
// the other two. Generated once per declared type by Declare.
type translator interface {
	nativeToJSON(v interface{}) (json.RawMessage, bool)
	nativeToCBOR(v interface{}) ([]byte, bool)
	jsonToNative(data json.RawMessage) (interface{}, bool)
	cborToNative(data []byte) (interface{}, bool)
}

type translatorT[T any] struct{}

func (translatorT[T]) nativeToJSON(v interface{}) (json.RawMessage, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (translatorT[T]) nativeToCBOR(v interface{}) ([]byte, bool) {
	b, err := marshalCBOR(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (translatorT[T]) jsonToNative(data json.RawMessage) (interface{}, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (translatorT[T]) cborToNative(data []byte) (interface{}, bool) {
	var v T
	if err := unmarshalCBOR(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

type typedSub struct {
	ch       chan TypedDelivery
	criteria FilterCriteria
	closed   bool
}

type jsonSub struct {
	ch       chan JSONDelivery
	criteria FilterCriteria
	closed   bool
}

type cborSub struct {
	ch       chan CBORDelivery
	criteria FilterCriteria
	closed   bool
}

// EventBus is the fan-out hub described in spec.md §4.1: events are named,
// listeners subscribe with a FilterCriteria, and declared event types gain
// automatic JSON/CBOR/native translation. Delivery is fire-and-forget to
// bounded channels — a slow subscriber loses events, it never blocks the
// emitter (this is a real-time rendering system: liveness beats
// back-pressure, per spec.md §4.1/§5).
type EventBus struct {
	mu       sync.Mutex
	typed    map[string][]*typedSub
	jsons    map[string][]*jsonSub
	cbors    map[string][]*cborSub
	declared map[string]translator
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		typed:    make(map[string][]*typedSub),
		jsons:    make(map[string][]*jsonSub),
		cbors:    make(map[string][]*cborSub),
		declared: make(map[string]translator),
	}
}

// Declare registers a generic decoder for eventName's native Go type T,
// enabling automatic translation between native/JSON/CBOR for that event
// (spec.md §4.1, §9 "Event bus translation"). Undeclared events traverse
// the bus only within their own encoding.
func Declare[T any](bus *EventBus, eventName string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.declared[eventName] = translatorT[T]{}
}

// SubscribeTyped registers a typed listener for eventName, returning a
// receive channel and an unsubscribe function. bufSize <= 0 uses
// DefaultListenerBuffer.
func (b *EventBus) SubscribeTyped(eventName string, criteria FilterCriteria, bufSize int) (<-chan TypedDelivery, func()) {
	if bufSize <= 0 {
		bufSize = DefaultListenerBuffer
	}
	sub := &typedSub{ch: make(chan TypedDelivery, bufSize), criteria: criteria}
	b.mu.Lock()
	b.typed[eventName] = append(b.typed[eventName], sub)
	b.mu.Unlock()
	return sub.ch, func() {
		b.mu.Lock()
		sub.closed = true
		b.mu.Unlock()
	}
}

// SubscribeJSON registers a JSON listener.
func (b *EventBus) SubscribeJSON(eventName string, criteria FilterCriteria, bufSize int) (<-chan JSONDelivery, func()) {
	if bufSize <= 0 {
		bufSize = DefaultListenerBuffer
	}
	sub := &jsonSub{ch: make(chan JSONDelivery, bufSize), criteria: criteria}
	b.mu.Lock()
	b.jsons[eventName] = append(b.jsons[eventName], sub)
	b.mu.Unlock()
	return sub.ch, func() {
		b.mu.Lock()
		sub.closed = true
		b.mu.Unlock()
	}
}

// SubscribeCBOR registers a CBOR listener.
func (b *EventBus) SubscribeCBOR(eventName string, criteria FilterCriteria, bufSize int) (<-chan CBORDelivery, func()) {
	if bufSize <= 0 {
		bufSize = DefaultListenerBuffer
	}
	sub := &cborSub{ch: make(chan CBORDelivery, bufSize), criteria: criteria}
	b.mu.Lock()
	b.cbors[eventName] = append(b.cbors[eventName], sub)
	b.mu.Unlock()
	return sub.ch, func() {
		b.mu.Lock()
		sub.closed = true
		b.mu.Unlock()
	}
}

// pruneLocked drops unsubscribed entries for eventName across all three
// encodings. Must be called with b.mu held. Subscriptions have no way to
// observe "no remaining receivers" directly in Go (channels don't expose a
// reader count), so "closed" here means Unsubscribe was called — pruning
// that lazily, right before the next emission, is the idiomatic
// approximation of spec.md §4.1's "listener channels that have no
// remaining receivers are pruned lazily before every emission".
func (b *EventBus) pruneLocked(eventName string) {
	if subs := b.typed[eventName]; len(subs) > 0 {
		kept := subs[:0]
		for _, s := range subs {
			if !s.closed {
				kept = append(kept, s)
			}
		}
		b.typed[eventName] = kept
	}
	if subs := b.jsons[eventName]; len(subs) > 0 {
		kept := subs[:0]
		for _, s := range subs {
			if !s.closed {
				kept = append(kept, s)
			}
		}
		b.jsons[eventName] = kept
	}
	if subs := b.cbors[eventName]; len(subs) > 0 {
		kept := subs[:0]
		for _, s := range subs {
			if !s.closed {
				kept = append(kept, s)
			}
		}
		b.cbors[eventName] = kept
	}
}

func deliverTyped(subs []*typedSub, criteria FilterCriteria, d TypedDelivery) {
	d.Criteria = criteria
	for _, s := range subs {
		if s.closed || !s.criteria.Matches(criteria) {
			continue
		}
		select {
		case s.ch <- d:
		default:
		}
	}
}

func deliverJSON(subs []*jsonSub, criteria FilterCriteria, d JSONDelivery) {
	d.Criteria = criteria
	for _, s := range subs {
		if s.closed || !s.criteria.Matches(criteria) {
			continue
		}
		select {
		case s.ch <- d:
		default:
		}
	}
}

func deliverCBOR(subs []*cborSub, criteria FilterCriteria, d CBORDelivery) {
	d.Criteria = criteria
	for _, s := range subs {
		if s.closed || !s.criteria.Matches(criteria) {
			continue
		}
		select {
		case s.ch <- d:
		default:
		}
	}
}

// EmitTyped publishes a native-encoding event. If the event is declared,
// JSON and CBOR listeners receive a synthesized copy; synthesis failure
// silently skips only that encoding (spec.md §4.1).
func (b *EventBus) EmitTyped(eventName string, criteria FilterCriteria, value interface{}) {
	b.mu.Lock()
	b.pruneLocked(eventName)
	typedSubs := append([]*typedSub(nil), b.typed[eventName]...)
	var jsonData json.RawMessage
	var cborData []byte
	var haveJSON, haveCBOR bool
	if tr, ok := b.declared[eventName]; ok {
		if len(b.jsons[eventName]) > 0 {
			if j, ok := tr.nativeToJSON(value); ok {
				jsonData, haveJSON = j, true
			}
		}
		if len(b.cbors[eventName]) > 0 {
			if c, ok := tr.nativeToCBOR(value); ok {
				cborData, haveCBOR = c, true
			}
		}
	}
	jsonSubs := append([]*jsonSub(nil), b.jsons[eventName]...)
	cborSubs := append([]*cborSub(nil), b.cbors[eventName]...)
	b.mu.Unlock()

	deliverTyped(typedSubs, criteria, TypedDelivery{Value: value})
	if haveJSON {
		deliverJSON(jsonSubs, criteria, JSONDelivery{Data: jsonData})
	}
	if haveCBOR {
		deliverCBOR(cborSubs, criteria, CBORDelivery{Data: cborData})
	}
}

// EmitJSON publishes a JSON-encoding event (e.g. from a stdio/websocket
// client's SendEvent command).
func (b *EventBus) EmitJSON(eventName string, criteria FilterCriteria, data json.RawMessage) {
	b.mu.Lock()
	b.pruneLocked(eventName)
	jsonSubs := append([]*jsonSub(nil), b.jsons[eventName]...)
	var nativeVal interface{}
	var cborData []byte
	var haveNative, haveCBOR bool
	if tr, ok := b.declared[eventName]; ok {
		if len(b.typed[eventName]) > 0 || len(b.cbors[eventName]) > 0 {
			if v, ok := tr.jsonToNative(data); ok {
				nativeVal, haveNative = v, true
				if len(b.cbors[eventName]) > 0 {
					if c, ok := tr.nativeToCBOR(v); ok {
						cborData, haveCBOR = c, true
					}
				}
			}
		}
	}
	typedSubs := append([]*typedSub(nil), b.typed[eventName]...)
	cborSubs := append([]*cborSub(nil), b.cbors[eventName]...)
	b.mu.Unlock()

	deliverJSON(jsonSubs, criteria, JSONDelivery{Data: data})
	if haveNative {
		deliverTyped(typedSubs, criteria, TypedDelivery{Value: nativeVal})
	}
	if haveCBOR {
		deliverCBOR(cborSubs, criteria, CBORDelivery{Data: cborData})
	}
}

// EmitCBOR publishes a CBOR-encoding event.
func (b *EventBus) EmitCBOR(eventName string, criteria FilterCriteria, data []byte) {
	b.mu.Lock()
	b.pruneLocked(eventName)
	cborSubs := append([]*cborSub(nil), b.cbors[eventName]...)
	var nativeVal interface{}
	var jsonData json.RawMessage
	var haveNative, haveJSON bool
	if tr, ok := b.declared[eventName]; ok {
		if len(b.typed[eventName]) > 0 || len(b.jsons[eventName]) > 0 {
			if v, ok := tr.cborToNative(data); ok {
				nativeVal, haveNative = v, true
				if len(b.jsons[eventName]) > 0 {
					if j, ok := tr.nativeToJSON(v); ok {
						jsonData, haveJSON = j, true
					}
				}
			}
		}
	}
	typedSubs := append([]*typedSub(nil), b.typed[eventName]...)
	jsonSubs := append([]*jsonSub(nil), b.jsons[eventName]...)
	b.mu.Unlock()

	deliverCBOR(cborSubs, criteria, CBORDelivery{Data: data})
	if haveNative {
		deliverTyped(typedSubs, criteria, TypedDelivery{Value: nativeVal})
	}
	if haveJSON {
		deliverJSON(jsonSubs, criteria, JSONDelivery{Data: jsonData})
	}
}

// Shutdown sends the shutdown sentinel to every listener on every event,
// best-effort (a full channel still just drops the sentinel — the
// listener is expected to be reading its channel in a select alongside a
// context/done channel in the general case, so this is a courtesy, not
// the sole cancellation signal; see fabric.Shutdown for the authoritative
// one).
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.typed {
		for _, s := range subs {
			select {
			case s.ch <- TypedDelivery{Shutdown: true}:
			default:
			}
		}
	}
	for _, subs := range b.jsons {
		for _, s := range subs {
			select {
			case s.ch <- JSONDelivery{Shutdown: true}:
			default:
			}
		}
	}
	for _, subs := range b.cbors {
		for _, s := range subs {
			select {
			case s.ch <- CBORDelivery{Shutdown: true}:
			default:
			}
		}
	}
}
