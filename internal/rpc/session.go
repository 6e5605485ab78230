package rpc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lumencore/lumencore/internal/fabric"
)

// SendFunc delivers one outbound message to the client; transports
// (websocket, stdio) provide the concrete implementation.
type SendFunc func(v interface{}) error

// eventState is one event name's subscription bookkeeping for a session,
// implementing the EventJuggler glossary entry: a none-criteria
// subscription suppresses delivery from any concurrently active tagged
// subscription for the same name, so a single emission is never pushed to
// the client twice.
type eventState struct {
	noneUnsub    func()
	wantedTagged map[fabric.FilterCriteria]bool
	taggedUnsub  map[fabric.FilterCriteria]func()
}

// Session is one connected RPC client: it dispatches decoded commands
// against the shared Fabric and tracks this client's own event
// subscriptions, generalizing the teacher's GodotServer per-connection
// state (internal/godot_ws/godot_ws.go) from a single hardcoded client to
// the many-transport, many-client JSON-RPC surface spec.md §6 describes.
type Session struct {
	fab  *fabric.Fabric
	send SendFunc

	mu     sync.Mutex
	events map[string]*eventState
	closed bool
}

// NewSession constructs a session bound to fab, pushing replies and event
// messages through send.
func NewSession(fab *fabric.Fabric, send SendFunc) *Session {
	return &Session{
		fab:    fab,
		send:   send,
		events: make(map[string]*eventState),
	}
}

// Close tears down every live subscription this session holds. Safe to
// call once per session, typically when the underlying transport
// disconnects.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, st := range s.events {
		if st.noneUnsub != nil {
			st.noneUnsub()
		}
		for _, unsub := range st.taggedUnsub {
			unsub()
		}
	}
}

// HandleMessage decodes raw as a tagged command and dispatches it. Replies
// (for CallService/GetServices/GetOptions) and subsequent event pushes are
// both written via the session's SendFunc.
func (s *Session) HandleMessage(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("rpc: decoding command envelope: %w", err)
	}
	switch env.Type {
	case "CallService":
		var cmd CallServiceCmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return fmt.Errorf("rpc: decoding CallService: %w", err)
		}
		return s.handleCallService(cmd)
	case "GetServices":
		var cmd GetServicesCmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return fmt.Errorf("rpc: decoding GetServices: %w", err)
		}
		return s.handleGetServices(cmd)
	case "GetOptions":
		var cmd GetOptionsCmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return fmt.Errorf("rpc: decoding GetOptions: %w", err)
		}
		return s.handleGetOptions(cmd)
	case "SendEvent":
		var cmd SendEventCmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return fmt.Errorf("rpc: decoding SendEvent: %w", err)
		}
		return s.handleSendEvent(cmd)
	case "Subscribe":
		var cmd SubscribeCmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return fmt.Errorf("rpc: decoding Subscribe: %w", err)
		}
		return s.handleSubscribe(cmd)
	case "Unsubscribe":
		var cmd UnsubscribeCmd
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return fmt.Errorf("rpc: decoding Unsubscribe: %w", err)
		}
		return s.handleUnsubscribe(cmd)
	default:
		return fmt.Errorf("rpc: unknown command type %q", env.Type)
	}
}

func (s *Session) handleCallService(cmd CallServiceCmd) error {
	svc, err := s.fab.Services.Get(cmd.PluginID, cmd.ServiceID)
	if err != nil {
		return s.send(CallServiceError{Type: "CallServiceError", MessageID: cmd.MessageID, Error: "ServiceNotFound", Detail: err.Error()})
	}
	result, callErr := svc.CallJSON(cmd.Args)
	if callErr != nil {
		return s.send(CallServiceError{Type: "CallServiceError", MessageID: cmd.MessageID, Error: callErrorWireKind(callErr.Kind), Detail: callErr.Message})
	}
	return s.send(CallServiceResponse{Type: "CallServiceResponse", MessageID: cmd.MessageID, Result: result})
}

func callErrorWireKind(kind fabric.CallErrorKind) string {
	switch kind {
	case fabric.CallErrArgDeserializeFailed:
		return "ArgDeserializationFailed"
	case fabric.CallErrResponseSerializeFailed:
		return "ResponseSerializationFailed"
	default:
		return "ArgDeserializationFailed"
	}
}

func (s *Session) handleGetServices(cmd GetServicesCmd) error {
	descs := s.fab.Services.List()
	list := make([]ServiceDescriptionWire, 0, len(descs))
	for _, d := range descs {
		list = append(list, ServiceDescriptionWire{
			PluginID:    d.PluginID,
			ServiceID:   d.ServiceID,
			Name:        d.Name,
			Description: d.Description,
			Args:        d.Signature.Args,
		})
	}
	return s.send(ServiceList{Type: "ServiceList", MessageID: cmd.MessageID, List: list})
}

func (s *Session) handleGetOptions(cmd GetOptionsCmd) error {
	list, err := s.fab.TypeSpecs.GetOptionsJSON(cmd.ProviderID)
	if err != nil {
		return s.send(OptionsError{Type: "OptionsError", MessageID: cmd.MessageID, Error: err.Error()})
	}
	return s.send(OptionsList{Type: "OptionsList", MessageID: cmd.MessageID, List: list})
}

func (s *Session) handleSendEvent(cmd SendEventCmd) error {
	criteria, err := cmd.Criteria.ToFilterCriteria()
	if err != nil {
		return err
	}
	s.fab.Events.EmitJSON(cmd.Name, criteria, cmd.Data)
	return nil
}

func (s *Session) handleSubscribe(cmd SubscribeCmd) error {
	criteria, err := cmd.Criteria.ToFilterCriteria()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	st, ok := s.events[cmd.Name]
	if !ok {
		st = &eventState{wantedTagged: make(map[fabric.FilterCriteria]bool), taggedUnsub: make(map[fabric.FilterCriteria]func())}
		s.events[cmd.Name] = st
	}

	if criteria.Kind == fabric.CriteriaNone {
		if st.noneUnsub != nil {
			return nil // already subscribed none
		}
		st.noneUnsub = s.subscribeLocked(cmd.Name, fabric.NoCriteria)
		// a none subscription already receives everything a tagged
		// subscription would; suppress the redundant tagged subs so a
		// matching emission is only pushed once (EventJuggler).
		for c, unsub := range st.taggedUnsub {
			unsub()
			delete(st.taggedUnsub, c)
		}
		return nil
	}

	st.wantedTagged[criteria] = true
	if st.noneUnsub != nil {
		return nil // suppressed while a none subscription is active
	}
	if _, ok := st.taggedUnsub[criteria]; ok {
		return nil
	}
	st.taggedUnsub[criteria] = s.subscribeLocked(cmd.Name, criteria)
	return nil
}

func (s *Session) handleUnsubscribe(cmd UnsubscribeCmd) error {
	criteria, err := cmd.Criteria.ToFilterCriteria()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.events[cmd.Name]
	if !ok {
		return nil
	}

	if criteria.Kind == fabric.CriteriaNone {
		if st.noneUnsub != nil {
			st.noneUnsub()
			st.noneUnsub = nil
		}
		// restore any tagged subscriptions the client still wants, now
		// that none is no longer suppressing them.
		for c := range st.wantedTagged {
			if _, ok := st.taggedUnsub[c]; !ok {
				st.taggedUnsub[c] = s.subscribeLocked(cmd.Name, c)
			}
		}
		return nil
	}

	delete(st.wantedTagged, criteria)
	if unsub, ok := st.taggedUnsub[criteria]; ok {
		unsub()
		delete(st.taggedUnsub, criteria)
	}
	return nil
}

// subscribeLocked registers a JSON bus subscription for (name, criteria)
// and starts a forwarding goroutine pushing each delivery to the client as
// an EventMessage. Must be called with s.mu held.
func (s *Session) subscribeLocked(name string, criteria fabric.FilterCriteria) func() {
	ch, unsub := s.fab.Events.SubscribeJSON(name, criteria, 0)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case d, ok := <-ch:
				if !ok || d.Shutdown {
					return
				}
				_ = s.send(EventMessage{
					Type:     "Event",
					Name:     name,
					Criteria: FromFilterCriteria(d.Criteria),
					Data:     d.Data,
				})
			case <-done:
				return
			}
		}
	}()
	return func() {
		unsub()
		close(done)
	}
}
