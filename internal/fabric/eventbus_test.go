package fabric

import (
	"encoding/json"
	"testing"
	"time"
)

type patchUpdated struct {
	UniverseID string `json:"universe_id"`
	Channel    int    `json:"channel"`
}

func recvTyped(t *testing.T, ch <-chan TypedDelivery) TypedDelivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for typed delivery")
		return TypedDelivery{}
	}
}

func recvJSON(t *testing.T, ch <-chan JSONDelivery) JSONDelivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for json delivery")
		return JSONDelivery{}
	}
}

// TestEventBusTranslatesDeclaredType exercises the event bus's declared-type
// translation: an emission in any one encoding reaches listeners subscribed
// in either of the other two, round-tripping through the same value.
func TestEventBusTranslatesDeclaredType(t *testing.T) {
	bus := NewEventBus()
	Declare[patchUpdated](bus, "patcher.patch_updated")

	typedCh, unsubTyped := bus.SubscribeTyped("patcher.patch_updated", NoCriteria, 0)
	defer unsubTyped()
	jsonCh, unsubJSON := bus.SubscribeJSON("patcher.patch_updated", NoCriteria, 0)
	defer unsubJSON()
	cborCh, unsubCBOR := bus.SubscribeCBOR("patcher.patch_updated", NoCriteria, 0)
	defer unsubCBOR()

	want := patchUpdated{UniverseID: "uni-1", Channel: 12}
	bus.EmitTyped("patcher.patch_updated", NoCriteria, want)

	td := recvTyped(t, typedCh)
	if td.Value.(patchUpdated) != want {
		t.Fatalf("typed listener got %+v, want %+v", td.Value, want)
	}

	jd := recvJSON(t, jsonCh)
	var gotFromJSON patchUpdated
	if err := json.Unmarshal(jd.Data, &gotFromJSON); err != nil {
		t.Fatalf("unmarshal synthesized json: %v", err)
	}
	if gotFromJSON != want {
		t.Fatalf("json listener got %+v, want %+v", gotFromJSON, want)
	}

	select {
	case cd := <-cborCh:
		var gotFromCBOR patchUpdated
		if err := unmarshalCBOR(cd.Data, &gotFromCBOR); err != nil {
			t.Fatalf("unmarshal synthesized cbor: %v", err)
		}
		if gotFromCBOR != want {
			t.Fatalf("cbor listener got %+v, want %+v", gotFromCBOR, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cbor delivery")
	}
}

// TestEventBusCriteriaFiltering confirms a tagged listener only receives
// emissions carrying the identical criteria, while a none-criteria listener
// receives everything.
func TestEventBusCriteriaFiltering(t *testing.T) {
	bus := NewEventBus()
	tagged, unsubTagged := bus.SubscribeTyped("mixer.layer_content_changed", StringCriteria("layer-a"), 4)
	defer unsubTagged()
	untagged, unsubUntagged := bus.SubscribeTyped("mixer.layer_content_changed", NoCriteria, 4)
	defer unsubUntagged()

	bus.EmitTyped("mixer.layer_content_changed", StringCriteria("layer-b"), "b-payload")
	select {
	case d := <-tagged:
		t.Fatalf("tagged listener should not have received layer-b emission, got %+v", d)
	default:
	}
	if d := recvTyped(t, untagged); d.Value.(string) != "b-payload" {
		t.Fatalf("untagged listener got %v", d.Value)
	}

	bus.EmitTyped("mixer.layer_content_changed", StringCriteria("layer-a"), "a-payload")
	if d := recvTyped(t, tagged); d.Value.(string) != "a-payload" {
		t.Fatalf("tagged listener got %v", d.Value)
	}
}

// TestEventBusDropsOnFullChannel confirms emission to a full listener buffer
// never blocks the emitter: the surplus is silently dropped.
func TestEventBusDropsOnFullChannel(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeTyped("dmx.output", NoCriteria, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.EmitTyped("dmx.output", NoCriteria, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emitter blocked on a full listener channel")
	}
	<-ch
}

// TestEventBusUnsubscribePrunesLazily confirms an unsubscribed listener is
// dropped by the next emission and receives nothing further.
func TestEventBusUnsubscribePrunesLazily(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeTyped("fabric.shutdown", NoCriteria, 2)
	unsub()

	bus.EmitTyped("fabric.shutdown", NoCriteria, struct{}{})
	select {
	case d, ok := <-ch:
		if ok {
			t.Fatalf("unsubscribed listener received %+v", d)
		}
	default:
	}
}

func TestEventBusShutdownBroadcastsSentinel(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeTyped("patcher.patch_updated", NoCriteria, 1)
	defer unsub()

	bus.Shutdown()
	d := recvTyped(t, ch)
	if !d.Shutdown {
		t.Fatal("expected shutdown sentinel")
	}
}
