package dispatch_test

import (
	"context"
	"testing"
	"time"

	"mavgo/pkg/dispatch"
	"mavgo/pkg/framer"
	"mavgo/pkg/schema"
)

func heartbeat(t *testing.T) *schema.Message {
	t.Helper()
	return &schema.Message{Name: "HEARTBEAT", ID: 0}
}

func commandAck(t *testing.T) *schema.Message {
	t.Helper()
	return &schema.Message{Name: "COMMAND_ACK", ID: 77}
}

func TestEngineLastTracksMostRecentPacket(t *testing.T) {
	e := dispatch.New()
	hb := heartbeat(t)

	e.Dispatch(framer.Packet{Message: hb, Content: map[string]any{"type": int64(1)}})
	e.Dispatch(framer.Packet{Message: hb, Content: map[string]any{"type": int64(2)}})

	pkt, ok := e.Last("HEARTBEAT")
	if !ok {
		t.Fatalf("expected a HEARTBEAT packet")
	}
	if pkt.Content["type"] != int64(2) {
		t.Fatalf("got %v, want latest value 2", pkt.Content["type"])
	}
}

func TestWaitDeliversOnlyMatchingPacket(t *testing.T) {
	e := dispatch.New()
	ack := commandAck(t)

	h := e.RegisterWait("COMMAND_ACK", map[string]any{"command": int64(400)})

	go func() {
		e.Dispatch(framer.Packet{Message: ack, Content: map[string]any{"command": int64(176), "result": int64(0)}})
		time.Sleep(10 * time.Millisecond)
		e.Dispatch(framer.Packet{Message: ack, Content: map[string]any{"command": int64(400), "result": int64(0)}})
	}()

	pkt, err := h.Block(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Block returned error: %v", err)
	}
	if pkt.Content["command"] != int64(400) {
		t.Fatalf("got command %v, want 400", pkt.Content["command"])
	}
}

func TestWaitTimesOutWithoutMatchingPacket(t *testing.T) {
	e := dispatch.New()
	h := e.RegisterWait("COMMAND_ACK", map[string]any{"command": int64(400)})

	_, err := h.Block(context.Background(), 20*time.Millisecond)
	if err != dispatch.ErrTimeout {
		t.Fatalf("got err %v, want ErrTimeout", err)
	}
}

func TestKeepPoolAccumulatesOnlyWhenEnabled(t *testing.T) {
	e := dispatch.New()
	hb := heartbeat(t)

	e.Dispatch(framer.Packet{Message: hb, Content: map[string]any{"n": int64(1)}})
	if kept := e.Kept("HEARTBEAT"); len(kept) != 0 {
		t.Fatalf("expected no kept packets before enabling, got %d", len(kept))
	}

	e.SetKeepAll("HEARTBEAT", true)
	e.Dispatch(framer.Packet{Message: hb, Content: map[string]any{"n": int64(2)}})
	e.Dispatch(framer.Packet{Message: hb, Content: map[string]any{"n": int64(3)}})

	kept := e.Kept("HEARTBEAT")
	if len(kept) != 2 {
		t.Fatalf("got %d kept packets, want 2", len(kept))
	}
	if kept[0].Content["n"] != int64(2) || kept[1].Content["n"] != int64(3) {
		t.Fatalf("kept packets out of order: %+v", kept)
	}
}

func TestResetFailsOutstandingWaiters(t *testing.T) {
	e := dispatch.New()
	h := e.RegisterWait("COMMAND_ACK", nil)

	done := make(chan error, 1)
	go func() {
		_, err := h.Block(context.Background(), time.Second)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	e.Reset()

	select {
	case err := <-done:
		if err != dispatch.ErrClosed {
			t.Fatalf("got err %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Block did not return after Reset")
	}
}

func TestParamTypeCachePopulatedFromParamValue(t *testing.T) {
	e := dispatch.New()
	pv := &schema.Message{Name: "PARAM_VALUE", ID: 22}

	e.Dispatch(framer.Packet{Message: pv, Content: map[string]any{
		"param_id":   "THR_MIN",
		"param_type": int64(9),
	}})

	typ, ok := e.ParamType("THR_MIN")
	if !ok {
		t.Fatalf("expected a cached param type for THR_MIN")
	}
	if typ != int64(9) {
		t.Fatalf("got %v, want 9", typ)
	}
}
