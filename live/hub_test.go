package live

import (
	"errors"
	"testing"
)

type fakeConn struct {
	sent   []any
	fail   bool
	closed bool
}

func (f *fakeConn) SendJSON(v any) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := &fakeConn{}
	b := &fakeConn{}
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast(StandingsUpdate{Rally: "r1", Class: "gravel"})

	for name, conn := range map[string]*fakeConn{"a": a, "b": b} {
		if len(conn.sent) != 1 {
			t.Errorf("conn %s received %d messages, want 1", name, len(conn.sent))
		}
	}
}

func TestHubBroadcastDropsFailedConns(t *testing.T) {
	hub := NewHub()
	ok := &fakeConn{}
	broken := &fakeConn{fail: true}
	hub.Register(ok)
	hub.Register(broken)

	hub.Broadcast("first")

	if !broken.closed {
		t.Error("failed conn was not closed")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast("second")
	if len(ok.sent) != 2 {
		t.Errorf("healthy conn received %d messages, want 2", len(ok.sent))
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	c := &fakeConn{}
	hub.Register(c)
	hub.Unregister(c)

	hub.Broadcast("msg")
	if len(c.sent) != 0 {
		t.Errorf("unregistered conn received %d messages", len(c.sent))
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}
