package signalws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Call/internal/core"
)

func drain(t *testing.T, c *WsConn) core.Frame {
	t.Helper()
	select {
	case f := <-c.send:
		return f
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestHubSendDirect(t *testing.T) {
	h := NewHub()
	alice := newWsConn(nil)
	h.Register("room-1", "alice", alice)

	require.NoError(t, h.Send("room-1", "alice", core.Frame("hello")))
	assert.Equal(t, core.Frame("hello"), drain(t, alice))

	assert.Error(t, h.Send("room-1", "nobody", core.Frame("x")))
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	alice := newWsConn(nil)
	bob := newWsConn(nil)
	stranger := newWsConn(nil)
	h.Register("room-1", "alice", alice)
	h.Register("room-1", "bob", bob)
	h.Register("room-2", "carol", stranger)

	require.NoError(t, h.Send("room-1", "", core.Frame("all")))
	assert.Equal(t, core.Frame("all"), drain(t, alice))
	assert.Equal(t, core.Frame("all"), drain(t, bob))
	assert.Empty(t, stranger.send) // other rooms never see the frame
}

func TestHubUnregister(t *testing.T) {
	h := NewHub()
	alice := newWsConn(nil)
	h.Register("room-1", "alice", alice)
	h.Unregister("room-1", "alice")

	assert.Error(t, h.Send("room-1", "alice", core.Frame("x")))
	require.NoError(t, h.Send("room-1", "", core.Frame("x"))) // empty broadcast is fine
	assert.Empty(t, alice.send)
}

func TestHubBackpressure(t *testing.T) {
	h := NewHub()
	alice := newWsConn(nil)
	h.Register("room-1", "alice", alice)

	// Fill the outbound queue; nothing drains it, so the send gives up
	// after its retries and reports the drop.
	for i := 0; i < cap(alice.send); i++ {
		require.NoError(t, alice.TrySend(core.Frame("fill")))
	}
	err := h.Send("room-1", "alice", core.Frame("overflow"))
	assert.ErrorIs(t, err, ErrBackpressure)

	// Broadcast swallows per-peer drops.
	assert.NoError(t, h.Send("room-1", "", core.Frame("overflow")))
}
