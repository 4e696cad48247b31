package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResponseBoxPushTakeDisarmsSlot(t *testing.T) {
	box := NewResponseBox()
	slot := box.CreateSlotHandle()

	box.Push(slot.id, &Response{Payload: []byte("first")})
	resp, ok := box.Take(slot.id)
	require.True(t, ok)
	require.Equal(t, []byte("first"), resp.Payload)

	// A second push to a disarmed slot is discarded, per the one-shot
	// contract Rearm exists to lift.
	box.Push(slot.id, &Response{Payload: []byte("second")})
	_, ok = box.Take(slot.id)
	require.False(t, ok)
}

func TestResponseBoxRearmAcceptsTerminalResponse(t *testing.T) {
	box := NewResponseBox()
	slot := box.CreateSlotHandle()

	box.Push(slot.id, &Response{Channel: "data-1"})
	head, ok := box.Take(slot.id)
	require.True(t, ok)
	require.Equal(t, "data-1", head.Channel)

	box.Rearm(slot.id)

	box.Push(slot.id, &Response{Payload: []byte("terminal")})
	terminal, ok := box.Take(slot.id)
	require.True(t, ok)
	require.Equal(t, []byte("terminal"), terminal.Payload)
}

func TestResponseBoxRearmDrainsStaleReadiness(t *testing.T) {
	box := NewResponseBox()
	slot := box.CreateSlotHandle()

	box.Push(slot.id, &Response{Channel: "data-1"})
	_, ok := box.Take(slot.id)
	require.True(t, ok)

	ready, err := box.readyChan(slot.id)
	require.NoError(t, err)

	box.Rearm(slot.id)

	select {
	case <-ready:
		t.Fatal("readiness token from the body-head push leaked past Rearm")
	default:
	}
}

func TestResponseBoxPushToUnknownSlotIsDiscarded(t *testing.T) {
	box := NewResponseBox()
	box.Push(999, &Response{Payload: []byte("nobody home")})
	_, ok := box.Take(999)
	require.False(t, ok)
}

func TestResponseBoxReleaseDropsBookkeeping(t *testing.T) {
	box := NewResponseBox()
	slot := box.CreateSlotHandle()
	box.Release(slot.id)
	require.False(t, box.Exists(slot.id))
	_, err := box.readyChan(slot.id)
	require.Error(t, err)
}
