package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/logging"
)

func TestHeartbeatEvictsStaleAndPingsLive(t *testing.T) {
	f := newFixture(t)
	f.room(sharedRoom())
	a, trA := f.connect("A", "alice")
	b, trB := f.connect("B", "bob")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	trB.reset()

	f.clock.Advance(45 * time.Second)
	f.registry.Touch(b)
	f.clock.Advance(20 * time.Second)

	hb := NewHeartbeat(f.registry, f.router, 30*time.Second, 60*time.Second, logging.Discard())
	hb.sweep(context.Background())

	closed, code, reason := trA.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, CloseTimeout, code)
	assert.Equal(t, "timeout", reason)
	assert.Equal(t, 0, trA.pingCount())

	assert.Equal(t, 1, trB.pingCount())
	assert.Equal(t, 1, f.registry.Len())
	frames := trB.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "alice left the room", frames[0].Text)
	assert.False(t, f.rooms.Contains("r1", a))
}

func TestHeartbeatPingFailureDoesNotAbortSweep(t *testing.T) {
	f := newFixture(t)
	_, trA := f.connect("A", "alice")
	_, trB := f.connect("B", "bob")
	trA.failPings = true
	trB.failPings = true
	_, trC := f.connect("C", "carol")

	hb := NewHeartbeat(f.registry, f.router, time.Second, time.Minute, logging.Discard())
	hb.sweep(context.Background())

	assert.Equal(t, 1, trC.pingCount())
	assert.Equal(t, 3, f.registry.Len())
}

func TestHeartbeatShutdownClosesEveryone(t *testing.T) {
	f := newFixture(t)
	f.room(sharedRoom())
	a, trA := f.connect("A", "alice")
	_, trB := f.connect("B", "bob")
	f.join(t, a, "r1")

	hb := NewHeartbeat(f.registry, f.router, time.Hour, time.Hour, logging.Discard())
	hb.Start(context.Background())
	hb.Shutdown(context.Background())

	for _, tr := range []*fakeTransport{trA, trB} {
		closed, code, reason := tr.closeInfo()
		assert.True(t, closed)
		assert.Equal(t, CloseServerShutdown, code)
		assert.Equal(t, "server shutdown", reason)
	}
	assert.Equal(t, 0, f.registry.Len())
	assert.Empty(t, f.rooms.ActiveRoomIDs())

	// second call is harmless
	hb.Shutdown(context.Background())
}

func TestHeartbeatLoopEvicts(t *testing.T) {
	f := newFixture(t)
	_, trA := f.connect("A", "alice")
	f.clock.Advance(2 * time.Minute)

	hb := NewHeartbeat(f.registry, f.router, 10*time.Millisecond, time.Minute, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hb.Start(ctx)

	assert.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second, 10*time.Millisecond)
	_, code, _ := trA.closeInfo()
	assert.Equal(t, CloseTimeout, code)
	hb.Shutdown(context.Background())
}

func TestHeartbeatDefaults(t *testing.T) {
	hb := NewHeartbeat(NewRegistry(), nil, 0, 0, logging.Discard())
	assert.Equal(t, DefaultHeartbeatInterval, hb.interval)
	assert.Equal(t, DefaultClientTimeout, hb.timeout)
}
