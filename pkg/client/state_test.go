package client

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConnState_BeginConnectOnlyFromDisconnected(t *testing.T) {
	var cs connState

	assert.True(t, cs.beginConnect())
	assert.False(t, cs.beginConnect())

	cs.set(StateConnected)
	assert.False(t, cs.beginConnect())

	cs.set(StateDisconnected)
	assert.True(t, cs.beginConnect())
}

func TestConnState_BeginConnectIsExclusive(t *testing.T) {
	var cs connState
	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cs.beginConnect() {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, StateConnecting, cs.get())
}

func TestConnState_OnChangeOnlyOnTransition(t *testing.T) {
	var changes [][2]State
	cs := connState{onChange: func(from, to State) {
		changes = append(changes, [2]State{from, to})
	}}

	cs.set(StateConnected)
	cs.set(StateConnected)
	prev := cs.set(StateDisconnected)

	assert.Equal(t, StateConnected, prev)
	assert.Equal(t, [][2]State{
		{StateDisconnected, StateConnected},
		{StateConnected, StateDisconnected},
	}, changes)
}

func TestConnState_SetIf(t *testing.T) {
	var cs connState

	assert.False(t, cs.setIf(StateConnected, StateConnecting))
	assert.Equal(t, StateDisconnected, cs.get())

	require.True(t, cs.beginConnect())
	assert.True(t, cs.setIf(StateConnected, StateConnecting, StateConnected))
	assert.True(t, cs.setIf(StateConnected, StateConnecting, StateConnected))
	assert.Equal(t, StateConnected, cs.get())
}
