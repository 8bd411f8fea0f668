package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerCreateLookupRemove(t *testing.T) {
	m := NewManager()
	id, err := NewID()
	require.NoError(t, err)

	_, ok := m.Lookup(id)
	require.False(t, ok)

	s, err := m.Create(id, RoleNATFWResponder)
	require.NoError(t, err)
	require.Equal(t, StateIdle, s.State())

	_, err = m.Create(id, RoleNATFWResponder)
	require.Error(t, err)

	got, ok := m.Lookup(id)
	require.True(t, ok)
	require.Equal(t, s, got)
	require.Equal(t, 1, m.Len())

	m.Remove(id)
	require.Equal(t, 0, m.Len())
}

func TestSessionTimerSlotsIndependent(t *testing.T) {
	s := New(ID{}, RoleNATFWInitiator)
	s.Lock()
	defer s.Unlock()

	s.SetTimerHandle(ResponseTimer, 1)
	s.SetTimerHandle(RefreshTimer, 2)
	_, ok := s.TimerHandle(StateTimer)
	require.False(t, ok)

	h, ok := s.TimerHandle(ResponseTimer)
	require.True(t, ok)
	require.Equal(t, TimerHandle(1), h)

	require.ElementsMatch(t, []TimerHandle{1, 2}, s.LiveTimerHandles())

	s.SetTimerHandle(ResponseTimer, 3)
	h, ok = s.TimerHandle(ResponseTimer)
	require.True(t, ok)
	require.Equal(t, TimerHandle(3), h, "arming a slot replaces the previous handle")

	s.ClearTimerHandle(RefreshTimer)
	require.ElementsMatch(t, []TimerHandle{3}, s.LiveTimerHandles())
}

func TestPrecedesWraparound(t *testing.T) {
	require.True(t, Precedes(10, 11))
	require.False(t, Precedes(11, 10))
	require.False(t, Precedes(10, 10))
	// Wrap-around: a value just below 2^32 precedes a small value after it wraps.
	require.True(t, Precedes(1<<32-1, 0))
	require.False(t, Precedes(0, 1<<32-1))
}
