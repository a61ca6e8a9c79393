//go:build linux

package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-sockets/api"
)

func TestEpollReactor_EpochBumpOnClose(t *testing.T) {
	r, err := NewEpollReactor()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Epoch())

	a, _ := pair(t)
	require.NoError(t, r.Register(api.Registration{
		Key: "k", Fd: a, Interest: api.InterestRead, Callback: func(api.Readiness) {},
	}))
	require.NoError(t, r.Close())
	assert.Equal(t, uint64(1), r.Epoch())
	assert.Zero(t, r.Len())

	require.NoError(t, r.Close())
	assert.Equal(t, uint64(1), r.Epoch(), "close releases exactly once")
	assert.ErrorIs(t, r.Register(api.Registration{
		Key: "k", Fd: a, Interest: api.InterestRead, Callback: func(api.Readiness) {},
	}), api.ErrInvalidState)
}

func TestEpollReactor_SupersedeIssuesNewID(t *testing.T) {
	r, err := NewEpollReactor()
	require.NoError(t, err)
	defer r.Close()

	a, _ := pair(t)
	cb := func(api.Readiness) {}
	require.NoError(t, r.Register(api.Registration{Key: "k", Fd: a, Interest: api.InterestRead, Callback: cb}))
	first := r.regs["k"].id
	require.NoError(t, r.Register(api.Registration{Key: "k", Fd: a, Interest: api.InterestWrite, Callback: cb}))
	second := r.regs["k"].id

	assert.NotEqual(t, first, second)
	_, stale := r.byID[first]
	assert.False(t, stale)
	assert.Len(t, r.byID, 1)
}

func TestDefaultBackendIsEpoll(t *testing.T) {
	b, err := NewDefaultBackend()
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*EpollReactor)
	assert.True(t, ok)
}
