//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
)

func backendFactories() map[string]api.BackendFactory {
	f := map[string]api.BackendFactory{BackendSelect: NewSelectFactory()}
	if DefaultBackendName() == BackendEpoll {
		f[BackendEpoll] = NewEpollFactory()
	}
	return f
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b api.Backend)) {
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			b, err := factory()
			require.NoError(t, err)
			defer b.Close()
			fn(t, b)
		})
	}
}

func TestBackend_WaitEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		assert.ErrorIs(t, b.Wait(), api.ErrInvalidState)
	})
}

func TestBackend_RejectsMalformed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		cb := func(api.Readiness) {}
		assert.ErrorIs(t, b.Register(api.Registration{Fd: 1, Interest: api.InterestRead, Callback: cb}), api.ErrConfiguration)
		assert.ErrorIs(t, b.Register(api.Registration{Key: "k", Fd: 1, Interest: api.InterestRead}), api.ErrConfiguration)
		assert.ErrorIs(t, b.Register(api.Registration{Key: "k", Fd: -1, Callback: cb}), api.ErrConfiguration)
	})
}

func TestBackend_OneShotReadiness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		a, _ := pair(t)
		var got []api.Readiness
		require.NoError(t, b.Register(api.Registration{
			Key: "w", Fd: a, Interest: api.InterestWrite,
			Callback: func(r api.Readiness) { got = append(got, r) },
		}))
		require.NoError(t, b.Wait())
		require.Len(t, got, 1)
		assert.True(t, got[0].Has(api.ReadyWrite))
		assert.Zero(t, b.Len(), "registrations are one-shot")
		assert.ErrorIs(t, b.Wait(), api.ErrInvalidState)
	})
}

func TestBackend_Deadline(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		a, _ := pair(t)
		var got []api.Readiness
		start := time.Now()
		require.NoError(t, b.Register(api.Registration{
			Key: "r", Fd: a, Interest: api.InterestRead,
			Deadline: start.Add(20 * time.Millisecond),
			Callback: func(r api.Readiness) { got = append(got, r) },
		}))
		for len(got) == 0 {
			require.NoError(t, b.Wait())
		}
		assert.Equal(t, []api.Readiness{api.ReadyTimeout}, got)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestBackend_DeadlineOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		fired := 0
		require.NoError(t, b.Register(api.Registration{
			Key: "delay", Fd: -1, Deadline: time.Now().Add(5 * time.Millisecond),
			Callback: func(r api.Readiness) {
				assert.Equal(t, api.ReadyTimeout, r)
				fired++
			},
		}))
		for fired == 0 {
			require.NoError(t, b.Wait())
		}
		assert.Equal(t, 1, fired)
	})
}

func TestBackend_SupersedeByKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		a, _ := pair(t)
		var old, current int
		require.NoError(t, b.Register(api.Registration{
			Key: "s", Fd: a, Interest: api.InterestWrite,
			Callback: func(api.Readiness) { old++ },
		}))
		require.NoError(t, b.Register(api.Registration{
			Key: "s", Fd: a, Interest: api.InterestWrite,
			Callback: func(api.Readiness) { current++ },
		}))
		assert.Equal(t, 1, b.Len())
		require.NoError(t, b.Wait())
		assert.Zero(t, old)
		assert.Equal(t, 1, current)
	})
}

func TestBackend_CancelFromCallback(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		a, _ := pair(t)
		c, _ := pair(t)
		fired := map[string]int{}
		require.NoError(t, b.Register(api.Registration{
			Key: "first", Fd: a, Interest: api.InterestWrite,
			Callback: func(api.Readiness) {
				fired["first"]++
				_ = b.Unregister("second")
			},
		}))
		require.NoError(t, b.Register(api.Registration{
			Key: "second", Fd: c, Interest: api.InterestWrite,
			Callback: func(api.Readiness) { fired["second"]++ },
		}))
		require.NoError(t, b.Wait())
		assert.Equal(t, 1, fired["first"])
		assert.Zero(t, fired["second"])
	})
}

func TestBackend_CloseSuppressesCallbacks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		a, _ := pair(t)
		c, _ := pair(t)
		fired := 0
		require.NoError(t, b.Register(api.Registration{
			Key: "first", Fd: a, Interest: api.InterestWrite,
			Callback: func(api.Readiness) {
				fired++
				require.NoError(t, b.Close())
			},
		}))
		require.NoError(t, b.Register(api.Registration{
			Key: "second", Fd: c, Interest: api.InterestWrite,
			Callback: func(api.Readiness) { fired++ },
		}))
		require.NoError(t, b.Wait())
		assert.Equal(t, 1, fired, "callbacks during teardown are no-ops")
		assert.ErrorIs(t, b.Wait(), api.ErrInvalidState)
		assert.NoError(t, b.Close())
	})
}

func TestBackend_ReadAfterPeerWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b api.Backend) {
		a, peer := pair(t)
		var got api.Readiness
		require.NoError(t, b.Register(api.Registration{
			Key: "r", Fd: a, Interest: api.InterestRead,
			Deadline: time.Now().Add(time.Second),
			Callback: func(r api.Readiness) { got = r },
		}))
		_, err := unix.Write(peer, []byte("ping"))
		require.NoError(t, err)
		require.NoError(t, b.Wait())
		assert.True(t, got.Has(api.ReadyRead))
	})
}

func TestFactoryByName(t *testing.T) {
	for _, name := range []string{"", BackendAuto, BackendSelect} {
		f, err := FactoryByName(name)
		require.NoError(t, err, name)
		b, err := f()
		require.NoError(t, err)
		require.NoError(t, b.Close())
	}
	_, err := FactoryByName("kqueue")
	assert.ErrorIs(t, err, api.ErrConfiguration)
}
