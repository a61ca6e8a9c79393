//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package executor_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/executor"
	"github.com/momentics/hioload-sockets/frame"
	"github.com/momentics/hioload-sockets/reactor"
	"github.com/momentics/hioload-sockets/socket"
)

func realBackends() map[string]api.BackendFactory {
	f := map[string]api.BackendFactory{reactor.BackendSelect: reactor.NewSelectFactory()}
	if reactor.DefaultBackendName() == reactor.BackendEpoll {
		f[reactor.BackendEpoll] = reactor.NewEpollFactory()
	}
	return f
}

func forEachRealBackend(t *testing.T, fn func(t *testing.T, opts ...executor.Option)) {
	for name, factory := range realBackends() {
		t.Run(name, func(t *testing.T) {
			fn(t, executor.WithBackendFactory(factory), executor.WithLogger(zaptest.NewLogger(t)))
		})
	}
}

// pairSocket returns a socket whose dialer hands out one end of a socketpair;
// the other end is served by peer on its own goroutine.
func pairSocket(t *testing.T, peer func(fd int)) *socket.Socket {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unix.Close(fds[1])
		peer(fds[1])
	}()
	t.Cleanup(func() { <-done })
	return socket.New(socket.WithDialer(socket.DialerFunc(func(string) (socket.Stream, error) {
		return socket.NewFDStream(fds[0]), nil
	})))
}

func pingPongPeer(fd int) {
	buf := make([]byte, 4)
	got := 0
	for got < len(buf) {
		n, err := unix.Read(fd, buf[got:])
		if err != nil || n == 0 {
			return
		}
		got += n
	}
	if string(buf) == "PING" {
		_, _ = unix.Write(fd, []byte("PONG"))
	}
}

func TestExecute_PingPong(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		ex := executor.New(opts...)
		rec := &recorder{}
		require.NoError(t, ex.AddHandler(rec.handlers(), nil))

		sock := pairSocket(t, pingPongPeer)
		require.NoError(t, ex.AddSocket(sock, executor.Metadata{
			Address:   "pair",
			Operation: executor.NewWriteOperation([]byte("PING")),
		}))
		var reply []byte
		require.NoError(t, ex.AddHandler(map[api.EventKind]executor.HandlerFunc{
			api.EventWrite: func(ev executor.Event) error {
				ev.(*executor.IoEvent).NextIsRead(nil)
				return nil
			},
			api.EventRead: func(ev executor.Event) error {
				reply = ev.(*executor.IoEvent).Frame().Data()
				return nil
			},
		}, sock))

		require.NoError(t, ex.Execute(context.Background()))
		assert.Equal(t, []api.EventKind{
			api.EventInitialize, api.EventConnected, api.EventWrite,
			api.EventRead, api.EventDisconnected, api.EventFinalize,
		}, rec.kinds)
		assert.Equal(t, []byte("PONG"), reply)
	})
}

func TestExecute_ManySockets(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		ex := executor.New(opts...)
		const n = 16
		replies := 0
		finalized := 0
		require.NoError(t, ex.AddHandler(map[api.EventKind]executor.HandlerFunc{
			api.EventWrite: func(ev executor.Event) error {
				ev.(*executor.IoEvent).NextIsRead(frame.FixedLengthFactory(4))
				return nil
			},
			api.EventRead: func(ev executor.Event) error {
				if string(ev.(*executor.IoEvent).Frame().Data()) == "PONG" {
					replies++
				}
				return nil
			},
			api.EventFinalize: func(executor.Event) error {
				finalized++
				return nil
			},
		}, nil))
		for i := 0; i < n; i++ {
			require.NoError(t, ex.AddSocket(pairSocket(t, pingPongPeer), executor.Metadata{
				Address:   "pair",
				Operation: executor.NewWriteOperation([]byte("PING")),
			}))
		}

		require.NoError(t, ex.Execute(context.Background()))
		assert.Equal(t, n, replies)
		assert.Equal(t, n, finalized)
	})
}

func TestExecute_ConnectTimeout(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		var fds [2]int
		require.NoError(t, unix.Pipe(fds[:]))
		defer unix.Close(fds[1])

		// A pipe read end never reports write readiness, so the connect
		// never completes.
		sock := socket.New(socket.WithDialer(socket.DialerFunc(func(string) (socket.Stream, error) {
			return socket.NewFDStream(fds[0]), nil
		})))
		ex := executor.New(append(opts, executor.WithDefaultConnectionTimeout(30*time.Millisecond))...)
		rec := &recorder{}
		require.NoError(t, ex.AddHandler(rec.handlers(), nil))
		require.NoError(t, ex.AddSocket(sock, executor.Metadata{
			Address:   "pipe",
			Operation: executor.NewWriteOperation([]byte("x")),
		}))

		start := time.Now()
		require.NoError(t, ex.Execute(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, []api.EventKind{api.EventInitialize, api.EventTimeout, api.EventFinalize}, rec.kinds)
	})
}

func TestExecute_IOTimeout(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		silent := make(chan struct{})
		sock := pairSocket(t, func(int) { <-silent })
		defer close(silent)

		ex := executor.New(opts...)
		rec := &recorder{}
		require.NoError(t, ex.AddHandler(rec.handlers(), nil))
		require.NoError(t, ex.AddSocket(sock, executor.Metadata{
			Address:   "pair",
			Operation: executor.NewReadOperation(frame.FixedLengthFactory(4)),
			IOTimeout: 40 * time.Millisecond,
		}))

		require.NoError(t, ex.Execute(context.Background()))
		assert.Equal(t, []api.EventKind{
			api.EventInitialize, api.EventConnected, api.EventTimeout,
			api.EventDisconnected, api.EventFinalize,
		}, rec.kinds)
	})
}

func TestExecute_ContextCancel(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		silent := make(chan struct{})
		sock := pairSocket(t, func(int) { <-silent })
		defer close(silent)

		ex := executor.New(opts...)
		rec := &recorder{}
		require.NoError(t, ex.AddHandler(rec.handlers(), nil))
		require.NoError(t, ex.AddSocket(sock, executor.Metadata{
			Address:   "pair",
			Operation: executor.DelayedOperation{},
			IOTimeout: time.Hour,
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := ex.Execute(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, []api.EventKind{
			api.EventInitialize, api.EventConnected, api.EventDisconnected, api.EventFinalize,
		}, rec.kinds)
		assert.False(t, ex.IsRunning())
	})
}

func TestExecute_DelayedWokenByMetadata(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		waiter := pairSocket(t, pingPongPeer)
		trigger := pairSocket(t, func(fd int) {
			buf := make([]byte, 1)
			_, _ = unix.Read(fd, buf)
		})

		ex := executor.New(opts...)
		require.NoError(t, ex.AddSocket(waiter, executor.Metadata{
			Address:   "pair",
			Operation: executor.DelayedOperation{},
			IOTimeout: time.Hour,
		}))
		require.NoError(t, ex.AddSocket(trigger, executor.Metadata{
			Address:   "pair",
			Operation: executor.NewWriteOperation([]byte("!")),
		}))
		var reply []byte
		require.NoError(t, ex.AddHandler(map[api.EventKind]executor.HandlerFunc{
			api.EventWrite: func(ev executor.Event) error {
				io := ev.(*executor.IoEvent)
				if ev.Socket() == trigger {
					return ev.Executor().SetSocketMetadata(waiter, executor.MetaOperation,
						executor.NewWriteOperation([]byte("PING")))
				}
				io.NextIsRead(frame.FixedLengthFactory(4))
				return nil
			},
			api.EventRead: func(ev executor.Event) error {
				reply = ev.(*executor.IoEvent).Frame().Data()
				return nil
			},
		}, nil))

		require.NoError(t, ex.Execute(context.Background()))
		assert.Equal(t, []byte("PONG"), reply)
	})
}

func TestExecute_LoopbackTCP(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
			buf := make([]byte, 4)
			if _, err := c.Read(buf); err == nil {
				_, _ = c.Write(frame.EncodeLengthPrefix([]byte("hello")))
			}
		}()

		ex := executor.New(opts...)
		sock := socket.New()
		require.NoError(t, ex.AddSocket(sock, executor.Metadata{
			Address:   "tcp://" + ln.Addr().String(),
			Operation: executor.NewWriteOperation([]byte("PING")),
		}))
		var body []byte
		require.NoError(t, ex.AddHandler(map[api.EventKind]executor.HandlerFunc{
			api.EventWrite: func(ev executor.Event) error {
				ev.(*executor.IoEvent).NextIsRead(frame.LengthPrefixFactory(1024))
				return nil
			},
			api.EventRead: func(ev executor.Event) error {
				body = ev.(*executor.IoEvent).Frame().Data()
				return nil
			},
		}, sock))

		require.NoError(t, ex.Execute(context.Background()))
		assert.Equal(t, []byte("hello"), body)
	})
}

func TestExecute_FramesFromOneSegment(t *testing.T) {
	forEachRealBackend(t, func(t *testing.T, opts ...executor.Option) {
		sock := pairSocket(t, func(fd int) {
			if _, err := unix.Write(fd, []byte("A\nB\n")); err != nil {
				return
			}
			buf := make([]byte, 16)
			for {
				if n, err := unix.Read(fd, buf); err != nil || n == 0 {
					return
				}
			}
		})

		ex := executor.New(opts...)
		rec := &recorder{}
		require.NoError(t, ex.AddHandler(rec.handlers(), nil))
		require.NoError(t, ex.AddSocket(sock, executor.Metadata{
			Address:   "pair",
			Operation: executor.NewReadOperation(frame.DelimiterFactory([]byte("\n"), 0)),
			IOTimeout: 300 * time.Millisecond,
		}))
		var frames []string
		require.NoError(t, ex.AddHandler(map[api.EventKind]executor.HandlerFunc{
			api.EventRead: func(ev executor.Event) error {
				io := ev.(*executor.IoEvent)
				frames = append(frames, string(io.Frame().Data()))
				if len(frames) == 1 {
					io.NextIsSame()
				}
				return nil
			},
		}, sock))

		require.NoError(t, ex.Execute(context.Background()))
		assert.Equal(t, []string{"A", "B"}, frames)
		assert.Equal(t, []api.EventKind{
			api.EventInitialize, api.EventConnected, api.EventRead, api.EventRead,
			api.EventDisconnected, api.EventFinalize,
		}, rec.kinds)
	})
}
