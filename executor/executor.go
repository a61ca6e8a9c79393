// File: executor/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RequestExecutor drives many sockets through connect, read/write and
// disconnect on one goroutine, dispatching lifecycle events to handlers.

package executor

import (
	"context"
	"errors"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/frame"
	"github.com/momentics/hioload-sockets/socket"
)

type entryState int

const (
	stateRegistered entryState = iota
	stateConnecting
	stateConnected
	stateFinalized
)

type entry struct {
	sock  *socket.Socket
	meta  Metadata
	state entryState

	initialized bool
	connected   bool
	armed       bool
	stop        bool
	chunk       *socket.ChunkResponse
}

type tickKey struct{}

// RequestExecutor owns socket metadata and runs the event loop. Its methods
// must be called from the goroutine running Execute, handlers included, or
// while Execute is not running.
type RequestExecutor struct {
	cfg config
	log *zap.Logger

	entries map[*socket.Socket]*entry
	order   []*entry

	global    handlerTable
	perSocket map[*socket.Socket]handlerTable

	running       atomic.Bool
	backend       api.Backend
	pending       *queue.Queue
	initQueue     *queue.Queue
	pendingAdd    map[*socket.Socket]int
	pendingRemove map[*socket.Socket]int
}

// New creates an executor.
func New(opts ...Option) *RequestExecutor {
	cfg := defaultConfig()
	for _, op := range opts {
		op(&cfg)
	}
	cfg.finish()
	return &RequestExecutor{
		cfg:           cfg,
		log:           cfg.logger,
		entries:       make(map[*socket.Socket]*entry),
		global:        make(handlerTable),
		perSocket:     make(map[*socket.Socket]handlerTable),
		pending:       queue.New(),
		initQueue:     queue.New(),
		pendingAdd:    make(map[*socket.Socket]int),
		pendingRemove: make(map[*socket.Socket]int),
	}
}

// IsRunning reports whether Execute is in progress.
func (e *RequestExecutor) IsRunning() bool {
	return e.running.Load()
}

// AddSocket registers sock with meta. Adding a socket that is still active is
// a configuration error unless its removal is already queued.
func (e *RequestExecutor) AddSocket(sock *socket.Socket, meta Metadata) error {
	if sock == nil {
		return api.NewError(api.ErrCodeConfiguration, "nil socket")
	}
	if meta.Operation == nil {
		return api.NewError(api.ErrCodeConfiguration, "operation is not set")
	}
	if e.isActive(sock) && e.pendingRemove[sock] == 0 {
		return api.NewError(api.ErrCodeConfiguration, "socket is already added")
	}
	if e.pendingAdd[sock] > 0 {
		return api.NewError(api.ErrCodeConfiguration, "socket is already added")
	}
	if e.running.Load() {
		e.enqueue(mutation{kind: mutationAdd, sock: sock, meta: meta})
		return nil
	}
	e.register(sock, meta)
	return nil
}

// RemoveSocket deregisters sock. While Execute runs the socket is closed and
// finalized at the next flush point; removing a finalized socket is a no-op.
// Handlers bound to sock are dropped with it unless it is re-added in the same
// dispatch.
func (e *RequestExecutor) RemoveSocket(sock *socket.Socket) error {
	if e.running.Load() {
		if e.isActive(sock) || e.pendingAdd[sock] > 0 {
			e.enqueue(mutation{kind: mutationRemove, sock: sock})
		}
		return nil
	}
	if en, ok := e.entries[sock]; ok {
		e.forget(en)
	}
	return nil
}

// HasSocket reports whether sock is registered and not finalized.
func (e *RequestExecutor) HasSocket(sock *socket.Socket) bool {
	return e.isActive(sock)
}

// Len returns the number of registered sockets.
func (e *RequestExecutor) Len() int {
	return len(e.entries)
}

// SocketMetadata returns a copy of the metadata of sock.
func (e *RequestExecutor) SocketMetadata(sock *socket.Socket) (Metadata, error) {
	en, ok := e.entries[sock]
	if !ok {
		return Metadata{}, api.NewError(api.ErrCodeConfiguration, "socket is not added")
	}
	return en.meta, nil
}

// SetSocketMetadata sets one metadata key of sock.
func (e *RequestExecutor) SetSocketMetadata(sock *socket.Socket, key MetadataKey, value any) error {
	if !e.isActive(sock) && e.pendingAdd[sock] == 0 {
		return api.NewError(api.ErrCodeConfiguration, "socket is not added")
	}
	if err := validateMetadataKey(key, value); err != nil {
		return err
	}
	if e.running.Load() {
		e.enqueue(mutation{kind: mutationSet, sock: sock, key: key, value: value})
		return nil
	}
	return e.entries[sock].meta.set(key, value)
}

// SetSocketMetadataMap sets several keys; nothing is applied if one is invalid.
func (e *RequestExecutor) SetSocketMetadataMap(sock *socket.Socket, values map[MetadataKey]any) error {
	for k, v := range values {
		if err := validateMetadataKey(k, v); err != nil {
			return err
		}
	}
	for k, v := range values {
		if err := e.SetSocketMetadata(sock, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *RequestExecutor) isActive(sock *socket.Socket) bool {
	en, ok := e.entries[sock]
	return ok && en.state != stateFinalized
}

func (e *RequestExecutor) register(sock *socket.Socket, meta Metadata) {
	meta.RequestComplete = false
	meta.LastActivity = time.Time{}
	en := &entry{sock: sock, meta: meta, state: stateRegistered}
	e.entries[sock] = en
	e.order = append(e.order, en)
	e.initQueue.Add(en)
}

// forget drops en and, unless the socket is about to be added again, its
// handlers.
func (e *RequestExecutor) forget(en *entry) {
	en.state = stateFinalized
	if e.entries[en.sock] == en {
		delete(e.entries, en.sock)
	}
	if e.pendingAdd[en.sock] == 0 {
		e.RemoveHandlers(en.sock)
	}
	for i, o := range e.order {
		if o == en {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Execute runs until every socket is finalized. It fails with a configuration
// error when there is nothing to do and with a selector error when the backend
// breaks. Cancelling ctx finalizes every socket and returns ctx.Err().
func (e *RequestExecutor) Execute(ctx context.Context) (err error) {
	if !e.running.CompareAndSwap(false, true) {
		return api.NewError(api.ErrCodeInvalidState, "executor is already running")
	}
	defer e.running.Store(false)

	if len(e.entries) == 0 {
		return api.NewError(api.ErrCodeConfiguration, "there are no sockets to process")
	}
	backend, err := e.cfg.backendFactory()
	if err != nil {
		return api.WrapError(api.ErrCodeSelector, "failed to create backend", err)
	}
	e.backend = backend
	defer func() {
		err = multierr.Append(err, backend.Close())
		e.backend = nil
	}()
	e.log.Debug("execute started", zap.Int("sockets", len(e.entries)))

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.finalizeAll()
			return ctxErr
		}

		e.flush()
		e.initialize()
		e.armAll()
		if len(e.entries) == 0 {
			e.log.Debug("execute finished")
			return nil
		}
		if backend.Len() == 0 {
			continue
		}
		if ctx.Done() != nil {
			_ = backend.Register(api.Registration{
				Key:      tickKey{},
				Fd:       -1,
				Deadline: time.Now().Add(cancelPollInterval),
				Callback: func(api.Readiness) {},
			})
		}

		if werr := backend.Wait(); werr != nil {
			e.log.Error("backend wait failed", zap.Error(werr))
			e.finalizeAll()
			if errors.Is(werr, api.ErrSelector) {
				return werr
			}
			return api.WrapError(api.ErrCodeSelector, "failed to wait for readiness", werr)
		}
		_ = backend.Unregister(tickKey{})
	}
}

// initialize fires Initialize for every newly registered socket.
func (e *RequestExecutor) initialize() {
	for e.initQueue.Length() > 0 {
		en := e.initQueue.Remove().(*entry)
		if en.state != stateRegistered || en.initialized || e.entries[en.sock] != en {
			continue
		}
		en.initialized = true
		e.dispatch(e.baseEvent(api.EventInitialize, en))
		e.flush()
		if en.stop {
			e.shutdown(en)
		}
	}
}

func (e *RequestExecutor) armAll() {
	for _, en := range append([]*entry(nil), e.order...) {
		e.arm(en)
	}
}

func (e *RequestExecutor) connectionTimeout(en *entry) time.Duration {
	if en.meta.ConnectionTimeout > 0 {
		return en.meta.ConnectionTimeout
	}
	return e.cfg.connectionTimeout
}

func (e *RequestExecutor) ioTimeout(en *entry) time.Duration {
	if en.meta.IOTimeout > 0 {
		return en.meta.IOTimeout
	}
	return e.cfg.ioTimeout
}

// arm opens sockets that still need it and registers every unarmed socket.
func (e *RequestExecutor) arm(en *entry) {
	if en.armed || en.state == stateFinalized || !en.initialized {
		return
	}

	if en.state == stateRegistered {
		if en.meta.Address == "" {
			e.fail(en, e.baseEvent(api.EventInitialize, en),
				api.NewError(api.ErrCodeConfiguration, "socket address is not set"))
			return
		}
		if err := en.sock.Open(en.meta.Address); err != nil {
			e.fail(en, e.baseEvent(api.EventInitialize, en), err)
			return
		}
		en.state = stateConnecting
		en.meta.LastActivity = time.Now()
		e.log.Debug("socket connecting", zap.String("address", en.meta.Address), zap.Int("fd", en.sock.Fd()))
	}

	// Bytes already pulled past the last frame never raise kernel readiness.
	for en.state == stateConnected && en.sock.Buffered() > 0 &&
		en.meta.Operation.Type() == api.OperationRead {
		e.process(en)
	}
	if en.state == stateFinalized {
		return
	}

	reg := api.Registration{
		Key: en,
		Fd:  en.sock.Fd(),
		Callback: func(r api.Readiness) {
			e.onReady(en, r)
		},
	}
	switch en.state {
	case stateConnecting:
		reg.Interest = api.InterestWrite
		reg.Deadline = en.meta.LastActivity.Add(e.connectionTimeout(en))
	case stateConnected:
		reg.Interest = en.meta.Operation.Type().Interest()
		reg.Deadline = en.meta.LastActivity.Add(e.ioTimeout(en))
	}
	if reg.Interest == api.InterestNone {
		reg.Fd = -1
	}
	if err := e.backend.Register(reg); err != nil {
		e.fail(en, e.baseEvent(api.EventInitialize, en), err)
		return
	}
	en.armed = true
}

func (e *RequestExecutor) disarm(en *entry) {
	if !en.armed {
		return
	}
	en.armed = false
	if e.backend != nil {
		_ = e.backend.Unregister(en)
	}
}

func (e *RequestExecutor) onReady(en *entry, r api.Readiness) {
	en.armed = false
	if en.state == stateFinalized {
		return
	}
	if r.Has(api.ReadyTimeout) {
		e.onTimeout(en)
		return
	}

	if en.state == stateConnecting {
		if err := en.sock.VerifyConnection(); err != nil {
			e.fail(en, e.baseEvent(api.EventConnected, en), err)
			return
		}
		en.state = stateConnected
		en.connected = true
		en.meta.LastActivity = time.Now()
		e.dispatch(e.baseEvent(api.EventConnected, en))
		e.flush()
		if e.stopRequested(en) {
			return
		}
		// Write readiness is already known; reads wait for the next arm.
		if en.meta.Operation.Type() != api.OperationWrite {
			return
		}
	}
	e.process(en)
}

func (e *RequestExecutor) onTimeout(en *entry) {
	e.log.Debug("socket timed out", zap.String("address", en.meta.Address), zap.Bool("connected", en.connected))
	e.dispatch(e.baseEvent(api.EventTimeout, en))
	e.shutdown(en)
}

// process performs the desired operation of a connected socket.
func (e *RequestExecutor) process(en *entry) {
	switch op := en.meta.Operation.(type) {
	case *WriteOperation:
		if _, err := en.sock.Write(op.Data); err != nil {
			e.fail(en, e.ioEvent(api.EventWrite, en, nil, op.Data), err)
			return
		}
		en.meta.RequestComplete = true
		en.meta.LastActivity = time.Now()
		ev := e.ioEvent(api.EventWrite, en, nil, op.Data)
		e.dispatch(ev)
		e.afterIO(en, ev)

	case *ReadOperation:
		resp, err := en.sock.Read(op.pickerFor(en.chunk), en.chunk)
		if err != nil {
			en.chunk = nil
			ev := e.ioEvent(api.EventRead, en, nil, nil)
			var fe *socket.FrameError
			if errors.As(err, &fe) {
				ev.frame = fe.Frame
			}
			e.fail(en, ev, err)
			return
		}
		en.meta.LastActivity = time.Now()
		if !resp.IsComplete() {
			en.chunk = resp.(*socket.ChunkResponse)
			return
		}
		en.chunk = nil
		en.meta.RequestComplete = true
		ev := e.ioEvent(api.EventRead, en, resp.Frame(), resp.Data())
		e.dispatch(ev)
		e.afterIO(en, ev)

	default:
		// Delayed sockets never become ready, only time out.
	}
}

// afterIO applies the directive chosen by the handlers of ev.
func (e *RequestExecutor) afterIO(en *entry, ev *IoEvent) {
	e.flush()
	if e.stopRequested(en) {
		return
	}
	switch ev.next {
	case directiveRead:
		en.meta.Operation = NewReadOperation(ev.nextPicker)
	case directiveWrite:
		en.meta.Operation = NewWriteOperation(ev.nextData)
	case directiveSame:
	default:
		e.shutdown(en)
		return
	}
	en.meta.RequestComplete = false
}

func (e *RequestExecutor) stopRequested(en *entry) bool {
	if en.state == stateFinalized {
		return true
	}
	if en.stop {
		e.shutdown(en)
		return true
	}
	return false
}

// fail reports err as an Exception for original and finalizes the socket.
func (e *RequestExecutor) fail(en *entry, original Event, err error) {
	e.log.Debug("socket failed", zap.Stringer("event", original.Kind()), zap.Error(err))
	e.dispatch(e.exceptionEvent(original, err))
	e.shutdown(en)
}

// shutdown closes the socket, fires Disconnected when it had connected, then
// Finalize, and forgets it.
func (e *RequestExecutor) shutdown(en *entry) {
	if en.state == stateFinalized {
		return
	}
	e.disarm(en)
	en.state = stateFinalized
	en.chunk = nil
	if err := en.sock.Close(); err != nil {
		e.log.Debug("socket close failed", zap.Error(err))
	}
	if en.connected {
		en.connected = false
		e.dispatch(e.baseEvent(api.EventDisconnected, en))
	}
	e.dispatch(e.baseEvent(api.EventFinalize, en))
	e.forget(en)
}

func (e *RequestExecutor) finalizeAll() {
	for _, en := range append([]*entry(nil), e.order...) {
		e.shutdown(en)
	}
	for e.initQueue.Length() > 0 {
		e.initQueue.Remove()
	}
	for e.pending.Length() > 0 {
		e.pending.Remove()
	}
	for sock := range e.pendingAdd {
		if _, ok := e.entries[sock]; !ok {
			e.RemoveHandlers(sock)
		}
	}
	e.pendingAdd = make(map[*socket.Socket]int)
	e.pendingRemove = make(map[*socket.Socket]int)
}

func (e *RequestExecutor) baseEvent(kind api.EventKind, en *entry) *BaseEvent {
	return &BaseEvent{kind: kind, exec: e, en: en}
}

func (e *RequestExecutor) ioEvent(kind api.EventKind, en *entry, f frame.Frame, data []byte) *IoEvent {
	return &IoEvent{BaseEvent: BaseEvent{kind: kind, exec: e, en: en}, frame: f, data: data}
}

func (e *RequestExecutor) exceptionEvent(original Event, err error) *ExceptionEvent {
	var en *entry
	switch ev := original.(type) {
	case *BaseEvent:
		en = ev.en
	case *IoEvent:
		en = ev.en
	case *ExceptionEvent:
		en = ev.en
	}
	return &ExceptionEvent{
		BaseEvent: BaseEvent{kind: api.EventException, exec: e, en: en},
		err:       err,
		original:  original,
	}
}
