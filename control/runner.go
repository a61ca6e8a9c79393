// control/runner.go
// Author: momentics <momentics@gmail.com>
//
// Runs the configured requests on one executor: write the payload, read one
// frame back, record the outcome.

package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/executor"
	"github.com/momentics/hioload-sockets/frame"
	"github.com/momentics/hioload-sockets/reactor"
	"github.com/momentics/hioload-sockets/socket"
)

// Result is the outcome of one request.
type Result struct {
	Address  string
	Response []byte
	Partial  bool
	TimedOut bool
	Err      error
	Elapsed  time.Duration
}

// Report collects every result and the event counters of a run.
type Report struct {
	Results  []*Result
	Counters *EventCounters
}

// RunOption customizes Run.
type RunOption func(*runOptions)

type runOptions struct {
	backend api.BackendFactory
	dialer  socket.Dialer
}

// WithBackend overrides the backend named in the configuration.
func WithBackend(f api.BackendFactory) RunOption {
	return func(o *runOptions) { o.backend = f }
}

// WithSocketDialer sets the dialer used by every socket.
func WithSocketDialer(d socket.Dialer) RunOption {
	return func(o *runOptions) { o.dialer = d }
}

// Run executes every request of cfg and returns once all sockets finalized.
func Run(ctx context.Context, cfg *Config, log *zap.Logger, opts ...RunOption) (*Report, error) {
	if len(cfg.Requests) == 0 {
		return nil, api.NewError(api.ErrCodeConfiguration, "no requests configured")
	}
	ro := runOptions{}
	for _, op := range opts {
		op(&ro)
	}
	if ro.backend == nil {
		f, err := reactor.FactoryByName(cfg.Backend)
		if err != nil {
			return nil, err
		}
		ro.backend = f
	}

	exec := executor.New(
		executor.WithBackendFactory(ro.backend),
		executor.WithLogger(log),
		executor.WithDefaultConnectionTimeout(cfg.ConnectionTimeout),
		executor.WithDefaultIOTimeout(cfg.IOTimeout),
	)
	report := &Report{Counters: NewEventCounters()}
	if err := exec.AddHandler(report.Counters.Handlers(), nil); err != nil {
		return nil, err
	}

	start := time.Now()
	for _, req := range cfg.Requests {
		factory, err := req.Frame.PickerFactory()
		if err != nil {
			return nil, err
		}
		res := &Result{Address: req.Address}
		report.Results = append(report.Results, res)

		var sockOpts []socket.Option
		if ro.dialer != nil {
			sockOpts = append(sockOpts, socket.WithDialer(ro.dialer))
		}
		sock := socket.New(sockOpts...)

		var op executor.Operation = executor.NewReadOperation(factory)
		if req.Send != "" {
			op = executor.NewWriteOperation([]byte(req.Send))
		}
		if err := exec.AddSocket(sock, executor.Metadata{Address: req.Address, Operation: op}); err != nil {
			return nil, err
		}
		if err := exec.AddHandler(requestHandlers(res, factory, start), sock); err != nil {
			return nil, err
		}
	}

	log.Info("run started", zap.Int("requests", len(cfg.Requests)), zap.String("backend", cfg.Backend))
	err := exec.Execute(ctx)
	log.Info("run finished", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	return report, err
}

func requestHandlers(res *Result, factory frame.PickerFactory, start time.Time) map[api.EventKind]executor.HandlerFunc {
	return map[api.EventKind]executor.HandlerFunc{
		api.EventWrite: func(ev executor.Event) error {
			ev.(*executor.IoEvent).NextIsRead(factory)
			return nil
		},
		api.EventRead: func(ev executor.Event) error {
			io := ev.(*executor.IoEvent)
			res.Response = io.Frame().Data()
			io.NextOperationNotRequired()
			return nil
		},
		api.EventTimeout: func(executor.Event) error {
			res.TimedOut = true
			return nil
		},
		api.EventException: func(ev executor.Event) error {
			ex := ev.(*executor.ExceptionEvent)
			if res.Err == nil {
				res.Err = ex.Err()
			}
			if io, ok := ex.Original().(*executor.IoEvent); ok && io.Frame() != nil {
				res.Response = io.Frame().Data()
				res.Partial = frame.IsPartial(io.Frame())
			}
			return nil
		},
		api.EventFinalize: func(executor.Event) error {
			res.Elapsed = time.Since(start)
			return nil
		},
	}
}
