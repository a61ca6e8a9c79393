// File: cmd/hioload-sockets/main.go
// Package main
// Sends payloads to one or more endpoints on a single executor and prints the
// framed replies.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/internal/xlog"
)

type flags struct {
	configPath string
	backend    string
	send       string
	frameKind  string
	delimiter  string
	length     int
	maxLength  int
	logLevel   string
	logFile    string
	stats      bool
}

func main() {
	var f flags
	command := &cobra.Command{
		Use:   "hioload-sockets [address...]",
		Short: "Send requests over non-blocking sockets and read framed replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &f, args)
		},
		SilenceUsage: true,
	}
	fs := command.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML run configuration")
	fs.StringVar(&f.backend, "backend", "", "readiness backend: auto, epoll or select")
	fs.StringVarP(&f.send, "send", "s", "", "payload written to every address given as argument")
	fs.StringVar(&f.frameKind, "frame", control.FrameNull, "reply framing: null, delimiter, fixed or length")
	fs.StringVar(&f.delimiter, "delimiter", `\n`, "delimiter for delimiter framing, Go escapes allowed")
	fs.IntVar(&f.length, "length", 0, "frame size for fixed framing")
	fs.IntVar(&f.maxLength, "max-length", 0, "maximum frame size, 0 for unlimited")
	fs.StringVar(&f.logLevel, "log-level", "", "log level")
	fs.StringVar(&f.logFile, "log-file", "", "rotated log file instead of stderr")
	fs.BoolVar(&f.stats, "stats", false, "print event counters")

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, f *flags, args []string) error {
	cfg, err := loadConfig(f, args)
	if err != nil {
		return err
	}

	log, err := xlog.Setup(xlog.Options{File: cfg.Log.File, Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer func() { _ = xlog.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := control.Run(ctx, cfg, log.Named("run"))
	if report != nil {
		printReport(cmd, report, f.stats)
	}
	if err != nil {
		log.Error("run failed", zap.Error(err))
	}
	return err
}

func loadConfig(f *flags, args []string) (*control.Config, error) {
	cfg := control.Default()
	if f.configPath != "" {
		loaded, err := control.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}

	if len(args) > 0 {
		delimiter, err := strconv.Unquote(`"` + f.delimiter + `"`)
		if err != nil {
			return nil, fmt.Errorf("delimiter: %w", err)
		}
		send, err := strconv.Unquote(`"` + f.send + `"`)
		if err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		fc := control.FrameConfig{Kind: f.frameKind, Delimiter: delimiter, Length: f.length, MaxLength: f.maxLength}
		for _, addr := range args {
			cfg.Requests = append(cfg.Requests, control.Request{Address: addr, Send: send, Frame: fc})
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printReport(cmd *cobra.Command, report *control.Report, stats bool) {
	out := cmd.OutOrStdout()
	for _, r := range report.Results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "%s\terror\t%v\n", r.Address, r.Err)
			if len(r.Response) > 0 {
				fmt.Fprintf(out, "%s\tpartial\t%q\n", r.Address, r.Response)
			}
		case r.TimedOut:
			fmt.Fprintf(out, "%s\ttimeout\t%s\n", r.Address, r.Elapsed)
		default:
			fmt.Fprintf(out, "%s\tok\t%s\t%q\n", r.Address, r.Elapsed, r.Response)
		}
	}
	if !stats {
		return
	}
	snap := report.Counters.GetSnapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s=%d\n", name, snap[name])
	}
}
