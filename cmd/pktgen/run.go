// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"pktgen.dev/pktgen/pkg/config"
	"pktgen.dev/pktgen/pkg/link/pcapfile"
	"pktgen.dev/pktgen/pkg/link/rawsocket"
	"pktgen.dev/pktgen/pkg/log"
	"pktgen.dev/pktgen/pkg/pacing"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/tx"
)

// discard is a transmitter that accepts and drops every frame.
type discard struct{}

// Transmit implements tx.Transmitter.Transmit.
func (discard) Transmit(bufs []*buffer.Buffer) (int, error) {
	return len(bufs), nil
}

// transmitter is a tx.Transmitter that must be closed.
type transmitter interface {
	tx.Transmitter
	io.Closer
}

type nopCloser struct {
	tx.Transmitter
}

func (nopCloser) Close() error { return nil }

// openOutput returns the transmitter selected by o.
func openOutput(o config.Output) (transmitter, error) {
	switch o.Kind {
	case config.OutputPcap:
		return pcapfile.Create(o.Path, o.SnapLen)
	case config.OutputRaw:
		return rawsocket.Open(o.Interface)
	case config.OutputDiscard:
		return nopCloser{discard{}}, nil
	}
	return nil, fmt.Errorf("unknown output kind %q", o.Kind)
}

// Run implements subcommands.Command for the "run" command.
type Run struct {
	configPath string
	duration   time.Duration

	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "send the packet streams described by a config file"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run -config <file.toml|file.yaml> [-duration d]

Sends every stream of the config file concurrently until each has sent its
count, the duration elapses or the process is interrupted, then prints the
per-stream counters.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to a TOML or YAML config file.")
	f.DurationVar(&r.duration, "duration", 0, "stop after this long; zero runs until done.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if r.configPath == "" || f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf, err := config.Load(r.configPath)
	if err != nil {
		return Errorf("loading config: %v", err)
	}
	if conf.LogLevel != "" && !*debug {
		lvl, _ := log.ParseLevel(conf.LogLevel)
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()
	if r.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.duration)
		defer cancel()
	}

	out := r.stdout
	if out == nil {
		out = os.Stdout
	}
	if err := run(ctx, conf, pacing.RealClock, out); err != nil {
		return Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// run sends the streams of conf and prints their counters to out.
func run(ctx context.Context, conf *config.Config, clock pacing.Clock, out io.Writer) error {
	streams := make([]*tx.Stream, 0, len(conf.Streams))
	for i := range conf.Streams {
		st, err := conf.Streams[i].TxStream(clock)
		if err != nil {
			return fmt.Errorf("stream %q: %w", conf.Streams[i].Name, err)
		}
		streams = append(streams, st)
	}
	t, err := openOutput(conf.Output)
	if err != nil {
		return err
	}
	log.Infof("sending %d streams to %s output", len(streams), conf.Output.Kind)

	start := time.Now()
	counters, runErr := tx.NewSender(buffer.NewPool(), t).Run(ctx, streams...)
	elapsed := time.Since(start)
	if err := t.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if counters != nil {
		printCounters(out, streams, counters, elapsed)
	}
	return runErr
}

func printCounters(out io.Writer, streams []*tx.Stream, counters []tx.Counters, elapsed time.Duration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STREAM\tRELEASED\tSKIPPED\tERRORS\tBYTES\n")
	for i, c := range counters {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", streams[i].Name, c.Released, c.Skipped, c.Errors, c.Bytes)
	}
	w.Flush()
	fmt.Fprintf(out, "elapsed %v\n", elapsed.Round(time.Millisecond))
}
