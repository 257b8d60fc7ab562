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

// Package tx drives packet streams from construction to transmission.
//
// Each stream runs in its own goroutine: it takes a buffer from the pool,
// lays out the stream's protocol chain, applies the per-packet mutator,
// waits for its pacing controller to release a slot and hands the frame to
// the transmitter.
package tx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"pktgen.dev/pktgen/pkg/log"
	"pktgen.dev/pktgen/pkg/pacing"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/header"
	"pktgen.dev/pktgen/pkg/packet/stack"
)

// Transmitter sends frames. It returns the number of leading frames in bufs
// that were sent; frames are not retained after it returns.
type Transmitter interface {
	Transmit(bufs []*buffer.Buffer) (int, error)
}

// Mutator changes packet seq of a stream after it is built. Checksums are
// recomputed afterwards.
type Mutator func(seq uint64, s *stack.Stack) error

// Stream describes one flow of identical or mutated packets.
type Stream struct {
	// Name identifies the stream in logs.
	Name string

	// Chain and Args describe every packet; Args are routed as for
	// stack.BuildArgs.
	Chain []header.Protocol
	Args  header.Args

	// Size is the frame size in bytes.
	Size int

	// Count is the number of packets to hand to the transmitter, whether
	// or not it accepts them. Zero sends until the controller is stopped or
	// the context is done.
	Count uint64

	// Controller paces the stream. Nil sends as fast as possible.
	Controller *pacing.Controller

	// Mutate is optional.
	Mutate Mutator
}

// Validate checks that s can be run.
func (s *Stream) Validate() error {
	if len(s.Chain) == 0 {
		return fmt.Errorf("stream %q: empty protocol chain", s.Name)
	}
	if s.Size <= 0 {
		return fmt.Errorf("stream %q: frame size %d: %w", s.Name, s.Size, packet.ErrValueOutOfRange)
	}
	if _, err := stack.Route(s.Chain, s.Args); err != nil {
		return fmt.Errorf("stream %q: %w", s.Name, err)
	}
	return nil
}

// Counters are the totals of one stream.
type Counters struct {
	// Released is the number of frames the transmitter accepted.
	Released uint64
	// Skipped is the number of slots the pacing pattern left empty.
	Skipped uint64
	// Errors is the number of frames the transmitter failed or refused.
	Errors uint64
	// Bytes is the number of bytes in released frames.
	Bytes uint64
}

// Sender runs streams against one transmitter.
type Sender struct {
	pool *buffer.Pool
	tx   Transmitter
	log  log.Logger
}

// NewSender returns a sender taking buffers from pool and sending them on
// tx. Transmit failures are logged at most once per second.
func NewSender(pool *buffer.Pool, tx Transmitter) *Sender {
	return &Sender{
		pool: pool,
		tx:   tx,
		log:  log.BasicRateLimitedLogger(time.Second),
	}
}

// SetLogger replaces the logger used for transmit failures.
func (s *Sender) SetLogger(l log.Logger) {
	s.log = l
}

// Run runs streams concurrently until each has sent its count or is
// stopped, or ctx is done. It returns the counters of every stream in order.
// The first build or mutate failure cancels the other streams and is
// returned.
func (s *Sender) Run(ctx context.Context, streams ...*Stream) ([]Counters, error) {
	for _, st := range streams {
		if err := st.Validate(); err != nil {
			return nil, err
		}
	}
	counters := make([]Counters, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range streams {
		i, st := i, st
		g.Go(func() error {
			return s.runStream(gctx, st, &counters[i])
		})
	}
	err := g.Wait()
	return counters, err
}

// ended reports whether err is a normal end of a stream.
func ended(err error) bool {
	return errors.Is(err, packet.ErrControllerStopped) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Sender) runStream(ctx context.Context, st *Stream, c *Counters) error {
	ctrl := st.Controller
	if ctrl == nil {
		ctrl = pacing.NewController(pacing.RealClock)
	}
	log.Infof("stream %q: sending %s frames of %d bytes", st.Name, stack.ChainString(st.Chain), st.Size)

	var (
		buf *buffer.Buffer
		seq uint64
	)
	defer func() {
		if buf != nil {
			s.pool.Release(buf)
		}
		log.Infof("stream %q: done, %d released, %d skipped, %d errors", st.Name, c.Released, c.Skipped, c.Errors)
	}()
	for st.Count == 0 || c.Released+c.Errors < st.Count {
		if buf == nil {
			var err error
			if buf, err = s.prepare(st, seq); err != nil {
				return err
			}
		}
		release, err := ctrl.Next(ctx)
		if err != nil {
			if ended(err) {
				return nil
			}
			return fmt.Errorf("stream %q: %w", st.Name, err)
		}
		if !release {
			c.Skipped++
			continue
		}
		n, err := s.tx.Transmit([]*buffer.Buffer{buf})
		switch {
		case err != nil:
			c.Errors++
			s.log.Warningf("stream %q: transmit of packet %d failed: %v", st.Name, seq, err)
		case n == 0:
			c.Errors++
			s.log.Warningf("stream %q: transmitter queue full, packet %d dropped", st.Name, seq)
		default:
			c.Released++
			c.Bytes += uint64(buf.Size())
		}
		s.pool.Release(buf)
		buf = nil
		seq++
	}
	return nil
}

// prepare allocates and builds packet seq of st.
func (s *Sender) prepare(st *Stream, seq uint64) (*buffer.Buffer, error) {
	buf, err := s.pool.Allocate(st.Size)
	if err != nil {
		return nil, err
	}
	if err := buf.SetSize(st.Size); err != nil {
		s.pool.Release(buf)
		return nil, err
	}
	sk, err := stack.BuildArgs(buf, st.Chain, st.Args.Clone())
	if err != nil {
		s.pool.Release(buf)
		return nil, fmt.Errorf("stream %q: %w", st.Name, err)
	}
	if st.Mutate != nil {
		if err := st.Mutate(seq, sk); err != nil {
			s.pool.Release(buf)
			return nil, fmt.Errorf("stream %q: mutating packet %d: %w", st.Name, seq, err)
		}
		if err := sk.UpdateChecksums(); err != nil {
			s.pool.Release(buf)
			return nil, fmt.Errorf("stream %q: %w", st.Name, err)
		}
	}
	return buf, nil
}
