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

// Binary pktgen builds packets and sends them at a controlled rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"pktgen.dev/pktgen/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging.")
	logFormat = flag.String("log-format", "text", "log format: text (default), json, or logrus.")
	logFile   = flag.String("log", "", "file path where logs are written. %TIMESTAMP% and %COMMAND% are replaced.")
)

// version is set at link time.
var version = "dev"

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Version), "")
	subcommands.Register(new(Run), "")
	subcommands.Register(new(Build), "")

	flag.Parse()

	if *debug {
		log.SetLevel(log.Debug)
	}
	var w io.Writer = os.Stderr
	if *logFile != "" {
		f, err := log.OpenFile(*logFile, flag.CommandLine.Arg(0), os.O_WRONLY|os.O_CREATE|os.O_APPEND)
		if err != nil {
			Fatalf("%v", err)
		}
		w = f
	}
	e, err := newEmitter(*logFormat, w)
	if err != nil {
		Fatalf("%v", err)
	}
	log.SetTarget(e)
	log.Debugf("pktgen %s, %s, %s/%s, %d CPUs, PID %d", version, runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), os.Getpid())
	log.Debugf("Args: %v", os.Args)

	os.Exit(int(subcommands.Execute(context.Background())))
}

func newEmitter(format string, w io.Writer) (log.Emitter, error) {
	switch format {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: w}}, nil
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: w}}, nil
	case "logrus":
		return log.NewLogrusEmitter(w, &logrus.TextFormatter{FullTimestamp: true}), nil
	}
	return nil, fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'logrus'", format)
}

// Fatalf logs to stderr and the log, then exits with failure.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf("FATAL ERROR: "+format, args...)
	os.Exit(128)
}

// Errorf logs to stderr and the log, and returns subcommands.ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf("FATAL ERROR: "+format, args...)
	return subcommands.ExitFailure
}
