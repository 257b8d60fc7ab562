// Copyright 2018 Google LLC
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

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"\n*** Dropped 2 log messages ***\n",
		"line 2\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warningf("warning %d", 3)
	l.SetLevel(Warning)
	l.Infof("info %d", 4)
	l.SetLevel(Debug)
	l.Debugf("debug %d", 5)
	if diff := cmp.Diff([]string{"info 2", "warning 3", "debug 5"}, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: Debug},
		{in: "INFO", want: Info},
		{in: "", want: Info},
		{in: "warn", want: Warning},
		{in: "warning", want: Warning},
		{in: "verbose", wantErr: true},
	} {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %t", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Debug, Emitter: GoogleEmitter{&Writer{Next: tw}}}
	l.Warningf("sent %d packets", 7)
	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
	re := regexp.MustCompile(`^W\d{4} \d{2}:\d{2}:\d{2}\.\d{6} +\d+ log_test\.go:\d+\] sent 7 packets\n$`)
	if !re.MatchString(tw.lines[0]) {
		t.Errorf("line %q does not match %v", tw.lines[0], re)
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	l := BasicLogger{Level: Debug, Emitter: JSONEmitter{&Writer{Next: &buf}}}
	l.Debugf("rate %v", 1.5)
	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", buf.String(), err)
	}
	if got.Msg != "rate 1.5" || got.Level != Debug || !strings.HasPrefix(got.Caller, "log_test.go:") {
		t.Errorf("got %+v", got)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Errorf("output %q not newline terminated", buf.String())
	}
}

func TestLogrusEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogrusEmitter(&buf, &logrus.JSONFormatter{})
	l := BasicLogger{Level: Info, Emitter: e}
	l.Debugf("hidden")
	l.Infof("chain %s", "ethernet/ipv4/udp")
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", buf.String(), err)
	}
	if got["msg"] != "chain ethernet/ipv4/udp" || got["level"] != "info" {
		t.Errorf("got %v", got)
	}
	if c, _ := got["caller"].(string); !strings.HasPrefix(c, "log_test.go:") {
		t.Errorf("caller = %q, want log_test.go:N", c)
	}
}

func TestMultiEmitter(t *testing.T) {
	a, b := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: a}, &Writer{Next: b}}
	l := BasicLogger{Level: Info, Emitter: &m}
	l.Infof("x")
	if len(a.lines) != 1 || len(b.lines) != 1 {
		t.Errorf("got %q and %q, want one line each", a.lines, b.lines)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 5; i++ {
		l.Warningf("send failed: %d", i)
	}
	if diff := cmp.Diff([]string{"send failed: 0"}, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if !l.IsLogging(Info) || l.IsLogging(Debug) {
		t.Errorf("IsLogging does not follow the wrapped logger")
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "sub", "pktgen.%COMMAND%.log"), "run", os.O_CREATE|os.O_WRONLY)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if got, want := f.Name(), filepath.Join(dir, "sub", "pktgen.run.log"); got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if f, err := OpenFile("", "run", os.O_CREATE); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") = %v, %v; want nil, nil", f, err)
	}
}
