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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OpenFile opens a log file named by pattern, creating its parent directory
// if needed. The pattern may contain %TIMESTAMP%, replaced by the current
// time, and %COMMAND%, replaced by command. An empty pattern opens nothing
// and returns a nil file.
func OpenFile(pattern, command string, flags int) (*os.File, error) {
	if len(pattern) == 0 {
		return nil, nil
	}

	// Replace variables in the log pattern.
	logPath := strings.Replace(pattern, "%TIMESTAMP%", time.Now().Format("20060102-150405.000000"), -1)
	logPath = strings.Replace(logPath, "%COMMAND%", command, -1)

	// Create parent directory if it doesn't exist.
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("error creating dir %q: %v", dir, err)
	}

	f, err := os.OpenFile(logPath, flags, 0664)
	if err != nil {
		return nil, fmt.Errorf("error opening file %q: %v", logPath, err)
	}
	return f, nil
}
