// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package rdserial

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// LogLevel orders log messages by severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // disables logging
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

func (l LogLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLevel accepts DEBUG, INFO, WARNING (or WARN), ERROR and NONE in any
// case.
func ParseLevel(s string) (LogLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "WARN" {
		return LevelWarning, nil
	}
	for level, name := range levelNames {
		if name == upper {
			return level, nil
		}
	}
	names := make([]string, 0, len(levelNames))
	for _, name := range levelNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return LevelInfo, fmt.Errorf("invalid log level: %s. Available levels: %v", s, names)
}

// levelPrefixes maps message prefixes to their level. Matching is case
// insensitive.
var levelPrefixes = []struct {
	prefix string
	level  LogLevel
}{
	{"[DEBUG]", LevelDebug},
	{"DEBUG:", LevelDebug},
	{"[INFO]", LevelInfo},
	{"INFO:", LevelInfo},
	{"[WARNING]", LevelWarning},
	{"WARNING:", LevelWarning},
	{"WARN:", LevelWarning},
	{"[ERROR]", LevelError},
	{"ERROR:", LevelError},
}

// SimpleLogger is an io.WriteCloser that infers a level from each message
// prefix, drops messages below its level and stamps the rest as
// "<RFC3339> [LEVEL] <prefix> message". Library types write "DEBUG: ..."
// lines into it and the command routes the log package through it.
type SimpleLogger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	clock      clock.Clock
	timeFormat string
	prefix     string
}

// NewSimpleLogger creates a logger writing to output, os.Stderr when nil.
func NewSimpleLogger(output io.Writer, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stderr
	}
	return &SimpleLogger{
		level:      level,
		output:     output,
		clock:      clock.New(),
		timeFormat: time.RFC3339,
		prefix:     prefix,
	}
}

// SetClock replaces the clock used for timestamps.
func (l *SimpleLogger) SetClock(c clock.Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = c
}

// SetLevel sets the minimum level written.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the minimum level written.
func (l *SimpleLogger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevelFromString sets the level from its name, e.g. "debug".
func (l *SimpleLogger) SetLevelFromString(s string) error {
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

// Enabled reports whether messages of level would be written.
func (l *SimpleLogger) Enabled(level LogLevel) bool {
	current := l.Level()
	return current != LevelNone && level >= current
}

// Write filters and formats one message. Filtered messages still report
// len(p) so callers never see a short write.
func (l *SimpleLogger) Write(p []byte) (int, error) {
	level, message := splitLevel(string(p))
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n", l.clock.Now().Format(l.timeFormat), level, l.prefix, message)
	if _, err := io.WriteString(l.output, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the output unless it is one of the standard streams.
func (l *SimpleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output == os.Stdout || l.output == os.Stderr {
		return nil
	}
	if closer, ok := l.output.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// splitLevel infers the level from a known prefix and strips it. Messages
// without one are INFO.
func splitLevel(message string) (LogLevel, string) {
	message = strings.TrimSpace(message)
	upper := strings.ToUpper(message)
	for _, lp := range levelPrefixes {
		if strings.HasPrefix(upper, lp.prefix) {
			return lp.level, strings.TrimSpace(message[len(lp.prefix):])
		}
	}
	return LevelInfo, message
}
