// Copyright Safing ICS Technologies GmbH. Use of this source code is governed by the AGPL license that can be found in the LICENSE file.

package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool"
)

// concept
/*
- Logging function:
  - check if level is active
  - send data to backend via big buffered channel
  - if the buffer is full, drop the line and count it
- Backend:
  - wait until logs are waiting or shutdown is requested
  - write all waiting logs to the configured output
*/

// Severity describes a log level.
type Severity uint32

// Log Levels.
const (
	TraceLevel    Severity = 1
	DebugLevel    Severity = 2
	InfoLevel     Severity = 3
	WarningLevel  Severity = 4
	ErrorLevel    Severity = 5
	CriticalLevel Severity = 6
)

type logLine struct {
	msg       string
	level     Severity
	timestamp time.Time
	file      string
	line      int
}

var (
	logBuffer  chan *logLine
	logLevel   = uint32(InfoLevel)
	useColor   = abool.NewBool(false)
	output     io.Writer = os.Stdout
	outputLock sync.Mutex

	logsWaiting     = make(chan struct{}, 1)
	logsWaitingFlag = abool.NewBool(false)

	started       = abool.NewBool(false)
	shutdownFlag  = abool.NewBool(false)
	shutdownLock  sync.Mutex
	shutdownSig   chan struct{}
	writerStopped chan struct{}

	droppedLines       uint64
	warningLogLines    uint64
	errorLogLines      uint64
	criticalLogLines   uint64
	errAlreadyStarted  = errors.New("logging already started")
	errInvalidLogLevel = errors.New("invalid log level")
)

func init() {
	logBuffer = make(chan *logLine, 1024)
}

// SetLogLevel sets a new log level. Lines below this level are discarded.
func SetLogLevel(level Severity) {
	atomic.StoreUint32(&logLevel, uint32(level))
}

// GetLogLevel returns the current log level.
func GetLogLevel() Severity {
	return Severity(atomic.LoadUint32(&logLevel))
}

// ParseLevel returns the level severity of a log level name.
// It returns 0 for unknown names.
func ParseLevel(level string) Severity {
	switch strings.ToLower(level) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warning", "warn":
		return WarningLevel
	case "error":
		return ErrorLevel
	case "critical":
		return CriticalLevel
	}
	return 0
}

// SetLogLevelByName parses and sets the log level.
func SetLogLevelByName(name string) error {
	level := ParseLevel(name)
	if level == 0 {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, name)
	}
	SetLogLevel(level)
	return nil
}

// SetOutput sets the writer logs are written to. Defaults to stdout.
func SetOutput(w io.Writer, color bool) {
	outputLock.Lock()
	defer outputLock.Unlock()

	output = w
	useColor.SetTo(color)
}

// Start starts the background log writer.
func Start() error {
	if !started.SetToIf(false, true) {
		return errAlreadyStarted
	}

	shutdownLock.Lock()
	defer shutdownLock.Unlock()

	shutdownFlag.UnSet()
	shutdownSig = make(chan struct{})
	writerStopped = make(chan struct{})
	go writer(shutdownSig, writerStopped)
	return nil
}

// Shutdown writes all remaining logs and stops the background writer.
func Shutdown() {
	if !started.IsSet() || !shutdownFlag.SetToIf(false, true) {
		return
	}

	shutdownLock.Lock()
	defer shutdownLock.Unlock()

	close(shutdownSig)
	<-writerStopped
	started.UnSet()
}

// TotalWarningLogLines returns the total amount of warning log lines since start.
func TotalWarningLogLines() uint64 {
	return atomic.LoadUint64(&warningLogLines)
}

// TotalErrorLogLines returns the total amount of error log lines since start.
func TotalErrorLogLines() uint64 {
	return atomic.LoadUint64(&errorLogLines)
}

// TotalCriticalLogLines returns the total amount of critical log lines since start.
func TotalCriticalLogLines() uint64 {
	return atomic.LoadUint64(&criticalLogLines)
}

// TotalDroppedLogLines returns the amount of lines dropped because the buffer was full.
func TotalDroppedLogLines() uint64 {
	return atomic.LoadUint64(&droppedLines)
}
