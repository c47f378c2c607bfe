package log

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

func log(level Severity, msg string) {
	// count severe lines, even if they are not written
	switch level {
	case WarningLevel:
		atomic.AddUint64(&warningLogLines, 1)
	case ErrorLevel:
		atomic.AddUint64(&errorLogLines, 1)
	case CriticalLevel:
		atomic.AddUint64(&criticalLogLines, 1)
	}

	// get file and line
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = ""
		line = 0
	} else if len(file) > 3 {
		file = file[:len(file)-3]
	} else {
		file = ""
	}

	l := &logLine{
		msg:       msg,
		level:     level,
		timestamp: time.Now(),
		file:      file,
		line:      line,
	}

	// send log to processing
	select {
	case logBuffer <- l:
	default:
		atomic.AddUint64(&droppedLines, 1)
		return
	}

	// wake up writer if necessary
	if logsWaitingFlag.SetToIf(false, true) {
		select {
		case logsWaiting <- struct{}{}:
		default:
		}
	}
}

func fastcheck(level Severity) bool {
	return uint32(level) >= atomic.LoadUint32(&logLevel)
}

// Trace is used to log tiny steps.
func Trace(msg string) {
	if fastcheck(TraceLevel) {
		log(TraceLevel, msg)
	}
}

// Tracef is used to log tiny steps.
func Tracef(format string, things ...interface{}) {
	if fastcheck(TraceLevel) {
		log(TraceLevel, fmt.Sprintf(format, things...))
	}
}

// Debug is used to log minor errors or unexpected events. These occurrences are usually not worth mentioning in itself, but they might hint at a bigger problem.
func Debug(msg string) {
	if fastcheck(DebugLevel) {
		log(DebugLevel, msg)
	}
}

// Debugf is used to log minor errors or unexpected events. These occurrences are usually not worth mentioning in itself, but they might hint at a bigger problem.
func Debugf(format string, things ...interface{}) {
	if fastcheck(DebugLevel) {
		log(DebugLevel, fmt.Sprintf(format, things...))
	}
}

// Info is used to log mildly significant events.
func Info(msg string) {
	if fastcheck(InfoLevel) {
		log(InfoLevel, msg)
	}
}

// Infof is used to log mildly significant events.
func Infof(format string, things ...interface{}) {
	if fastcheck(InfoLevel) {
		log(InfoLevel, fmt.Sprintf(format, things...))
	}
}

// Warning is used to log (potentially) bad events, but nothing broke (even a little) and there is no need to panic yet.
func Warning(msg string) {
	if fastcheck(WarningLevel) {
		log(WarningLevel, msg)
	}
}

// Warningf is used to log (potentially) bad events, but nothing broke (even a little) and there is no need to panic yet.
func Warningf(format string, things ...interface{}) {
	if fastcheck(WarningLevel) {
		log(WarningLevel, fmt.Sprintf(format, things...))
	}
}

// Error is used to log errors that break or impair functionality. The operation may have to be retried by the caller.
func Error(msg string) {
	if fastcheck(ErrorLevel) {
		log(ErrorLevel, msg)
	}
}

// Errorf is used to log errors that break or impair functionality. The operation may have to be retried by the caller.
func Errorf(format string, things ...interface{}) {
	if fastcheck(ErrorLevel) {
		log(ErrorLevel, fmt.Sprintf(format, things...))
	}
}

// Critical is used to log events that completely break the system. Operation cannot continue.
func Critical(msg string) {
	if fastcheck(CriticalLevel) {
		log(CriticalLevel, msg)
	}
}

// Criticalf is used to log events that completely break the system. Operation cannot continue.
func Criticalf(format string, things ...interface{}) {
	if fastcheck(CriticalLevel) {
		log(CriticalLevel, fmt.Sprintf(format, things...))
	}
}
