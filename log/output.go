// Copyright Safing ICS Technologies GmbH. Use of this source code is governed by the AGPL license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"time"
)

func writeLine(line *logLine) {
	outputLock.Lock()
	defer outputLock.Unlock()

	fmt.Fprintln(output, formatLine(line, useColor.IsSet()))
}

func writer(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	for {
		// wait until logs need to be processed
		select {
		case <-logsWaiting:
			logsWaitingFlag.UnSet()
		case <-stop:
			writeAll()
			writeLine(&logLine{
				msg:       "===== LOGGING STOPPED =====",
				level:     WarningLevel,
				timestamp: time.Now(),
			})
			return
		}

		writeAll()
	}
}

// writeAll writes all the logs currently in the buffer.
func writeAll() {
	for {
		select {
		case line := <-logBuffer:
			writeLine(line)
		default:
			return
		}
	}
}
