// Package nlog is the runtime's leveled logger. Every package in this
// module logs through here rather than fmt/log directly, the way the
// teacher's every package logs through cmn/nlog.
//
// Unlike AIStore's nlog, this one does not buffer to rotating log
// files: log-file rotation, flushing, and on-disk formatting are left to
// an external collaborator. What is kept is the call surface every other
// package depends on: leveled Info/Warning/Error, a verbosity gate, and
// Flush() as a no-op sync point callers can still invoke unconditionally
// on shutdown.
package nlog

import (
	"fmt"
	"os"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var (
	verbosity int
	title     string
)

func SetTitle(s string) { title = s }

// SetVerbosity sets the minimum level passed to V()-gated call sites.
func SetVerbosity(v int) { verbosity = v }

func V(level int) bool { return verbosity >= level }

func InfoDepth(_ int, args ...any)     { log(sevInfo, "", args...) }
func Infoln(args ...any)               { log(sevInfo, "", args...) }
func Infof(format string, args ...any) { log(sevInfo, format, args...) }

func Warningln(args ...any)               { log(sevWarn, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }

func ErrorDepth(_ int, args ...any)     { log(sevErr, "", args...) }
func Errorln(args ...any)               { log(sevErr, "", args...) }
func Errorf(format string, args ...any) { log(sevErr, format, args...) }

// Flush is a no-op sync point retained so shutdown sequences that mirror
// AIStore's (nlog.Flush(true) right before os.Exit) keep compiling
// unchanged; there is no buffered file state to sync here.
func Flush(_ ...bool) {}

func log(sev severity, format string, args ...any) {
	w := os.Stdout
	if sev == sevErr {
		w = os.Stderr
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
	}
	if title != "" {
		fmt.Fprintf(w, "%c %s %s: %s", sevChar(sev), ts, title, msg)
	} else {
		fmt.Fprintf(w, "%c %s %s", sevChar(sev), ts, msg)
	}
}

func sevChar(sev severity) byte {
	switch sev {
	case sevWarn:
		return 'W'
	case sevErr:
		return 'E'
	default:
		return 'I'
	}
}
