// Package logging sets up the process-wide stdlib logger the way
// tdns.SetupLogging/SetupCliLogging do: file/line info gated on
// verbose/debug, rotation via gopkg.in/natefinch/lumberjack.v2 when a
// log file is configured. CLI invocations with no configured log file
// log to stderr with no rotation, matching tdns-cli's behavior when no
// daemon log file is in play.
package logging

import (
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logger for a ceremony run. logfile may
// be empty, in which case output stays on stderr.
func Setup(logfile string, debug, verbose bool) {
	if debug || verbose {
		log.SetFlags(log.Lshortfile | log.Ltime)
	} else {
		log.SetFlags(log.Ltime)
	}

	if logfile == "" {
		return
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
	})
}

// Secret wraps a value that must never reach a log line or a debug
// dump: the HSM PIN, raw private key bytes, raw signature octets.
// String/GoString redact it even when a %v/%+v verb reaches in under a
// struct field that forgot to check.
type Secret string

func (Secret) String() string   { return "REDACTED" }
func (Secret) GoString() string { return "REDACTED" }
