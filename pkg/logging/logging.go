// Package logging holds the debug switch and console helpers shared by the
// rag-chat binaries and packages.
package logging

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/fatih/color"
)

var debugMode atomic.Bool

var (
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
)

// SetDebug turns debug output on or off
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// DebugEnabled reports whether debug output is on
func DebugEnabled() bool {
	return debugMode.Load()
}

// Debugf logs only when debug mode is enabled
func Debugf(format string, args ...interface{}) {
	if debugMode.Load() {
		log.Printf(format, args...)
	}
}

// Warnf logs a highlighted warning
func Warnf(format string, args ...interface{}) {
	log.Print(warnColor.Sprintf("⚠️ "+format, args...))
}

// Fatal logs an error with the caller's file and line and exits
func Fatal(err error) {
	_, file, line, _ := runtime.Caller(1)
	log.Fatal(errorColor.Sprint(fmt.Sprintf("😡 %s:%d - %v", file, line, err)))
}
