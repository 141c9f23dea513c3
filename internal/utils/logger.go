package utils

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu             sync.RWMutex
	verboseLogging = false
	logger         = log.New(os.Stderr, "", log.LstdFlags)
)

// SetVerboseLogging sets the global verbose logging flag
func SetVerboseLogging(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	verboseLogging = verbose
}

// VerboseLogging reports whether info-level messages are shown
func VerboseLogging() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verboseLogging
}

// SetOutput redirects all log output. Stderr is the default so that progress
// rendering on stdout stays readable.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// LogInfo logs informational messages only if verbose logging is enabled
func LogInfo(format string, args ...interface{}) {
	if VerboseLogging() {
		logger.Printf("[INFO] "+format, args...)
	}
}

// LogError logs error messages (always shown)
func LogError(format string, args ...interface{}) {
	logger.Printf("[ERROR] "+format, args...)
}

// LogWarning logs warning messages (always shown)
func LogWarning(format string, args ...interface{}) {
	logger.Printf("[WARNING] "+format, args...)
}

// LogSuccess logs success messages (always shown)
func LogSuccess(format string, args ...interface{}) {
	logger.Printf("[SUCCESS] "+format, args...)
}

// Component prefixes every message with a bracketed component tag,
// e.g. Component("TRACKER").Warning(...) -> "[WARNING] [TRACKER] ...".
type Component string

func (c Component) Info(format string, args ...interface{}) {
	LogInfo(c.prefix()+format, args...)
}

func (c Component) Warning(format string, args ...interface{}) {
	LogWarning(c.prefix()+format, args...)
}

func (c Component) Error(format string, args ...interface{}) {
	LogError(c.prefix()+format, args...)
}

func (c Component) Success(format string, args ...interface{}) {
	LogSuccess(c.prefix()+format, args...)
}

func (c Component) prefix() string {
	return "[" + string(c) + "] "
}
