// Package sysutil holds process-level helpers shared by the config loader
// and the command line.
package sysutil

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// ParseBool reads the usual spellings of a boolean setting, ignoring case
// and surrounding space: 1/true/yes/y/on and 0/false/no/n/off. ok is false
// for anything else.
func ParseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SignalContext is canceled on SIGINT or SIGTERM. Call stop to release the
// signal handlers.
func SignalContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
