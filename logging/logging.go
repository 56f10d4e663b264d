// Package logging wraps the standard library logger with level-prefixed
// helpers. The teacher logs with bare log.Printf everywhere
// (db/db.go, router/logger.go, workers/events_processor.go); this keeps
// that texture instead of introducing a structured logging dependency
// no repo in the retrieval pack demonstrates (see DESIGN.md).
package logging

import (
	"log"
	"os"
)

var std = log.New(os.Stdout, "", log.LstdFlags)

func Infof(format string, args ...any) {
	std.Printf("INFO  "+format, args...)
}

func Warnf(format string, args ...any) {
	std.Printf("WARN  "+format, args...)
}

func Errorf(format string, args ...any) {
	std.Printf("ERROR "+format, args...)
}
