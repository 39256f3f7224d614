// Package util holds ambient helpers shared across adapters and the CLI
// entrypoint that don't belong to any single spec'd component: a thin
// logging wrapper, the signer key material decryptor, and the Hardhat ABI
// artifact loader the contract-client adapter uses.
package util

import (
	"log"
	"os"
)

// Logger is a thin prefix wrapper around the standard logger, matching the
// teacher's bare log.Printf idiom rather than pulling in a logging
// framework. Hot-path code (trigger index, sensitivity, fixed-point math)
// never logs and never touches this type.
type Logger struct {
	prefix string
	*log.Logger
}

// NewLogger returns a Logger that prefixes every line with component.
func NewLogger(component string) *Logger {
	return &Logger{
		prefix: component,
		Logger: log.New(os.Stderr, component+": ", log.LstdFlags),
	}
}

// With returns a child logger with an additional prefix segment.
func (l *Logger) With(sub string) *Logger {
	return NewLogger(l.prefix + "." + sub)
}
