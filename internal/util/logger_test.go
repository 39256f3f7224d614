package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("scanner")
	assert.Equal(t, "scanner", logger.prefix)
	assert.NotNil(t, logger.Logger)
}

func TestLogger_With(t *testing.T) {
	logger := NewLogger("scanner")
	child := logger.With("bootstrap")
	assert.Equal(t, "scanner.bootstrap", child.prefix)
}
