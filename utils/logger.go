package utils

import (
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger logr.Logger = logr.Discard()
)

// NewLogger builds the process logger. Higher v means more logs,
// v=2 enables the debug chatter the components emit on V(2).
func NewLogger(v int) logr.Logger {
	zerologr.SetMaxV(v)
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return zerologr.New(&zl)
}

func SetLogger(l logr.Logger) {
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func Log() logr.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}
