package network

import (
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrShape is wrapped by every error caused by a node whose shape
	// does not match what a network was built for.
	ErrShape = errors.New("shape mismatch")

	// ErrConfig is wrapped by every error caused by an invalid
	// construction parameter.
	ErrConfig = errors.New("invalid configuration")
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetLogger sets the logger that network constructors report to. A nil
// logger restores the default, which only reports warnings and errors.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = newLogger()
	}
	logger = l
}

// Parameter names must be unique within a graph, so each network
// prefixes its nodes with a process-wide counter.
var lastID uint64

func nextID() uint64 {
	return atomic.AddUint64(&lastID, 1)
}
