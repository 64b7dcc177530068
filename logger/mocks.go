package logger

import (
	"io"

	. "github.com/onsi/ginkgo/v2"
)

// MockLogger writes human readable output to the ginkgo writer so it only shows up for failing specs
func MockLogger() *Logger {
	if logger, err := New(DefaultLoggerConfig(Debug.String()), "", []io.Writer{GinkgoWriter}); err == nil {
		return logger
	}
	return nil
}
