package testutil

import (
	"io"

	"github.com/keyward/keyward-server/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0)
}
