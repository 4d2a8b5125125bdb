// Package logsvc implements core.Logger.
package logsvc

import (
	"log"
	"os"

	"github.com/trezcool/examoffice/core"
)

// New reports to Rollbar once a token is configured, and logs structured lines otherwise.
func New(conf *core.Config) core.Logger {
	if conf.RollbarToken != "" && !conf.TestMode {
		logger := NewRollbarLogger(log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
		logger.Enable(true)
		return logger
	}
	return NewZerologLogger(conf)
}
