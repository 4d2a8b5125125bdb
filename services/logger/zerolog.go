package logsvc

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/user"
)

// ZerologLogger writes structured logs, as JSON or for the console.
type ZerologLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*ZerologLogger)(nil)

func NewZerologLogger(conf *core.Config) *ZerologLogger {
	var out io.Writer = os.Stderr
	if conf.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return NewZerologLoggerTo(out, conf.Logging.Level)
}

// NewZerologLoggerTo logs to w from level on.
func NewZerologLoggerTo(w io.Writer, level string) *ZerologLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &ZerologLogger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l ZerologLogger) log(ev *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			ev = ev.Err(a)
		case map[string]interface{}:
			ev = ev.Fields(a)
		case user.User:
			ev = ev.Dict("user", zerolog.Dict().Int("id", a.ID).Str("username", a.Username))
		default:
			ev = ev.Interface("extra", a)
		}
	}
	ev.Msg(msg)
}

func (l ZerologLogger) Debug(msg string, args ...interface{}) { l.log(l.zl.Debug(), msg, args) }
func (l ZerologLogger) Info(msg string, args ...interface{})  { l.log(l.zl.Info(), msg, args) }
func (l ZerologLogger) Warn(msg string, args ...interface{})  { l.log(l.zl.Warn(), msg, args) }
func (l ZerologLogger) Error(msg string, args ...interface{}) { l.log(l.zl.Error(), msg, args) }

func (l ZerologLogger) Fatal(msg string, args ...interface{}) {
	l.log(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
	os.Exit(1)
}
