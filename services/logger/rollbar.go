package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/user"
)

// mockable
var rollbarLog = rollbar.Log

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// rollbarItem is one log call split the way Rollbar reads it: a single error carrying the stack,
// the custom data, and the person the item is about.
type rollbarItem struct {
	err    error
	custom map[string]interface{}
	person *user.User
}

// expected fmt: msg | error, map[string]interface{}, user.User, fmt.Stringer (grading.Key, ...)
// Maps are merged into the custom data; values of any other type are kept under "args".
func newRollbarItem(msg string, args []interface{}) rollbarItem {
	item := rollbarItem{custom: make(map[string]interface{})}
	var rest []interface{}
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			if item.err == nil {
				item.err = a
			} else {
				rest = append(rest, a.Error())
			}
		case map[string]interface{}:
			for k, v := range a {
				item.custom[k] = v
			}
		case user.User:
			if item.person == nil { // only set one User
				usr := a
				item.person = &usr
			}
		case fmt.Stringer:
			rest = append(rest, a.String())
		default:
			rest = append(rest, a)
		}
	}
	if len(rest) > 0 {
		item.custom["args"] = rest
	}
	if item.err != nil {
		// Rollbar titles error items with the error, the message would be lost otherwise
		item.custom["message"] = msg
	}
	return item
}

func (item rollbarItem) interfaces(msg string) []interface{} {
	if item.err != nil {
		return []interface{}{item.err, item.custom}
	}
	return []interface{}{msg, item.custom}
}

// line renders the item for the standard logger, custom data sorted by key.
func (item rollbarItem) line(level, msg string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(level))
	b.WriteString(" ")
	b.WriteString(msg)
	if item.err != nil {
		b.WriteString(": ")
		b.WriteString(item.err.Error())
	}
	keys := make([]string, 0, len(item.custom))
	for k := range item.custom {
		if k != "message" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, item.custom[k])
	}
	if item.person != nil {
		fmt.Fprintf(&b, " user=%s", item.person.Username)
	}
	return b.String()
}

func (l RollbarLogger) log(level, msg string, args []interface{}) {
	item := newRollbarItem(msg, args)
	if item.person != nil {
		rollbar.SetPerson(strconv.Itoa(item.person.ID), item.person.Username, item.person.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbarLog(level, item.interfaces(msg)...)
	l.std.Println(item.line(level, msg))
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
