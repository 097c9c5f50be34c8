// Package debug holds the zerolog hooks and console setup shared by the
// command line tools and the language server.
package debug

import (
	"fmt"
	"io"
	"path"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// TimeFormat has millisecond precision and no zone.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// skipFrames reads the event's unexported caller skip count so the caller
// hook honors CallerSkipFrame.
func skipFrames(e *zerolog.Event) int {
	field := reflect.ValueOf(e).Elem().FieldByName("skipFrame")
	if field.IsValid() {
		return int(field.Int())
	}
	return 0
}

type CustomTimeHook struct {
	WithColor bool
	Format    string
}

func (t CustomTimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	format := t.Format
	if format == "" {
		format = TimeFormat
	}
	now := time.Now().Format(format)
	if t.WithColor {
		now = color.New(color.Faint).Sprint(now)
	}
	e.Str("time", now)
}

type CustomCallerHook struct {
	WithColor bool
}

func (c CustomCallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(skipFrames(e) + 3)
	if !ok {
		return
	}

	pkg := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		pkg, _ = SplitFuncName(fn.Name())
	}

	e.Str("caller", FormatCaller(pkg, file, line, c.WithColor))
}

// SplitFuncName splits a runtime function name such as
// "github.com/x/y/pkg.(*T).Method" into its package and function parts.
func SplitFuncName(name string) (pkg, function string) {
	lastSlash := max(strings.LastIndexByte(name, '/'), 0)

	dot := strings.IndexByte(name[lastSlash:], '.')
	if dot < 0 {
		return name, ""
	}
	dot += lastSlash

	return name[:dot], name[dot+1:]
}

func FormatCaller(pkg, file string, line int, colorize bool) string {
	base := path.Base(file)
	if colorize {
		sep := color.New(color.Faint).Sprint(":")
		return fmt.Sprintf("%s%s%s%s%s", pkg, sep,
			color.New(color.Bold).Sprint(base), sep,
			color.New(color.FgHiRed, color.Bold).Sprintf("%d", line))
	}
	return fmt.Sprintf("%s:%s:%d", pkg, base, line)
}

// NewLogger builds the logger used by the commands. Human output is
// colored unless color is globally disabled.
func NewLogger(w io.Writer, level zerolog.Level, human bool) zerolog.Logger {
	withColor := human && !color.NoColor

	var out io.Writer = w
	if human {
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !withColor,
			TimeFormat: TimeFormat,
			PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.CallerFieldName, zerolog.MessageFieldName},
		}
	}

	return zerolog.New(out).Level(level).
		Hook(CustomTimeHook{}).
		Hook(CustomCallerHook{WithColor: withColor})
}
