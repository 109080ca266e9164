// Package rhlog hands out one named logrus logger per subsystem,
// following juicefs's pkg/utils/logger.go: a colorized, PID-stamped
// format shared by every logger returned from Get(name).
package rhlog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	loggers = make(map[string]*Logger)
)

// Logger is a named logrus.Logger with a fixed "time name[pid] <LEVEL>: msg" format.
type Logger struct {
	logrus.Logger
	name string
	tty  bool
}

// Format implements logrus.Formatter.
func (l *Logger) Format(e *logrus.Entry) ([]byte, error) {
	lvlStr := strings.ToUpper(e.Level.String())
	if l.tty {
		color := 34
		switch e.Level {
		case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
			color = 31
		case logrus.WarnLevel:
			color = 33
		}
		lvlStr = fmt.Sprintf("\033[1;%dm%s\033[0m", color, lvlStr)
	}
	const timeFormat = "2006-01-02 15:04:05.000"
	str := fmt.Sprintf("%v %s[%d] <%v>: %v", e.Time.Format(timeFormat), l.name, os.Getpid(), lvlStr, e.Message)
	if len(e.Data) != 0 {
		str += " " + fmt.Sprint(e.Data)
	}
	str += "\n"
	return []byte(str), nil
}

func newLogger(name string) *Logger {
	l := &Logger{Logger: *logrus.New(), name: name, tty: isatty.IsTerminal(os.Stderr.Fd())}
	l.Formatter = l
	return l
}

// Get returns the logger registered under name, creating it on first use.
func Get(name string) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[name]; ok {
		return l
	}
	l := newLogger(name)
	loggers[name] = l
	return l
}

// SetLevel sets the level of every logger created so far.
func SetLevel(lvl logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		l.Level = lvl
	}
}
