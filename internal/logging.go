package internal

// Internal logging utility.

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Logger struct {
	logLevel LogLevel
	zl       zerolog.Logger
	closer   io.Closer
}

type LogLevel int

const (
	// error levels that should almost always be printed
	LevelFatal LogLevel = iota // error that must stop the program
	LevelError                 // error that does not need to stop execution

	// debugging levels, okay to disable
	LevelWarn  // something may be wrong, but not necessarily an error
	LevelInfo  // nothing wrong, informational only
	LevelDebug // per-request detail

	// Library code by default only shows warnings and above.
	LogLevelDefault = LevelWarn

	// min, max levels for setting print level
	LevelMin = LevelFatal
	LevelMax = LevelDebug
)

var (
	levelToZerolog = []zerolog.Level{
		zerolog.FatalLevel,
		zerolog.ErrorLevel,
		zerolog.WarnLevel,
		zerolog.InfoLevel,
		zerolog.DebugLevel,
	}
	levelNames = []string{"fatal", "error", "warn", "info", "debug"}

	// ErrLogLevel is returned when a level name is not recognized.
	ErrLogLevel = errors.New("unknown log level")
)

// LogConfig selects where log output goes. An empty Logfile logs to stderr.
type LogConfig struct {
	Level   string `toml:"level"`
	Logfile string `toml:"logfile"`
	MaxSize int    `toml:"max_log_size"` // megabytes
	MaxAge  int    `toml:"max_log_age"`  // days
	Pretty  bool   `toml:"pretty"`
}

// ParseLogLevel maps a level name such as "info" to a LogLevel.
func ParseLogLevel(name string) (LogLevel, error) {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return LogLevel(i), nil
		}
	}
	return 0, errors.Wrapf(ErrLogLevel, "%q", name)
}

func (l LogLevel) String() string {
	if l < LevelMin || l > LevelMax {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// NewLogger returns a console logger on stderr at the default level.
func NewLogger() *Logger {
	return NewLoggerTo(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// NewLoggerTo returns a logger writing JSON lines (or whatever w formats) to w.
func NewLoggerTo(w io.Writer) *Logger {
	zl := zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return &Logger{logLevel: LogLevelDefault, zl: zl}
}

// NewLogger builds the logger described by c. With a Logfile, output goes to a
// rotating file.
func (c *LogConfig) NewLogger() (*Logger, error) {
	var l *Logger
	switch {
	case c == nil:
		return NewLogger(), nil
	case c.Logfile != "":
		lj := &lumberjack.Logger{
			Filename: c.Logfile,
			MaxSize:  c.MaxSize,
			MaxAge:   c.MaxAge,
		}
		l = NewLoggerTo(lj)
		l.closer = lj
	case c.Pretty:
		l = NewLogger()
	default:
		l = NewLoggerTo(os.Stderr)
	}
	if c.Level != "" {
		level, err := ParseLogLevel(c.Level)
		if err != nil {
			return nil, err
		}
		l.SetLogLevel(level)
	}
	return l, nil
}

func (l *Logger) LogLevel() LogLevel {
	return l.logLevel
}

// SetLogLevel returns the old level
func (l *Logger) SetLogLevel(level LogLevel) LogLevel {
	if level < LevelMin || level > LevelMax {
		panic("trying to set invalid log level")
	}
	old := l.logLevel
	l.logLevel = level
	return old
}

// With returns a child logger that adds key=val to every message.
func (l *Logger) With(key string, val any) *Logger {
	return &Logger{
		logLevel: l.logLevel,
		zl:       l.zl.With().Interface(key, val).Logger(),
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) output(level LogLevel, s string) {
	if l == nil || level > l.logLevel {
		return
	}
	l.zl.WithLevel(levelToZerolog[level]).Msg(strings.TrimSuffix(s, "\n"))
}

func (l *Logger) Debug(v ...any)                 { l.output(LevelDebug, fmt.Sprintln(v...)) }
func (l *Logger) Debugf(format string, v ...any) { l.output(LevelDebug, fmt.Sprintf(format, v...)) }

func (l *Logger) Info(v ...any)                 { l.output(LevelInfo, fmt.Sprintln(v...)) }
func (l *Logger) Infof(format string, v ...any) { l.output(LevelInfo, fmt.Sprintf(format, v...)) }

func (l *Logger) Warn(v ...any)                 { l.output(LevelWarn, fmt.Sprintln(v...)) }
func (l *Logger) Warnf(format string, v ...any) { l.output(LevelWarn, fmt.Sprintf(format, v...)) }

func (l *Logger) Error(v ...any)                 { l.output(LevelError, fmt.Sprintln(v...)) }
func (l *Logger) Errorf(format string, v ...any) { l.output(LevelError, fmt.Sprintf(format, v...)) }

func (l *Logger) Fatal(v ...any) {
	l.output(LevelError, string(debug.Stack()))
	l.output(LevelFatal, fmt.Sprintln(v...))
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, v ...any) {
	l.output(LevelError, string(debug.Stack()))
	l.output(LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}
