package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// InitLogger configures the global logger to write JSON lines to stdout and,
// when file is set, to a size-rotated log file.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	writers := []io.Writer{os.Stdout}
	if file != "" {
		writers = append(writers, rotatingFile(file, maxSizeMB, maxBackups, maxAgeDays, compress))
	}
	setWriter(zerolog.MultiLevelWriter(writers...), level)
}

// InitQuietLogger is InitLogger without stdout, for processes whose stdout
// carries data. With no file, log lines are dropped.
func InitQuietLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	var w io.Writer = io.Discard
	if file != "" {
		w = rotatingFile(file, maxSizeMB, maxBackups, maxAgeDays, compress)
	}
	setWriter(w, level)
}

func rotatingFile(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) io.Writer {
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
}

func setWriter(w io.Writer, level string) {
	l := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))

	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetOutput redirects the global logger to w, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = logger.Output(w)
	mu.Unlock()
}

// SetLogLevel changes the level of the global logger. Unknown levels fall back to info.
func SetLogLevel(level string) {
	mu.Lock()
	logger = logger.Level(parseLevel(level))
	mu.Unlock()
}

// SetLoggerForTest replaces the global logger.
func SetLoggerForTest(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Info logs msg with alternating key/value pairs.
func Info(msg string, kv ...interface{}) {
	log(zerolog.InfoLevel, msg, kv)
}

// Warn logs msg with alternating key/value pairs.
func Warn(msg string, kv ...interface{}) {
	log(zerolog.WarnLevel, msg, kv)
}

// Error logs msg with alternating key/value pairs.
func Error(msg string, kv ...interface{}) {
	log(zerolog.ErrorLevel, msg, kv)
}

func log(level zerolog.Level, msg string, kv []interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, isErr := kv[i+1].(error); isErr {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
