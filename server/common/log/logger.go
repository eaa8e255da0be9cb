package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

type level int

const (
	debugLevel level = iota
	infoLevel
	warnLevel
	errorLevel
	exceptionLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "EXCEPTION"}

var levelColors = [...]string{"\033[90m", "\033[32m", "\033[33m", "\033[31m", "\033[35m"}

const (
	colorReset = "\033[0m"

	envLogFilePath  = "LOG_FILE_PATH"
	envLogMaxSizeMB = "LOG_MAX_SIZE_MB"
	envLogFormat    = "LOG_FORMAT"
	envLogLevel     = "LOG_LEVEL"
)

func (lv level) String() string {
	if int(lv) < len(levelNames) {
		return levelNames[lv]
	}
	return "UNKNOWN"
}

func parseLevel(raw string) level {
	for i, name := range levelNames {
		if strings.EqualFold(raw, name) {
			return level(i)
		}
	}
	return debugLevel
}

type logger struct {
	mu      sync.Mutex
	console io.Writer
	sink    *rotatingFile
	json    bool
	min     level
}

var global = newLoggerFromEnv()

func newLoggerFromEnv() *logger {
	return &logger{
		console: os.Stdout,
		sink:    newRotatingFileFromEnv(),
		json:    strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json"),
		min:     parseLevel(strings.TrimSpace(os.Getenv(envLogLevel))),
	}
}

func Debugf(format string, args ...any)     { global.logf(debugLevel, format, args...) }
func Infof(format string, args ...any)      { global.logf(infoLevel, format, args...) }
func Warnf(format string, args ...any)      { global.logf(warnLevel, format, args...) }
func Errorf(format string, args ...any)     { global.logf(errorLevel, format, args...) }
func Exceptionf(format string, args ...any) { global.logf(exceptionLevel, format, args...) }

func (l *logger) logf(lv level, format string, args ...any) {
	if lv < l.min {
		return
	}
	line := l.render(time.Now(), lv, callerFuncName(3), fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, levelColors[lv]+line+colorReset)
	if l.sink != nil {
		if err := l.sink.write(line + "\n"); err != nil {
			fmt.Fprintf(os.Stderr, "logger file error: %v\n", err)
		}
	}
}

func (l *logger) render(ts time.Time, lv level, caller, message string) string {
	stamp := ts.Format(time.RFC3339Nano)
	if l.json {
		b, err := json.Marshal(struct {
			Timestamp string `json:"timestamp"`
			Level     string `json:"level"`
			Caller    string `json:"caller"`
			Message   string `json:"message"`
		}{stamp, lv.String(), caller, message})
		if err == nil {
			return string(b)
		}
	}
	return stamp + ":" + lv.String() + ":" + caller + ":" + message
}

func callerFuncName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
