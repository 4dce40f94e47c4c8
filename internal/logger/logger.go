package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

func init() {
	// Initialize with a default logger (info level, console output)
	// Can be reconfigured later with Init()
	Logger = zerolog.New(os.Stderr).
		With().
		Timestamp().
		Caller().
		Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = Logger
	redirectXGB()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger with the specified level and output
func Init(level string, pretty bool) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	// Configure output
	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	// Set as global logger
	log.Logger = Logger
	redirectXGB()
}

// redirectXGB routes the X protocol client's internal diagnostics into the
// structured logger at debug level.
func redirectXGB() {
	l := Logger.With().Str("component", "xgb").Logger().Level(zerolog.DebugLevel)
	xgb.Logger = stdlog.New(xgbWriter{l: l}, "", 0)
}

type xgbWriter struct {
	l zerolog.Logger
}

func (w xgbWriter) Write(p []byte) (int, error) {
	w.l.Debug().Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}
