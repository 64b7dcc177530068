package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// This is here for translation, so that the rest of the SDK doesn't need to care or know
// about zerolog
type DebugLevel = zerolog.Level

const (
	Debug DebugLevel = zerolog.DebugLevel
	Info  DebugLevel = zerolog.InfoLevel
	Warn  DebugLevel = zerolog.WarnLevel
	Error DebugLevel = zerolog.ErrorLevel
	Trace DebugLevel = zerolog.TraceLevel
)

type Logger struct {
	logger zerolog.Logger

	// zerolog.Logger cannot == zerolog.Logger{}, so ready lets us tell if we can log or not
	ready bool
}

type LoggerConfig struct {
	// The log level for this logger and all of its children
	LogLevel DebugLevel

	// MaxSize the max size in MB of the logfile before it's rolled
	MaxSize int

	// MaxBackups the max number of rolled files to keep
	MaxBackups int

	// MaxAge the max age in days to keep a logfile
	MaxAge int
}

func DefaultLoggerConfig(logLevel string) *LoggerConfig {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}

	return &LoggerConfig{
		LogLevel:   DebugLevel(level),
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
	}
}

func NewWithNoConsoleWriters(config *LoggerConfig, logFilePath string) (*Logger, error) {
	return New(config, logFilePath, []io.Writer{})
}

// New builds a logger writing json lines to logFilePath (rotated by lumberjack) and
// human readable lines to every console destination. With neither, json goes to stdout.
func New(config *LoggerConfig, logFilePath string, consoleWriterDestinations []io.Writer) (*Logger, error) {
	// Lets us display stack info on errors
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.StampMilli

	writers := []io.Writer{}

	if logFilePath != "" {
		// make our directory if it doesn't exist already
		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s", logDir)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    config.MaxSize, // megabytes
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge, //days
		})
	}

	// Add console writers for all specified io.Writer destinations
	for _, dest := range consoleWriterDestinations {
		writers = append(writers, zerolog.ConsoleWriter{Out: dest, TimeFormat: time.StampMilli})
	}

	var out io.Writer = os.Stdout
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	return &Logger{
		logger: zerolog.New(out).Level(config.LogLevel).With().Timestamp().Logger(),
		ready:  true,
	}, nil
}

func (l *Logger) AddSdkVersion(version string) {
	if l.ready {
		l.logger = l.logger.With().Str("sdkVersion", version).Logger()
	}
}

func (l *Logger) GetComponentLogger(component string) *Logger {
	return l.child("component", component)
}

func (l *Logger) GetActionLogger(actionType string) *Logger {
	return l.child("action", actionType)
}

func (l *Logger) GetRequestLogger(requestId string) *Logger {
	return l.child("requestId", requestId)
}

func (l *Logger) child(key string, value string) *Logger {
	if !l.ready {
		return l
	}
	return &Logger{
		logger: l.logger.With().Str(key, value).Logger(),
		ready:  true,
	}
}

func (l *Logger) AddField(key string, value string) {
	if l.ready {
		l.logger = l.logger.With().Str(key, value).Logger()
	}
}

func (l *Logger) Info(msg string) {
	if l.ready {
		l.logger.Info().
			Msg(msg)
	}
}

func (l *Logger) Infof(format string, a ...interface{}) {
	if l.ready {
		msg := fmt.Sprintf(format, a...)
		l.Info(msg)
	}
}

func (l *Logger) Debug(msg string) {
	if l.ready {
		l.logger.Debug().
			Msg(msg)
	}
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	if l.ready {
		msg := fmt.Sprintf(format, a...)
		l.Debug(msg)
	}
}

func (l *Logger) Warn(msg string) {
	if l.ready {
		l.logger.Warn().
			Msg(msg)
	}
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	if l.ready {
		msg := fmt.Sprintf(format, a...)
		l.Warn(msg)
	}
}

func (l *Logger) Error(err error) {
	if l.ready {
		l.logger.Error().
			Stack(). // stack trace for errors woot
			Err(err).
			Msg(err.Error())
	}
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	if l.ready {
		msg := fmt.Sprintf(format, a...)
		l.Error(errors.New(msg))
	}
}

func (l *Logger) Trace(msg string) {
	if l.ready {
		l.logger.Trace().
			Msg(msg)
	}
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	if l.ready {
		msg := fmt.Sprintf(format, a...)
		l.Trace(msg)
	}
}
