package logger

import (
	"io"
	"os"
	"path/filepath"

	"photo-compressor-go/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where and how verbosely the logger writes.
type Options struct {
	Logging config.LoggingConfig
	Verbose bool // forces debug level
	Quiet   bool // forces error level and drops console output
}

// New builds a JSON logrus.Logger. When a file path is configured the output
// is rotated by lumberjack and, unless quiet, mirrored to stderr.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	levelName := opts.Logging.Level
	switch {
	case opts.Quiet:
		levelName = "error"
	case opts.Verbose:
		levelName = "debug"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})

	var out []io.Writer
	if path := opts.Logging.FilePath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		out = append(out, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.Logging.MaxSize,
			MaxBackups: opts.Logging.MaxBackups,
			MaxAge:     opts.Logging.MaxAge,
			Compress:   opts.Logging.Compress,
		})
	}
	if !opts.Quiet || len(out) == 0 {
		out = append(out, os.Stderr)
	}
	log.SetOutput(io.MultiWriter(out...))

	return log, nil
}

// MustNew is New with a plain stderr logger as fallback.
func MustNew(opts Options) *logrus.Logger {
	log, err := New(opts)
	if err != nil {
		log = logrus.New()
		log.WithError(err).Warn("Falling back to default logger")
	}
	return log
}

// WithOperation returns a logger entry tagged with an operation name.
func WithOperation(log *logrus.Logger, operation string) *logrus.Entry {
	return log.WithField("operation", operation)
}

// WithEntry returns a logger entry tagged with an image entry.
func WithEntry(log *logrus.Logger, entryID, fileName string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"entry_id": entryID,
		"file":     fileName,
	})
}
