package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the process logger. Fields added with WithField/WithFields
// travel with the returned copy only.
type Logger struct {
	*logrus.Entry
}

var (
	entry *logrus.Entry
	once  sync.Once
)

func GetLogger() *Logger {
	once.Do(func() {
		if entry == nil {
			Init(false, os.Stdout)
		}
	})
	return &Logger{entry}
}

// Init configures level and output. Safe to call again from tests.
func Init(debug bool, out io.Writer) {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000",
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	entry = logrus.NewEntry(l)
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{l.Entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{l.Entry.WithFields(fields)}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{l.Entry.WithError(err)}
}
