package zk

import "github.com/sirupsen/logrus"

// Logger is the single ambient collaborator the core depends on
// (spec.md §9 "Global state"). It is injected; there is no package-level
// default logger shared across clients.
type Logger interface {
	Printf(format string, args ...interface{})
}

// logrusLogger adapts *logrus.Logger to the Logger interface so that a
// caller who doesn't supply one still gets structured, leveled output
// consistent with the rest of the corpus rather than a bare log.Printf.
type logrusLogger struct {
	entry *logrus.Entry
}

func newDefaultLogger() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Printf(format string, args ...interface{}) {
	l.entry.Printf(format, args...)
}

// withFields returns a Logger that annotates every line with the given
// fields, used by the session engine to tag log output with session_id and
// state without making every call site format them by hand.
func withFields(l Logger, fields map[string]interface{}) Logger {
	if ll, ok := l.(*logrusLogger); ok {
		return &logrusLogger{entry: ll.entry.WithFields(fields)}
	}
	return l
}
