package log

import (
	"github.com/sirupsen/logrus"
)

// PrefixLogger wraps a logrus logger and prepends a fixed prefix to every
// message. The prefix is typically the controller id so that log lines from
// concurrently running agents can be told apart in tests.
type PrefixLogger struct {
	*logrus.Logger
	prefix string
}

func NewPrefixLogger(prefix string) *PrefixLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &PrefixLogger{
		Logger: logger,
		prefix: prefix,
	}
}

func (l *PrefixLogger) Prefix() string {
	return l.prefix
}

// SetLogLevel sets the logging level from a string. Unrecognized levels fall
// back to info.
func (l *PrefixLogger) SetLogLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.Logger.SetLevel(parsed)
}

func (l *PrefixLogger) Tracef(format string, args ...interface{}) {
	l.Logger.Tracef(l.prefixed(format), args...)
}

func (l *PrefixLogger) Trace(args ...interface{}) {
	l.Logger.Trace(l.prefixedArgs(args)...)
}

func (l *PrefixLogger) Debugf(format string, args ...interface{}) {
	l.Logger.Debugf(l.prefixed(format), args...)
}

func (l *PrefixLogger) Debug(args ...interface{}) {
	l.Logger.Debug(l.prefixedArgs(args)...)
}

func (l *PrefixLogger) Infof(format string, args ...interface{}) {
	l.Logger.Infof(l.prefixed(format), args...)
}

func (l *PrefixLogger) Info(args ...interface{}) {
	l.Logger.Info(l.prefixedArgs(args)...)
}

func (l *PrefixLogger) Warnf(format string, args ...interface{}) {
	l.Logger.Warnf(l.prefixed(format), args...)
}

func (l *PrefixLogger) Warn(args ...interface{}) {
	l.Logger.Warn(l.prefixedArgs(args)...)
}

func (l *PrefixLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Errorf(l.prefixed(format), args...)
}

func (l *PrefixLogger) Error(args ...interface{}) {
	l.Logger.Error(l.prefixedArgs(args)...)
}

func (l *PrefixLogger) prefixed(format string) string {
	if l.prefix == "" {
		return format
	}
	return l.prefix + ": " + format
}

func (l *PrefixLogger) prefixedArgs(args []interface{}) []interface{} {
	if l.prefix == "" {
		return args
	}
	return append([]interface{}{l.prefix + ": "}, args...)
}
