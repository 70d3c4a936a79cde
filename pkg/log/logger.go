// Package log provides a logger interface for logging libraries so that
// cloudcore does not depend on any one of them directly. It ships default
// implementations backed by logrus and log/slog.
package log

// Logger serves as an adapter interface for logging libraries so that
// packages under cloudcore never import a logging library directly.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
