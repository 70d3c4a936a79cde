package log

// NopLogger discards everything, for tests and callers that don't want
// logging wired up.
type NopLogger struct{}

func (NopLogger) Debug(args ...interface{})                 {}
func (NopLogger) Info(args ...interface{})                  {}
func (NopLogger) Warn(args ...interface{})                  {}
func (NopLogger) Error(args ...interface{})                 {}
func (NopLogger) Debugf(format string, args ...interface{}) {}
func (NopLogger) Infof(format string, args ...interface{})  {}
func (NopLogger) Warnf(format string, args ...interface{})  {}
func (NopLogger) Errorf(format string, args ...interface{}) {}
