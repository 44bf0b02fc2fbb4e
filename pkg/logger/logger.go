package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// jsonFormatter matches the job-server logging contract: ts/level/trace_id/
// job_id/stage/msg/meta, one JSON object per line on stdout.
type jsonFormatter struct{}

func (jsonFormatter) Format(e *logrus.Entry) ([]byte, error) {
	fields := logrus.Fields{}
	for k, v := range e.Data {
		fields[k] = v
	}
	fields["ts"] = e.Time.UTC().Format("2006-01-02T15:04:05.000Z")
	fields["level"] = strings.ToUpper(e.Level.String())
	fields["msg"] = e.Message
	return (&logrus.JSONFormatter{DisableTimestamp: true}).Format(&logrus.Entry{
		Logger:  e.Logger,
		Data:    fields,
		Time:    e.Time,
		Level:   e.Level,
		Message: "",
	})
}

var (
	base *logrus.Logger
	once sync.Once
)

// Init configures the package-level logger. Safe to call once at startup;
// subsequent calls are no-ops so tests and Init(level) races don't clash.
func Init(level string) {
	once.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stdout)
		base.SetFormatter(jsonFormatter{})
		base.SetLevel(parseLevel(level))
	})
}

func instance() *logrus.Logger {
	if base == nil {
		Init("info")
	}
	return base
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithJob returns a logger pre-populated with trace_id/job_id/stage, the
// fields every pipeline log line carries per the job server's contract.
func WithJob(traceID, jobID, stage string) *logrus.Entry {
	return instance().WithFields(logrus.Fields{
		"trace_id": traceID,
		"job_id":   jobID,
		"stage":    stage,
	})
}

func Debugf(format string, args ...interface{}) { instance().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { instance().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { instance().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { instance().Errorf(format, args...) }

func Info(msg string, meta map[string]interface{}) {
	instance().WithField("meta", meta).Info(msg)
}

func Warn(msg string, meta map[string]interface{}) {
	instance().WithField("meta", meta).Warn(msg)
}

func Error(msg string, meta map[string]interface{}) {
	instance().WithField("meta", meta).Error(msg)
}
