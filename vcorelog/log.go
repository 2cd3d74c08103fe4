// Package vcorelog provides the audit-style logger used across vcore,
// modeled on the Notice/Warning/Audit/AuditErr call-site contract the
// teacher's own cmd/* binaries use throughout (e.g. ca.log.AuditErr(err),
// log.Notice("...")). Entries considered "audit" are always also sent to
// syslog when one is configured, since they record security-relevant
// decisions (signature verdicts, revocation findings) that must survive
// process restarts.
package vcorelog

import (
	"fmt"
	"log"
	"log/syslog"
	"os"
	"sync"
)

// Logger is the vcore-wide structured logger.
type Logger struct {
	mu     sync.Mutex
	stdout *log.Logger
	sys    *syslog.Writer
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Get returns the process-wide default Logger, constructing a stdout-only
// one on first use. Mirrors blog.Get()/blog.GetAuditLogger() from the
// teacher: a singleton handle, constructed once, threaded through callers
// rather than re-resolved from global state on every call.
func Get() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New("", "")
	})
	return defaultLogger
}

// New constructs a Logger. If network and server are both non-empty, audit
// entries are additionally mirrored to syslog over that transport.
func New(network, server string) *Logger {
	l := &Logger{stdout: log.New(os.Stdout, "", log.LstdFlags)}
	if network != "" && server != "" {
		w, err := syslog.Dial(network, server, syslog.LOG_NOTICE|syslog.LOG_LOCAL0, "vcore")
		if err == nil {
			l.sys = w
		}
	}
	return l
}

func (l *Logger) write(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout.Printf("%s: %s", level, msg)
}

// Debug logs a low-priority diagnostic line.
func (l *Logger) Debug(msg string) {
	l.write("DEBUG", msg)
}

// Notice logs a routine, non-error event worth recording.
func (l *Logger) Notice(msg string) {
	l.write("NOTICE", msg)
}

// Warning logs a recoverable anomaly.
func (l *Logger) Warning(msg string) {
	l.write("WARNING", msg)
}

// WarningErr logs an error at warning severity.
func (l *Logger) WarningErr(err error) {
	l.Warning(err.Error())
}

// Audit logs a security-relevant decision (signature verdict, revocation
// result, trust-anchor lookup) that must be durable; it is mirrored to
// syslog when configured.
func (l *Logger) Audit(msg string) {
	l.write("AUDIT", msg)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sys != nil {
		_ = l.sys.Notice(msg)
	}
}

// AuditErr is Audit for an error value.
func (l *Logger) AuditErr(err error) {
	l.Audit(err.Error())
}

// Auditf is Audit with fmt.Sprintf-style formatting.
func (l *Logger) Auditf(format string, args ...interface{}) {
	l.Audit(fmt.Sprintf(format, args...))
}
